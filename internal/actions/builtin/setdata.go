// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import "github.com/bluzky/prana/pkg/prana/registry"

// SetData implements data.set_data: its params are already rendered by
// the NodeExecutor before Execute ever runs, so this action's entire job
// is to echo the rendered "data" param back out as output.
type SetData struct {
	registry.BaseAction
}

func (SetData) Execute(params map[string]interface{}, _ map[string]interface{}) registry.Result {
	data, _ := params["data"]
	return registry.OK(data)
}

// NewSetData builds a SetData action.
func NewSetData() *SetData { return &SetData{} }
