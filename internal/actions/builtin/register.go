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

// Register adds every reference action in this package to reg under the
// "builtin" integration. It exists so engine embedders and tests have a
// single call that stands up a minimally useful registry.
func Register(reg *registry.Registry) error {
	return reg.Register(registry.Integration{
		Name: "builtin",
		Actions: []registry.Descriptor{
			{
				Name:         "wait.wait",
				DisplayName:  "Wait",
				Kind:         registry.ActionKindWait,
				InputPorts:   []string{"main"},
				OutputPorts:  []string{"main"},
				Action:       NewWaitAction(),
				ParamsSchema: NewWaitAction().ParamsSchema(),
			},
			{
				Name:         "logic.if_condition",
				DisplayName:  "If Condition",
				Kind:         registry.ActionKindLogic,
				InputPorts:   []string{"main"},
				OutputPorts:  []string{"true", "false"},
				Action:       NewIfCondition(),
				ParamsSchema: NewIfCondition().ParamsSchema(),
			},
			{
				Name:         "workflow.run_workflow",
				DisplayName:  "Run Workflow",
				Kind:         registry.ActionKindAction,
				InputPorts:   []string{"main"},
				OutputPorts:  []string{"main"},
				Action:       NewRunWorkflow(),
				ParamsSchema: NewRunWorkflow().ParamsSchema(),
			},
			{
				Name:         "data.set_data",
				DisplayName:  "Set Data",
				Kind:         registry.ActionKindAction,
				InputPorts:   []string{"main"},
				OutputPorts:  []string{"main"},
				Action:       NewSetData(),
				ParamsSchema: nil,
			},
		},
	})
}
