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

package compiler

import (
	"os"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/model"
	"gopkg.in/yaml.v3"
)

// yamlWorkflow mirrors model.Workflow field-for-field with yaml tags;
// it exists only to give Parse a distinct decode target so model.Workflow
// itself stays free of yaml-specific concerns.
type yamlWorkflow struct {
	ID          string                              `yaml:"id"`
	Name        string                              `yaml:"name"`
	Description string                              `yaml:"description,omitempty"`
	Version     int                                 `yaml:"version"`
	Nodes       []model.Node                        `yaml:"nodes"`
	Connections map[string]map[string][]model.Connection `yaml:"connections"`
	Variables   map[string]interface{}             `yaml:"variables,omitempty"`
}

// Parse decodes a YAML workflow definition into a normalized Workflow.
func Parse(data []byte) (*model.Workflow, error) {
	var yw yamlWorkflow
	if err := yaml.Unmarshal(data, &yw); err != nil {
		return nil, &praerrors.ValidationError{Field: "workflow", Message: "invalid YAML: " + err.Error()}
	}

	wf := &model.Workflow{
		ID:          yw.ID,
		Name:        yw.Name,
		Description: yw.Description,
		Version:     yw.Version,
		Nodes:       yw.Nodes,
		Connections: yw.Connections,
		Variables:   yw.Variables,
	}
	if wf.Version == 0 {
		wf.Version = 1
	}
	wf.Normalize()
	return wf, nil
}

// LoadFile reads and parses a YAML workflow definition from path.
func LoadFile(path string) (*model.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &praerrors.ValidationError{Field: "workflow", Message: "reading workflow file: " + err.Error()}
	}
	return Parse(data)
}
