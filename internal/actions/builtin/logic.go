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

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/registry"
)

// IfCondition implements logic.if_condition: evaluate a boolean expr-lang
// expression against the node's expression context and route to the
// "true" or "false" output port. Compiled programs are cached the way
// the workflow expression evaluator caches compiled templates.
type IfCondition struct {
	registry.BaseAction

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewIfCondition builds an IfCondition with an empty compile cache.
func NewIfCondition() *IfCondition {
	return &IfCondition{cache: make(map[string]*vm.Program)}
}

func (c *IfCondition) compile(condition string) (*vm.Program, error) {
	c.mu.RLock()
	if prog, ok := c.cache[condition]; ok {
		c.mu.RUnlock()
		return prog, nil
	}
	c.mu.RUnlock()

	prog, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]*vm.Program)
	}
	c.cache[condition] = prog
	c.mu.Unlock()
	return prog, nil
}

func (c *IfCondition) Execute(params map[string]interface{}, ctx map[string]interface{}) registry.Result {
	condition, _ := params["condition"].(string)
	if condition == "" {
		return registry.Err(&praerrors.ValidationError{Field: "condition", Message: "condition is required"})
	}

	prog, err := c.compile(condition)
	if err != nil {
		return registry.Err(&praerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Suggestion: "check expression syntax and ensure all referenced variables exist",
		})
	}

	out, err := expr.Run(prog, ctx)
	if err != nil {
		return registry.Err(&praerrors.ActionError{Kind: praerrors.ActionKindExecutionFailed, Message: fmt.Sprintf("condition evaluation failed: %s", err.Error())})
	}

	result, ok := out.(bool)
	if !ok {
		return registry.Err(&praerrors.ValidationError{Field: "condition", Message: fmt.Sprintf("condition must return a boolean, got %T", out)})
	}

	port := "false"
	if result {
		port = "true"
	}
	return registry.OKPort(map[string]interface{}{"result": result}, port)
}

func (c *IfCondition) ParamsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"condition": map[string]interface{}{"type": "string"},
		},
		"required": []string{"condition"},
	}
}

func (c *IfCondition) ValidateParams(params map[string]interface{}) error {
	condition, _ := params["condition"].(string)
	if condition == "" {
		return &praerrors.ValidationError{Field: "condition", Message: "condition is required"}
	}
	_, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	return err
}
