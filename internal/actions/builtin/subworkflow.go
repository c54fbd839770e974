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
	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/bluzky/prana/pkg/prana/registry"
)

// Sub-workflow execution modes, as carried in workflow.run_workflow's
// params and echoed into the suspension data the runner dispatches on.
const (
	SubWorkflowModeSync          = "sync"
	SubWorkflowModeAsync         = "async"
	SubWorkflowModeFireAndForget = "fire_and_forget"
)

// RunWorkflow implements workflow.run_workflow: hand a child workflow id
// off to the runner and suspend until it reports back, except in
// fire-and-forget mode where the runner resumes immediately after
// enqueuing the child.
type RunWorkflow struct {
	registry.BaseAction
}

func (r *RunWorkflow) Execute(params map[string]interface{}, _ map[string]interface{}) registry.Result {
	workflowID, _ := params["workflow_id"].(string)
	if workflowID == "" {
		return registry.Err(&praerrors.ValidationError{Field: "workflow_id", Message: "workflow_id is required"})
	}

	mode, _ := params["execution_mode"].(string)
	if mode == "" {
		mode = SubWorkflowModeSync
	}

	input, _ := params["input"].(map[string]interface{})

	switch mode {
	case SubWorkflowModeSync:
		return registry.Suspend(string(model.SuspensionSubWorkflowSync), map[string]interface{}{
			"workflow_id":    workflowID,
			"execution_mode": mode,
			"input":          input,
		})
	case SubWorkflowModeAsync:
		return registry.Suspend(string(model.SuspensionSubWorkflowAsync), map[string]interface{}{
			"workflow_id":    workflowID,
			"execution_mode": mode,
			"input":          input,
		})
	case SubWorkflowModeFireAndForget:
		return registry.Suspend(string(model.SuspensionSubWorkflowFireAndForget), map[string]interface{}{
			"workflow_id":    workflowID,
			"execution_mode": mode,
			"input":          input,
		})
	default:
		return registry.Err(&praerrors.ValidationError{Field: "execution_mode", Message: "execution_mode must be sync, async, or fire_and_forget"})
	}
}

// Resume answers the runner's resume_workflow call once the child
// workflow settles (or, for fire-and-forget, the moment the runner
// enqueues it). The resume payload is surfaced verbatim as output data.
func (r *RunWorkflow) Resume(_ map[string]interface{}, _ map[string]interface{}, resumeData map[string]interface{}) registry.Result {
	return registry.OK(resumeData)
}

func (r *RunWorkflow) ParamsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workflow_id":    map[string]interface{}{"type": "string"},
			"execution_mode": map[string]interface{}{"type": "string", "enum": []string{SubWorkflowModeSync, SubWorkflowModeAsync, SubWorkflowModeFireAndForget}},
			"input":          map[string]interface{}{"type": "object"},
		},
		"required": []string{"workflow_id"},
	}
}

func (r *RunWorkflow) ValidateParams(params map[string]interface{}) error {
	workflowID, _ := params["workflow_id"].(string)
	if workflowID == "" {
		return &praerrors.ValidationError{Field: "workflow_id", Message: "workflow_id is required"}
	}
	return nil
}

// NewRunWorkflow builds a RunWorkflow action.
func NewRunWorkflow() *RunWorkflow { return &RunWorkflow{} }
