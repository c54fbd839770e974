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

// Package executor implements the NodeExecutor: it prepares params,
// invokes an action, interprets its result, and applies the
// retry-as-suspension policy.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/expression"
	"github.com/bluzky/prana/pkg/prana/jq"
	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/bluzky/prana/pkg/prana/registry"
)

// Clock abstracts time.Now so tests can control it; the zero value uses
// the real clock.
type Clock func() time.Time

// ExecutionContext carries the scheduling metadata the GraphExecutor
// computes for one node invocation: the run index to use, whether this
// is a loopback iteration, and the node's loop annotations.
type ExecutionContext struct {
	ExecutionIndex int
	RunIndex       int
	Loopback       bool
	LoopMetadata   map[string]interface{}
}

// Outcome is the tagged result of NodeExecutor.ExecuteNode/ResumeNode/RetryNode.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSuspend Outcome = "suspend"
	OutcomeErr     Outcome = "err"
)

// Result bundles the outcome with the NodeExecution it produced.
type Result struct {
	Outcome       Outcome
	NodeExecution *model.NodeExecution
	Err           error
}

// NodeExecutor executes or resumes a single node, the way the teacher's
// workflow.Executor drives one step: a small struct holding the
// collaborators it needs (registry, renderer, clock, logger) with one
// exported entry point per request shape.
type NodeExecutor struct {
	Registry    *registry.Registry
	Renderer    *expression.Renderer
	Transformer *jq.Transformer
	Clock       Clock
	Logger      *slog.Logger
}

// New builds a NodeExecutor with the real clock and a default logger.
func New(reg *registry.Registry) *NodeExecutor {
	return &NodeExecutor{
		Registry:    reg,
		Renderer:    expression.NewRenderer(),
		Transformer: jq.New(0, 0),
		Clock:       time.Now,
		Logger:      slog.Default(),
	}
}

func (x *NodeExecutor) now() time.Time {
	if x.Clock != nil {
		return x.Clock()
	}
	return time.Now()
}

// BuildExpressionContext assembles the $-rooted context map the
// template engine and actions see.
func BuildExpressionContext(
	node *model.Node,
	exec *model.WorkflowExecution,
	routedInput map[string]interface{},
	execCtx ExecutionContext,
) map[string]interface{} {
	nodesCtx := make(map[string]interface{}, len(exec.NodeExecutions))
	if exec.Runtime != nil {
		for key, entry := range exec.Runtime.Nodes {
			nodesCtx[key] = map[string]interface{}{
				"output":  entry.Output,
				"context": entry.Context,
			}
		}
	}

	env := make(map[string]interface{})
	if exec.Runtime != nil {
		for k, v := range exec.Runtime.Env {
			env[k] = v
		}
	}

	prep := exec.PreparationData[node.Key]

	return map[string]interface{}{
		"input": routedInput,
		"nodes": nodesCtx,
		"env":   env,
		"vars":  exec.Vars,
		"workflow": map[string]interface{}{
			"id":      exec.WorkflowID,
			"version": exec.WorkflowVersion,
		},
		"execution": map[string]interface{}{
			"id":               exec.ID,
			"mode":             string(exec.ExecutionMode),
			"current_node_key": node.Key,
			"run_index":        execCtx.RunIndex,
			"execution_index":  execCtx.ExecutionIndex,
			"loopback":         execCtx.Loopback,
			"loop":             execCtx.LoopMetadata,
			"preparation":      prep,
			"state":            exec.ExecutionData.ContextData.Workflow,
		},
		"now": time.Now().UTC().Format(time.RFC3339),
	}
}

// ExecuteNode runs node once: it builds a NodeExecution, renders params,
// invokes the action, and interprets the result, applying the
// retry-as-suspension policy on failure.
func (x *NodeExecutor) ExecuteNode(
	node *model.Node,
	exec *model.WorkflowExecution,
	routedInput map[string]interface{},
	execCtx ExecutionContext,
) Result {
	started := x.now()
	ne := &model.NodeExecution{
		NodeKey:        node.Key,
		Status:         model.NodeStatusRunning,
		StartedAt:      &started,
		ExecutionIndex: execCtx.ExecutionIndex,
		RunIndex:       execCtx.RunIndex,
	}

	renderedParams, err := x.Renderer.RenderParams(node.Params, BuildExpressionContext(node, exec, routedInput, execCtx))
	if err != nil {
		return x.fail(ne, &praerrors.ValidationError{Field: "params", Message: "params_error: expression_evaluation_failed: " + err.Error()})
	}
	ne.Params = renderedParams

	desc, err := x.Registry.GetActionByType(node.Type)
	if err != nil {
		return x.fail(ne, err)
	}

	ctxMap := BuildExpressionContext(node, exec, routedInput, execCtx)
	res, invokeErr := x.invoke(desc, renderedParams, ctxMap)
	if invokeErr != nil {
		return x.handleFailure(node, ne, invokeErr, execCtx, DefaultErrorPort(desc))
	}

	return x.interpretResult(node, desc, ne, res, execCtx)
}

// invoke calls action.Execute, converting panics into action_throw
// errors so the scheduler never unwinds out of the engine on action
// faults.
func (x *NodeExecutor) invoke(desc *registry.Descriptor, params, ctxMap map[string]interface{}) (res registry.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &praerrors.ActionError{
				Kind:       praerrors.ActionKindThrow,
				ActionType: desc.Name,
				Message:    fmt.Sprintf("action panicked: %v", r),
			}
		}
	}()
	res = desc.Action.Execute(params, ctxMap)
	return res, nil
}

func (x *NodeExecutor) interpretResult(node *model.Node, desc *registry.Descriptor, ne *model.NodeExecution, res registry.Result, execCtx ExecutionContext) Result {
	switch res.Status {
	case registry.ResultOK:
		port := res.Port
		if port == "" {
			port = defaultSuccessPort(desc)
		}
		if !portValid(desc.OutputPorts, port) {
			return x.fail(ne, &praerrors.ValidationError{Field: "output_port", Message: "invalid_output_port: " + port})
		}
		outputData := res.Data
		if node.Settings.ResponseTransform != "" && x.Transformer != nil {
			transformed, err := x.Transformer.Apply(context.Background(), node.Settings.ResponseTransform, outputData)
			if err != nil {
				return x.fail(ne, err)
			}
			outputData = transformed
		}
		completed := x.now()
		ne.Status = model.NodeStatusCompleted
		ne.OutputData = outputData
		ne.OutputPort = port
		ne.CompletedAt = &completed
		if ne.StartedAt != nil {
			d := completed.Sub(*ne.StartedAt).Milliseconds()
			ne.DurationMs = &d
		}
		return Result{Outcome: OutcomeOK, NodeExecution: ne}

	case registry.ResultErr:
		errPort := res.Port
		if errPort == "" {
			errPort = DefaultErrorPort(desc)
		}
		return x.handleFailure(node, ne, wrapActionErr(desc.Name, res), execCtx, errPort)

	case registry.ResultSuspend:
		ne.Status = model.NodeStatusSuspended
		ne.SuspensionType = model.SuspensionType(res.SuspensionType)
		ne.SuspensionData = res.SuspensionData
		return Result{Outcome: OutcomeSuspend, NodeExecution: ne}

	default:
		return x.fail(ne, &praerrors.ValidationError{Field: "result", Message: "invalid_action_return_format"})
	}
}

func wrapActionErr(actionType string, res registry.Result) error {
	msg := "action returned an error"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	return &praerrors.ActionError{
		Kind:       praerrors.ActionKindError,
		ActionType: actionType,
		Message:    msg,
		Cause:      res.Err,
	}
}

// handleFailure applies the retry-as-suspension policy: a retryable
// error on a node configured to retry becomes a :retry suspension
// instead of a terminal failure. errPort is the port a terminal failure
// should route through, so error-port connections downstream still fire.
func (x *NodeExecutor) handleFailure(node *model.Node, ne *model.NodeExecution, err error, execCtx ExecutionContext, errPort string) Result {
	var aerr *praerrors.ActionError
	retryable := false
	if praerrors.As(err, &aerr) {
		retryable = aerr.Retryable()
	}

	if node.Settings.RetryOnFailed && node.Settings.MaxRetries > 0 && retryable && execCtx.RunIndex < node.Settings.MaxRetries {
		resumeAt := x.now().Add(time.Duration(node.Settings.RetryDelayMs) * time.Millisecond)
		ne.Status = model.NodeStatusSuspended
		ne.SuspensionType = model.SuspensionRetry
		ne.SuspensionData = map[string]interface{}{
			"resume_at":      resumeAt.UTC().Format(time.RFC3339),
			"attempt_number": execCtx.RunIndex + 1,
			"max_attempts":   node.Settings.MaxRetries,
			"original_error": err.Error(),
		}
		return Result{Outcome: OutcomeSuspend, NodeExecution: ne}
	}

	return x.failOnPort(ne, err, errPort)
}

func (x *NodeExecutor) fail(ne *model.NodeExecution, err error) Result {
	return x.failOnPort(ne, err, "")
}

func (x *NodeExecutor) failOnPort(ne *model.NodeExecution, err error, port string) Result {
	completed := x.now()
	ne.Status = model.NodeStatusFailed
	ne.OutputPort = port
	ne.CompletedAt = &completed
	retryable := false
	var aerr *praerrors.ActionError
	if praerrors.As(err, &aerr) {
		retryable = aerr.Retryable()
	}
	ne.ErrorData = map[string]interface{}{
		"message":      err.Error(),
		"retryable":    retryable,
		"user_message": praerrors.UserMessage(err),
	}
	if ne.StartedAt != nil {
		d := completed.Sub(*ne.StartedAt).Milliseconds()
		ne.DurationMs = &d
	}
	return Result{Outcome: OutcomeErr, NodeExecution: ne, Err: err}
}

// RetryNode re-runs a previously failed NodeExecution: it rebuilds
// routed input from the current execution state and runs the node with
// the attempt counter (run index) one past the failed attempt's. If the originally stored error was non-retryable, it
// short-circuits to a final failure even if a fresh error would be
// retryable.
func (x *NodeExecutor) RetryNode(node *model.Node, exec *model.WorkflowExecution, graph routedInputSource, failed *model.NodeExecution, execCtx ExecutionContext) Result {
	if !wasRetryable(failed) {
		original := praerrors.New(fmt.Sprint(failed.ErrorData["message"]))
		return x.fail(failed.Clone(), praerrors.Wrap(original, "original failure was not retryable"))
	}
	routedInput := graph.RoutedInput(exec, node.Key)
	execCtx.RunIndex = failed.RunIndex + 1
	execCtx.Loopback = true
	return x.ExecuteNode(node, exec, routedInput, execCtx)
}

// routedInputSource abstracts the routing computation so this package
// doesn't import the scheduler. A type whose RoutedInput method calls
// pkg/prana/execution.ExtractMultiPortInput satisfies it; this module
// defines no such type.
type routedInputSource interface {
	RoutedInput(exec *model.WorkflowExecution, nodeKey string) map[string]interface{}
}

func wasRetryable(failed *model.NodeExecution) bool {
	if failed == nil || failed.ErrorData == nil {
		return false
	}
	retryable, _ := failed.ErrorData["retryable"].(bool)
	return retryable
}

// ResumeNode restores params from the suspended NodeExecution and calls
// action.Resume with $input = {} per the spec.
func (x *NodeExecutor) ResumeNode(node *model.Node, exec *model.WorkflowExecution, suspended *model.NodeExecution, resumeData map[string]interface{}, execCtx ExecutionContext) Result {
	ne := suspended.Clone()
	started := x.now()
	ne.Status = model.NodeStatusRunning
	ne.StartedAt = &started

	desc, err := x.Registry.GetActionByType(node.Type)
	if err != nil {
		return x.fail(ne, err)
	}

	ctxMap := BuildExpressionContext(node, exec, map[string]interface{}{}, execCtx)

	var res registry.Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &praerrors.ActionError{Kind: praerrors.ActionKindResumeFailed, ActionType: desc.Name, Message: fmt.Sprintf("resume panicked: %v", r)}
			}
		}()
		res = desc.Action.Resume(ne.Params, ctxMap, resumeData)
	}()
	if err != nil {
		return x.failOnPort(ne, err, DefaultErrorPort(desc))
	}

	return x.interpretResult(node, desc, ne, res, execCtx)
}

func defaultSuccessPort(desc *registry.Descriptor) string {
	if portValid(desc.OutputPorts, model.DefaultPort) {
		return model.DefaultPort
	}
	if len(desc.OutputPorts) > 0 {
		return desc.OutputPorts[0]
	}
	return model.DefaultPort
}

// DefaultErrorPort picks "error" if declared, else "failure", else "error".
func DefaultErrorPort(desc *registry.Descriptor) string {
	for _, candidate := range []string{"error", "failure"} {
		if portValid(desc.OutputPorts, candidate) {
			return candidate
		}
	}
	return "error"
}

// portValid reports whether port is usable given ports. An empty port
// list accepts any port here, unlike the compiler's validateEndpoint,
// which treats only "*" as dynamic and rejects connections on ports an
// action does not declare.
func portValid(ports []string, port string) bool {
	for _, p := range ports {
		if p == "*" || p == port {
			return true
		}
	}
	return len(ports) == 0
}
