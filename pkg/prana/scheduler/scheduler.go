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

// Package scheduler implements the GraphExecutor: the single-threaded
// cooperative loop that walks an ExecutionGraph, dispatching each ready
// node to a NodeExecutor and applying its outcome.
package scheduler

import (
	"sort"
	"time"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/execution"
	"github.com/bluzky/prana/pkg/prana/executor"
	"github.com/bluzky/prana/pkg/prana/model"
)

// GraphExecutor drives one WorkflowExecution across a compiled graph. It
// holds no per-execution state itself; every method takes the execution
// it operates on, the way the teacher's workflow.Executor separates the
// stateless runner from the stateful run record.
type GraphExecutor struct {
	Graph    *model.ExecutionGraph
	NodeExec *executor.NodeExecutor
	Clock    func() time.Time
}

// New builds a GraphExecutor bound to a compiled graph and the
// NodeExecutor it should dispatch ready nodes to.
func New(graph *model.ExecutionGraph, nodeExec *executor.NodeExecutor) *GraphExecutor {
	return &GraphExecutor{Graph: graph, NodeExec: nodeExec, Clock: time.Now}
}

func (g *GraphExecutor) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}

// InitializeExecution builds a pending WorkflowExecution with its
// trigger node activated, ready for ExecuteWorkflow.
func (g *GraphExecutor) InitializeExecution(id, workflowID string, version int, triggerData map[string]interface{}) *model.WorkflowExecution {
	exec := model.NewWorkflowExecution(id, workflowID, version)
	exec.TriggerData = triggerData
	exec.ExecutionData.ActiveNodes[g.Graph.TriggerNodeKey] = 0
	return exec
}

// ExecuteWorkflow runs exec until its active-node pool is empty (the
// workflow completed), a node suspends (the workflow pauses, to be
// continued by ResumeWorkflow), a node fails terminally (no
// error-port route to continue on), or active nodes remain but none has
// its dependencies satisfied (it returns nil and the status stays
// running).
func (g *GraphExecutor) ExecuteWorkflow(exec *model.WorkflowExecution) error {
	if exec.Status == model.ExecutionPending {
		started := g.now()
		exec.Status = model.ExecutionRunning
		exec.StartedAt = &started
	}
	return g.run(exec)
}

// ResumeWorkflow resumes a suspended execution: it calls ResumeNode on
// the node recorded as suspended, then continues the scheduling loop
// from wherever that leaves the active-node pool.
func (g *GraphExecutor) ResumeWorkflow(exec *model.WorkflowExecution, resumeData map[string]interface{}) error {
	if exec.Status != model.ExecutionSuspended {
		return &praerrors.ValidationError{Field: "execution", Message: "execution is not suspended"}
	}

	nodeKey := exec.SuspendedNodeID
	node, ok := g.Graph.NodeMap[nodeKey]
	if !ok {
		return &praerrors.NotFoundError{Resource: "node", ID: nodeKey}
	}
	suspended := exec.LatestNodeExecution(nodeKey)
	if suspended == nil {
		return &praerrors.NotFoundError{Resource: "node_execution", ID: nodeKey}
	}

	// The resumed attempt replaces the suspended record so each
	// (node key, run index) pair stays unique.
	attempts := exec.NodeExecutions[nodeKey]
	exec.NodeExecutions[nodeKey] = attempts[:len(attempts)-1]

	exec.Status = model.ExecutionRunning
	exec.SuspendedNodeID = ""
	exec.SuspensionType = ""
	exec.SuspensionData = nil
	exec.SuspendedAt = nil

	execCtx := executor.ExecutionContext{
		ExecutionIndex: exec.NextExecutionIndex(),
		RunIndex:       suspended.RunIndex,
		Loopback:       suspended.RunIndex > 0,
		LoopMetadata:   node.Metadata,
	}
	result := g.NodeExec.ResumeNode(node, exec, suspended, resumeData, execCtx)
	if applied := g.applyResult(exec, node, result); !applied {
		return nil
	}

	return g.run(exec)
}

// run is the scheduling loop: pick a ready node, dispatch it, apply its
// outcome, repeat until nothing is ready, the run suspends, or it fails.
func (g *GraphExecutor) run(exec *model.WorkflowExecution) error {
	for {
		nodeKey, ok := g.selectReady(exec)
		if !ok {
			if len(exec.ExecutionData.ActiveNodes) == 0 {
				completed := g.now()
				exec.Status = model.ExecutionCompleted
				exec.CompletedAt = &completed
			}
			return nil
		}

		node, ok := g.Graph.NodeMap[nodeKey]
		if !ok {
			return &praerrors.NotFoundError{Resource: "node", ID: nodeKey}
		}

		if err := g.prepareNode(node, exec); err != nil {
			return err
		}

		routedInput := execution.ExtractMultiPortInput(g.Graph, exec, nodeKey)
		runIndex := exec.NextRunIndex(nodeKey)
		execCtx := executor.ExecutionContext{
			ExecutionIndex: exec.NextExecutionIndex(),
			RunIndex:       runIndex,
			Loopback:       runIndex > 0,
			LoopMetadata:   node.Metadata,
		}

		result := g.NodeExec.ExecuteNode(node, exec, routedInput, execCtx)
		if applied := g.applyResult(exec, node, result); !applied {
			return nil
		}
	}
}

// prepareNode calls the node's action's Prepare hook and caches whatever
// it mints (webhook URLs, resume ids) in exec.PreparationData so the
// NodeExecutor's expression context can see it as $execution.preparation;
// a cached node is not prepared again in the same execution. Actions with
// nothing to prepare return nil, nil and leave no trace, so their Prepare
// runs again on each dispatch.
func (g *GraphExecutor) prepareNode(node *model.Node, exec *model.WorkflowExecution) error {
	if _, done := exec.PreparationData[node.Key]; done {
		return nil
	}
	desc, err := g.NodeExec.Registry.GetActionByType(node.Type)
	if err != nil {
		return nil
	}
	data, err := desc.Action.Prepare(node)
	if err != nil {
		return err
	}
	if data != nil {
		exec.PreparationData[node.Key] = data
	}
	return nil
}

// applyResult folds one NodeExecutor result into exec, returning false
// when the caller should stop the loop (suspension or terminal failure).
func (g *GraphExecutor) applyResult(exec *model.WorkflowExecution, node *model.Node, result executor.Result) bool {
	switch result.Outcome {
	case executor.OutcomeOK:
		execution.CompleteNode(exec, g.Graph, result.NodeExecution)
		return true

	case executor.OutcomeSuspend:
		exec.NodeExecutions[node.Key] = append(exec.NodeExecutions[node.Key], result.NodeExecution)
		delete(exec.ExecutionData.ActiveNodes, node.Key)
		suspendedAt := g.now()
		exec.Status = model.ExecutionSuspended
		exec.SuspendedNodeID = node.Key
		exec.SuspensionType = result.NodeExecution.SuspensionType
		exec.SuspensionData = result.NodeExecution.SuspensionData
		exec.SuspendedAt = &suspendedAt
		return false

	case executor.OutcomeErr:
		hadErrorPort := result.NodeExecution.OutputPort != "" && len(g.Graph.Successors(node.Key, result.NodeExecution.OutputPort)) > 0
		execution.CompleteNode(exec, g.Graph, result.NodeExecution)
		if hadErrorPort {
			return true
		}
		failedAt := g.now()
		exec.Status = model.ExecutionFailed
		exec.CompletedAt = &failedAt
		return false

	default:
		failedAt := g.now()
		exec.Status = model.ExecutionFailed
		exec.CompletedAt = &failedAt
		return false
	}
}

// selectReady picks the highest-priority ready node among exec's active
// nodes: the one whose dependencies are satisfied, breaking ties toward
// the most recently activated node (highest activation index), then
// lexicographically by key for determinism.
func (g *GraphExecutor) selectReady(exec *model.WorkflowExecution) (string, bool) {
	type candidate struct {
		key        string
		activation int
	}
	var ready []candidate
	for key, activation := range exec.ExecutionData.ActiveNodes {
		if execution.DependencySatisfied(g.Graph, exec, key) {
			ready = append(ready, candidate{key: key, activation: activation})
		}
	}
	if len(ready) == 0 {
		return "", false
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].activation != ready[j].activation {
			return ready[i].activation > ready[j].activation
		}
		return ready[i].key < ready[j].key
	})
	return ready[0].key, true
}
