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

// Package execution holds the mutation helpers WorkflowExecution needs:
// appending NodeExecutions, merging context updates, computing routed
// input, and rebuilding the non-persisted runtime cache.
package execution

import (
	"github.com/bluzky/prana/pkg/prana/model"
)

// CompleteNode appends ne under its node key, refreshes the runtime cache
// entry for that node, and recomputes active_nodes by routing ne's output
// port through the graph's forward adjacency. It does not change the
// execution index; the scheduler reserves one with NextExecutionIndex
// before each dispatch.
func CompleteNode(exec *model.WorkflowExecution, graph *model.ExecutionGraph, ne *model.NodeExecution) {
	exec.NodeExecutions[ne.NodeKey] = append(exec.NodeExecutions[ne.NodeKey], ne)

	if exec.Runtime == nil {
		exec.Runtime = &model.Runtime{Nodes: make(map[string]model.RuntimeNodeEntry), Env: make(map[string]string)}
	}
	exec.Runtime.Nodes[ne.NodeKey] = model.RuntimeNodeEntry{
		Output:  ne.OutputData,
		Context: exec.ExecutionData.ContextData.Node[ne.NodeKey],
	}

	if ne.OutputPort == "" {
		return
	}

	stillLoopsBack := false
	for _, c := range graph.Successors(ne.NodeKey, ne.OutputPort) {
		if c.To == ne.NodeKey {
			stillLoopsBack = true
		}
		if _, active := exec.ExecutionData.ActiveNodes[c.To]; !active {
			exec.ExecutionData.ActiveNodes[c.To] = exec.CurrentExecutionIndex
		}
	}
	if !stillLoopsBack {
		delete(exec.ExecutionData.ActiveNodes, ne.NodeKey)
	}
}

// UpdateNodeContext deep-merges updates into the per-node context bag
// execution_data.context_data.node.<nodeKey>.
func UpdateNodeContext(exec *model.WorkflowExecution, nodeKey string, updates map[string]interface{}) {
	if exec.ExecutionData.ContextData.Node == nil {
		exec.ExecutionData.ContextData.Node = make(map[string]map[string]interface{})
	}
	current := exec.ExecutionData.ContextData.Node[nodeKey]
	exec.ExecutionData.ContextData.Node[nodeKey] = deepMerge(current, updates)
}

// UpdateExecutionContext deep-merges updates into the workflow-shared
// state bag execution_data.context_data.workflow, visible as
// $execution.state.
func UpdateExecutionContext(exec *model.WorkflowExecution, updates map[string]interface{}) {
	exec.ExecutionData.ContextData.Workflow = deepMerge(exec.ExecutionData.ContextData.Workflow, updates)
}

func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		if sm, ok := v.(map[string]interface{}); ok {
			if dm, ok := dst[k].(map[string]interface{}); ok {
				dst[k] = deepMerge(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// ExtractMultiPortInput computes the routed input for nodeKey: for each
// inbound port, the output_data of the most recent completed or failed
// source NodeExecution whose output_port matches that connection. When
// multiple sources feed one port, the source with the highest
// execution_index wins.
func ExtractMultiPortInput(graph *model.ExecutionGraph, exec *model.WorkflowExecution, nodeKey string) map[string]interface{} {
	input := make(map[string]interface{})
	byPort := graph.InboundByPort(nodeKey)

	for port, conns := range byPort {
		var best *model.NodeExecution
		for _, c := range conns {
			latest := latestMatchingOutput(exec, c.From, c.FromPort)
			if latest == nil {
				continue
			}
			if best == nil || latest.ExecutionIndex > best.ExecutionIndex {
				best = latest
			}
		}
		if best != nil {
			input[port] = best.OutputData
		}
	}
	return input
}

// latestMatchingOutput finds the most recent attempt at sourceKey whose
// output_port matches sourcePort. A Failed attempt counts as a routing
// source too: CompleteNode activates a failed node's error-port targets
// the same way it activates a completed node's main-port targets, so
// routing must recognize that attempt as having satisfied the edge
// rather than waiting forever for a Completed status that will never
// come on that attempt.
func latestMatchingOutput(exec *model.WorkflowExecution, sourceKey, sourcePort string) *model.NodeExecution {
	attempts := exec.NodeExecutions[sourceKey]
	for i := len(attempts) - 1; i >= 0; i-- {
		ne := attempts[i]
		if (ne.Status == model.NodeStatusCompleted || ne.Status == model.NodeStatusFailed) && ne.OutputPort == sourcePort {
			return ne
		}
	}
	return nil
}

// DependencySatisfied reports whether every inbound port of nodeKey that
// has at least one connected source has been satisfied by a completed or
// failed NodeExecution routing to that port.
func DependencySatisfied(graph *model.ExecutionGraph, exec *model.WorkflowExecution, nodeKey string) bool {
	byPort := graph.InboundByPort(nodeKey)
	if len(byPort) == 0 {
		return true
	}
	for port, conns := range byPort {
		_ = port
		satisfied := false
		for _, c := range conns {
			if latestMatchingOutput(exec, c.From, c.FromPort) != nil {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// RebuildRuntime recomputes __runtime from persisted node_executions and
// env. It is idempotent and is the recovery path when __runtime is lost
// (invariant 4): for each node key, the runtime entry reflects the
// latest NodeExecution's output and the node's current context bag.
func RebuildRuntime(exec *model.WorkflowExecution, env map[string]string) {
	nodes := make(map[string]model.RuntimeNodeEntry, len(exec.NodeExecutions))
	for key, attempts := range exec.NodeExecutions {
		if len(attempts) == 0 {
			continue
		}
		latest := attempts[len(attempts)-1]
		nodes[key] = model.RuntimeNodeEntry{
			Output:  latest.OutputData,
			Context: exec.ExecutionData.ContextData.Node[key],
		}
	}
	envCopy := make(map[string]string, len(env))
	for k, v := range env {
		envCopy[k] = v
	}
	exec.Runtime = &model.Runtime{Nodes: nodes, Env: envCopy}
}
