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

package model

import "time"

// ExecutionMode distinguishes how a WorkflowExecution was started.
type ExecutionMode string

const (
	ExecutionModeSync  ExecutionMode = "sync"
	ExecutionModeAsync ExecutionMode = "async"
)

// ExecutionStatus is the lifecycle state of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuspended ExecutionStatus = "suspended"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// NodeStatus is the lifecycle state of a single NodeExecution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSuspended NodeStatus = "suspended"
)

// SuspensionType names why a node suspended. An outer runner dispatches
// on this value to decide how and when to resume.
type SuspensionType string

const (
	SuspensionInterval                 SuspensionType = "interval"
	SuspensionSchedule                 SuspensionType = "schedule"
	SuspensionWebhook                  SuspensionType = "webhook"
	SuspensionRetry                    SuspensionType = "retry"
	SuspensionSubWorkflowSync          SuspensionType = "sub_workflow_sync"
	SuspensionSubWorkflowAsync         SuspensionType = "sub_workflow_async"
	SuspensionSubWorkflowFireAndForget SuspensionType = "sub_workflow_fire_forget"
)

// NodeExecution records one attempt of one node.
type NodeExecution struct {
	NodeKey string     `json:"node_key"`
	Status  NodeStatus `json:"status"`

	Params     map[string]interface{} `json:"params,omitempty"`
	OutputData interface{}            `json:"output_data,omitempty"`
	OutputPort string                 `json:"output_port,omitempty"`
	ErrorData  map[string]interface{} `json:"error_data,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`

	// ExecutionIndex is the global monotonic order of this attempt across
	// the whole WorkflowExecution. RunIndex is the per-node attempt
	// counter, starting at 0.
	ExecutionIndex int `json:"execution_index"`
	RunIndex       int `json:"run_index"`

	SuspensionType SuspensionType         `json:"suspension_type,omitempty"`
	SuspensionData map[string]interface{} `json:"suspension_data,omitempty"`
}

// Clone returns a deep-enough copy of n: map fields are copied, nested
// values within them are shared (callers must not mutate nested mutable
// values after cloning without copying those too).
func (n *NodeExecution) Clone() *NodeExecution {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Params = cloneMap(n.Params)
	cp.ErrorData = cloneMap(n.ErrorData)
	cp.SuspensionData = cloneMap(n.SuspensionData)
	if n.StartedAt != nil {
		t := *n.StartedAt
		cp.StartedAt = &t
	}
	if n.CompletedAt != nil {
		t := *n.CompletedAt
		cp.CompletedAt = &t
	}
	if n.DurationMs != nil {
		d := *n.DurationMs
		cp.DurationMs = &d
	}
	return &cp
}

// RuntimeNodeEntry is the cached, non-persisted view of a node's latest
// attempt: __runtime.nodes[key].
type RuntimeNodeEntry struct {
	Output  interface{}
	Context map[string]interface{}
}

// Runtime is WorkflowExecution.__runtime: derivable from NodeExecutions
// plus env, never persisted directly, always rebuildable.
type Runtime struct {
	Nodes map[string]RuntimeNodeEntry
	Env   map[string]string
}

// ContextData groups the two mutable state bags executions carry:
// workflow-shared state (visible as $execution.state) and per-node
// context bags (visible as $nodes.<key>.context).
type ContextData struct {
	Workflow map[string]interface{}            `json:"workflow,omitempty"`
	Node     map[string]map[string]interface{} `json:"node,omitempty"`
}

// ExecutionData groups the fields of WorkflowExecution that aren't
// simple scalars: context data and the active-node pool.
type ExecutionData struct {
	ContextData ContextData `json:"context_data"`
	// ActiveNodes maps an active node's key to the execution_index at
	// which it became active.
	ActiveNodes map[string]int `json:"active_nodes"`
}

// WorkflowExecution is the mutable record of one run of a Workflow.
type WorkflowExecution struct {
	ID                string        `json:"id"`
	WorkflowID        string        `json:"workflow_id"`
	WorkflowVersion   int           `json:"workflow_version"`
	ParentExecutionID string        `json:"parent_execution_id,omitempty"`

	ExecutionMode ExecutionMode   `json:"execution_mode"`
	Status        ExecutionStatus `json:"status"`

	TriggerType string                 `json:"trigger_type,omitempty"`
	TriggerData map[string]interface{} `json:"trigger_data,omitempty"`

	Vars map[string]interface{} `json:"vars,omitempty"`

	// NodeExecutions maps node_key -> ordered sequence of attempts.
	NodeExecutions map[string][]*NodeExecution `json:"node_executions"`

	CurrentExecutionIndex int `json:"current_execution_index"`

	SuspendedNodeID string                 `json:"suspended_node_id,omitempty"`
	SuspensionType  SuspensionType         `json:"suspension_type,omitempty"`
	SuspensionData  map[string]interface{} `json:"suspension_data,omitempty"`
	SuspendedAt     *time.Time             `json:"suspended_at,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PreparationData holds per-node pre-execution artifacts, e.g.
	// generated webhook URLs, keyed by node key.
	PreparationData map[string]map[string]interface{} `json:"preparation_data,omitempty"`

	ExecutionData ExecutionData `json:"execution_data"`

	// Runtime is non-persisted; JSON encoding skips it, and callers
	// rebuild it via execution.RebuildRuntime.
	Runtime *Runtime `json:"-"`
}

// NewWorkflowExecution builds a zero-valued, pending execution with all
// maps initialized.
func NewWorkflowExecution(id, workflowID string, version int) *WorkflowExecution {
	return &WorkflowExecution{
		ID:              id,
		WorkflowID:      workflowID,
		WorkflowVersion: version,
		ExecutionMode:   ExecutionModeSync,
		Status:          ExecutionPending,
		Vars:            make(map[string]interface{}),
		NodeExecutions:  make(map[string][]*NodeExecution),
		TriggerData:     make(map[string]interface{}),
		PreparationData: make(map[string]map[string]interface{}),
		ExecutionData: ExecutionData{
			ContextData: ContextData{
				Workflow: make(map[string]interface{}),
				Node:     make(map[string]map[string]interface{}),
			},
			ActiveNodes: make(map[string]int),
		},
		Runtime: &Runtime{
			Nodes: make(map[string]RuntimeNodeEntry),
			Env:   make(map[string]string),
		},
	}
}

// LatestNodeExecution returns the newest attempt for nodeKey, or nil.
func (e *WorkflowExecution) LatestNodeExecution(nodeKey string) *NodeExecution {
	attempts := e.NodeExecutions[nodeKey]
	if len(attempts) == 0 {
		return nil
	}
	return attempts[len(attempts)-1]
}

// NextRunIndex returns the run_index the next attempt of nodeKey should
// use: len(existing attempts).
func (e *WorkflowExecution) NextRunIndex(nodeKey string) int {
	return len(e.NodeExecutions[nodeKey])
}

// NextExecutionIndex reserves and returns the next global execution
// index, incrementing the counter.
func (e *WorkflowExecution) NextExecutionIndex() int {
	idx := e.CurrentExecutionIndex
	e.CurrentExecutionIndex++
	return idx
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
