package scheduler

import (
	"testing"
	"time"

	"github.com/bluzky/prana/internal/actions/builtin"
	"github.com/bluzky/prana/pkg/prana/executor"
	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/bluzky/prana/pkg/prana/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuiltinRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Integration{Name: "test-trigger", Actions: []registry.Descriptor{
		{Name: "core.trigger", OutputPorts: []string{"main"}, Action: &echoAction{port: "main"}},
	}}))
	require.NoError(t, builtin.Register(reg))
	return reg
}

// Scenario 1: Sequential.
func TestScenarioSequential(t *testing.T) {
	reg := newBuiltinRegistry(t)
	wf := &model.Workflow{
		ID: "wf-seq", Version: 1,
		Nodes: []model.Node{
			{Key: "trigger", Type: "core.trigger"},
			{Key: "set_data", Type: "data.set_data", Params: map[string]interface{}{
				"data": map[string]interface{}{"user_id": "$input.user_id", "age": "$input.age"},
			}},
		},
		Connections: map[string]map[string][]model.Connection{
			"trigger": {"main": {{From: "trigger", FromPort: "main", To: "set_data", ToPort: "main"}}},
		},
	}
	wf.Normalize()
	graph := buildGraph(t, wf, reg)

	ge := New(graph, executor.New(reg))
	exec := ge.InitializeExecution("e1", "wf-seq", 1, map[string]interface{}{"user_id": "u1", "name": "J", "age": 25})
	require.NoError(t, ge.ExecuteWorkflow(exec))

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	out := exec.LatestNodeExecution("set_data").OutputData.(map[string]interface{})
	assert.Equal(t, 25, out["age"])
}

// Scenario 2: Conditional.
func TestScenarioConditional(t *testing.T) {
	reg := newBuiltinRegistry(t)
	buildWF := func() *model.Workflow {
		wf := &model.Workflow{
			ID: "wf-cond", Version: 1,
			Nodes: []model.Node{
				{Key: "trigger", Type: "core.trigger"},
				{Key: "set_data", Type: "data.set_data", Params: map[string]interface{}{
					"data": map[string]interface{}{"age": "$input.age"},
				}},
				{Key: "age_check", Type: "logic.if_condition", Params: map[string]interface{}{
					"condition": "nodes.set_data.output.age >= 18",
				}},
				{Key: "process_adult", Type: "data.set_data", Params: map[string]interface{}{"data": "adult"}},
				{Key: "process_minor", Type: "data.set_data", Params: map[string]interface{}{"data": "minor"}},
			},
			Connections: map[string]map[string][]model.Connection{
				"trigger":   {"main": {{From: "trigger", FromPort: "main", To: "set_data", ToPort: "main"}}},
				"set_data":  {"main": {{From: "set_data", FromPort: "main", To: "age_check", ToPort: "main"}}},
				"age_check": {
					"true":  {{From: "age_check", FromPort: "true", To: "process_adult", ToPort: "main"}},
					"false": {{From: "age_check", FromPort: "false", To: "process_minor", ToPort: "main"}},
				},
			},
		}
		wf.Normalize()
		return wf
	}

	t.Run("adult", func(t *testing.T) {
		wf := buildWF()
		graph := buildGraph(t, wf, reg)
		ge := New(graph, executor.New(reg))
		exec := ge.InitializeExecution("e1", "wf-cond", 1, map[string]interface{}{"age": 25})
		require.NoError(t, ge.ExecuteWorkflow(exec))

		assert.Equal(t, model.ExecutionCompleted, exec.Status)
		assert.Len(t, exec.NodeExecutions["process_adult"], 1)
		assert.Empty(t, exec.NodeExecutions["process_minor"])
	})

	t.Run("minor", func(t *testing.T) {
		wf := buildWF()
		graph := buildGraph(t, wf, reg)
		ge := New(graph, executor.New(reg))
		exec := ge.InitializeExecution("e2", "wf-cond", 1, map[string]interface{}{"age": 16})
		require.NoError(t, ge.ExecuteWorkflow(exec))

		assert.Equal(t, model.ExecutionCompleted, exec.Status)
		assert.Len(t, exec.NodeExecutions["process_minor"], 1)
		assert.Empty(t, exec.NodeExecutions["process_adult"])
	})
}

// Scenario 4: Wait (short) sleeps in place and completes without suspending.
func TestScenarioWaitShort(t *testing.T) {
	reg := newBuiltinRegistry(t)
	wf := &model.Workflow{
		ID: "wf-wait-short", Version: 1,
		Nodes: []model.Node{
			{Key: "trigger", Type: "core.trigger"},
			{Key: "wait_timer", Type: "wait.wait", Params: map[string]interface{}{"mode": "interval", "duration": int64(5)}},
		},
		Connections: map[string]map[string][]model.Connection{
			"trigger": {"main": {{From: "trigger", FromPort: "main", To: "wait_timer", ToPort: "main"}}},
		},
	}
	wf.Normalize()
	graph := buildGraph(t, wf, reg)

	ge := New(graph, executor.New(reg))
	exec := ge.InitializeExecution("e1", "wf-wait-short", 1, nil)
	require.NoError(t, ge.ExecuteWorkflow(exec))

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Len(t, exec.NodeExecutions["wait_timer"], 1)
	assert.Empty(t, exec.NodeExecutions["wait_timer"][0].SuspensionType)
}

// Scenario 5: Wait (long) suspends, then completes once resumed.
func TestScenarioWaitLong(t *testing.T) {
	reg := newBuiltinRegistry(t)
	wf := &model.Workflow{
		ID: "wf-wait-long", Version: 1,
		Nodes: []model.Node{
			{Key: "trigger", Type: "core.trigger"},
			{Key: "wait_timer", Type: "wait.wait", Params: map[string]interface{}{"mode": "interval", "duration": int64(120000)}},
		},
		Connections: map[string]map[string][]model.Connection{
			"trigger": {"main": {{From: "trigger", FromPort: "main", To: "wait_timer", ToPort: "main"}}},
		},
	}
	wf.Normalize()
	graph := buildGraph(t, wf, reg)

	ge := New(graph, executor.New(reg))
	ge.Clock = func() time.Time { return time.Unix(0, 0) }
	exec := ge.InitializeExecution("e1", "wf-wait-long", 1, nil)
	require.NoError(t, ge.ExecuteWorkflow(exec))

	require.Equal(t, model.ExecutionSuspended, exec.Status)
	assert.Equal(t, "wait_timer", exec.SuspendedNodeID)
	assert.Equal(t, "interval", string(exec.SuspensionType))

	require.NoError(t, ge.ResumeWorkflow(exec, map[string]interface{}{}))
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
}

// Scenario 6: Sub-workflow fire-and-forget completes immediately once
// the runner enqueues the child and resumes with its enqueue receipt.
func TestScenarioSubWorkflowFireAndForget(t *testing.T) {
	reg := newBuiltinRegistry(t)
	wf := &model.Workflow{
		ID: "wf-faf", Version: 1,
		Nodes: []model.Node{
			{Key: "trigger", Type: "core.trigger"},
			{Key: "spawn_child", Type: "workflow.run_workflow", Params: map[string]interface{}{
				"workflow_id":    "W",
				"execution_mode": "fire_and_forget",
			}},
		},
		Connections: map[string]map[string][]model.Connection{
			"trigger": {"main": {{From: "trigger", FromPort: "main", To: "spawn_child", ToPort: "main"}}},
		},
	}
	wf.Normalize()
	graph := buildGraph(t, wf, reg)

	ge := New(graph, executor.New(reg))
	exec := ge.InitializeExecution("e1", "wf-faf", 1, nil)
	require.NoError(t, ge.ExecuteWorkflow(exec))

	require.Equal(t, model.ExecutionSuspended, exec.Status)
	assert.Equal(t, "sub_workflow_fire_forget", string(exec.SuspensionType))
	workflowID := exec.SuspensionData["workflow_id"]

	require.NoError(t, ge.ResumeWorkflow(exec, map[string]interface{}{
		"sub_workflow_status": "enqueued",
		"workflow_id":         workflowID,
	}))
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	out := exec.LatestNodeExecution("spawn_child").OutputData.(map[string]interface{})
	assert.Equal(t, "enqueued", out["sub_workflow_status"])
}
