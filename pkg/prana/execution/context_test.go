package execution

import (
	"testing"

	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphForTest() *model.ExecutionGraph {
	return &model.ExecutionGraph{
		ConnectionMap: map[model.ConnectionKey][]model.Connection{
			{NodeKey: "a", Port: "main"}: {{From: "a", FromPort: "main", To: "b", ToPort: "main"}},
		},
		ReverseConnectionMap: map[string][]model.Connection{
			"b": {{From: "a", FromPort: "main", To: "b", ToPort: "main"}},
		},
	}
}

func TestCompleteNodeActivatesDownstream(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	graph := graphForTest()

	ne := &model.NodeExecution{NodeKey: "a", Status: model.NodeStatusCompleted, OutputPort: "main", OutputData: "x", ExecutionIndex: 0}
	CompleteNode(exec, graph, ne)

	assert.Contains(t, exec.ExecutionData.ActiveNodes, "b")
	assert.NotContains(t, exec.ExecutionData.ActiveNodes, "a")
	assert.Equal(t, "x", exec.Runtime.Nodes["a"].Output)
}

func TestCompleteNodeLoopbackStaysActive(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	graph := &model.ExecutionGraph{
		ConnectionMap: map[model.ConnectionKey][]model.Connection{
			{NodeKey: "a", Port: "main"}: {{From: "a", FromPort: "main", To: "a", ToPort: "main"}},
		},
	}
	ne := &model.NodeExecution{NodeKey: "a", Status: model.NodeStatusCompleted, OutputPort: "main", ExecutionIndex: 0}
	CompleteNode(exec, graph, ne)
	assert.Contains(t, exec.ExecutionData.ActiveNodes, "a")
}

func TestUpdateNodeContextDeepMerge(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	UpdateNodeContext(exec, "loop1", map[string]interface{}{"iteration": int64(0), "nested": map[string]interface{}{"a": 1}})
	UpdateNodeContext(exec, "loop1", map[string]interface{}{"iteration": int64(1), "nested": map[string]interface{}{"b": 2}})

	ctx := exec.ExecutionData.ContextData.Node["loop1"]
	assert.Equal(t, int64(1), ctx["iteration"])
	nested := ctx["nested"].(map[string]interface{})
	assert.Equal(t, 1, nested["a"])
	assert.Equal(t, 2, nested["b"])
}

func TestExtractMultiPortInputLatestWins(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	graph := &model.ExecutionGraph{
		ReverseConnectionMap: map[string][]model.Connection{
			"target": {
				{From: "src1", FromPort: "main", To: "target", ToPort: "main"},
				{From: "src2", FromPort: "main", To: "target", ToPort: "main"},
			},
		},
	}
	exec.NodeExecutions["src1"] = []*model.NodeExecution{
		{NodeKey: "src1", Status: model.NodeStatusCompleted, OutputPort: "main", OutputData: "first", ExecutionIndex: 1},
	}
	exec.NodeExecutions["src2"] = []*model.NodeExecution{
		{NodeKey: "src2", Status: model.NodeStatusCompleted, OutputPort: "main", OutputData: "second", ExecutionIndex: 2},
	}

	input := ExtractMultiPortInput(graph, exec, "target")
	assert.Equal(t, "second", input["main"])
}

func TestDependencySatisfied(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	graph := graphForTest()

	require.False(t, DependencySatisfied(graph, exec, "b"))

	exec.NodeExecutions["a"] = []*model.NodeExecution{
		{NodeKey: "a", Status: model.NodeStatusCompleted, OutputPort: "main", ExecutionIndex: 0},
	}
	require.True(t, DependencySatisfied(graph, exec, "b"))
}

func TestRebuildRuntimeIsIdempotent(t *testing.T) {
	exec := model.NewWorkflowExecution("e1", "wf1", 1)
	exec.NodeExecutions["a"] = []*model.NodeExecution{
		{NodeKey: "a", Status: model.NodeStatusCompleted, OutputData: "v1", ExecutionIndex: 0},
		{NodeKey: "a", Status: model.NodeStatusCompleted, OutputData: "v2", ExecutionIndex: 1},
	}
	RebuildRuntime(exec, map[string]string{"X": "1"})
	assert.Equal(t, "v2", exec.Runtime.Nodes["a"].Output)

	RebuildRuntime(exec, map[string]string{"X": "1"})
	assert.Equal(t, "v2", exec.Runtime.Nodes["a"].Output)
}
