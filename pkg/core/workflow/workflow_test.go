package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validate_Basic(t *testing.T) {
	wf := NewWorkflow("tenant-1", "采集流程", "")
	wf.AddStep(&Step{ID: "A", Type: "http_fetch"})
	wf.AddStep(&Step{ID: "B", Type: "transform", DependsOn: []string{"A"}})
	wf.AddStep(&Step{ID: "C", Type: "transform", DependsOn: []string{"A"}})

	require.NoError(t, wf.Validate())
}

func TestWorkflow_Validate_Cycle(t *testing.T) {
	wf := NewWorkflow("tenant-1", "循环流程", "")
	wf.AddStep(&Step{ID: "A", Type: "transform", DependsOn: []string{"B"}})
	wf.AddStep(&Step{ID: "B", Type: "transform", DependsOn: []string{"A"}})

	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "循环依赖")
}

func TestWorkflow_Validate_SelfDependency(t *testing.T) {
	wf := NewWorkflow("tenant-1", "自依赖", "")
	wf.AddStep(&Step{ID: "A", Type: "transform", DependsOn: []string{"A"}})

	require.Error(t, wf.Validate())
}

func TestWorkflow_Validate_DanglingDependency(t *testing.T) {
	wf := NewWorkflow("tenant-1", "悬空依赖", "")
	wf.AddStep(&Step{ID: "A", Type: "transform"})
	wf.AddStep(&Step{ID: "B", Type: "transform", DependsOn: []string{"X"}})

	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不存在的step")
}

func TestWorkflow_Validate_Empty(t *testing.T) {
	wf := NewWorkflow("tenant-1", "空流程", "")
	require.Error(t, wf.Validate())
}

func TestWorkflow_Validate_DuplicateStepID(t *testing.T) {
	wf := NewWorkflow("tenant-1", "重复ID", "")
	wf.AddStep(&Step{ID: "A", Type: "transform"})
	wf.AddStep(&Step{ID: "A", Type: "transform"})

	require.Error(t, wf.Validate())
}

func TestWorkflow_Validate_MissingType(t *testing.T) {
	wf := NewWorkflow("tenant-1", "缺少类型", "")
	wf.AddStep(&Step{ID: "A"})

	require.Error(t, wf.Validate())
}

func TestExecution_Lifecycle(t *testing.T) {
	exec := NewExecution("wf-1", "tenant-1", map[string]any{"source": "manual"})

	assert.Equal(t, ExecutionStatusPending, exec.Status)
	assert.False(t, exec.IsTerminal())
	assert.False(t, exec.StepCompleted("A"))

	exec.StepResults["A"] = &StepResult{Status: StepStatusCompleted}
	assert.True(t, exec.StepCompleted("A"))

	exec.Status = ExecutionStatusCompleted
	assert.True(t, exec.IsTerminal())
}

func TestNewContext_CopiesState(t *testing.T) {
	exec := NewExecution("wf-1", "tenant-1", nil)
	exec.Variables["k"] = "v1"

	ctx := NewContext(exec)
	require.Equal(t, "v1", ctx.Variables["k"])

	// 上下文是快照，修改不回写Execution
	ctx.Variables["k"] = "v2"
	assert.Equal(t, "v1", exec.Variables["k"])
}

func TestStepExecutionID(t *testing.T) {
	assert.Equal(t, "exec-1:step-a", StepExecutionID("exec-1", "step-a"))
}
