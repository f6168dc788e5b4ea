package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

func testContext() *workflow.Context {
	return &workflow.Context{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		TenantID:    "tenant-1",
		Variables:   make(map[string]any),
		StepResults: make(map[string]*workflow.StepResult),
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewOperationRegistry()

	err := registry.Register("noop", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		return &Result{}, nil
	})
	require.NoError(t, err)

	assert.NotNil(t, registry.Get("noop"))
	assert.Nil(t, registry.Get("unknown"))
	assert.Equal(t, []string{"noop"}, registry.Types())
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	registry := NewOperationRegistry()
	fn := func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		return nil, nil
	}

	require.NoError(t, registry.Register("noop", fn))
	err := registry.Register("noop", fn)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "已注册")
}

func TestStepExecutor_Execute(t *testing.T) {
	registry := NewOperationRegistry()
	require.NoError(t, registry.Register("echo", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		return &Result{
			Output:    map[string]any{"echo": step.Config["message"]},
			Variables: map[string]any{"last_message": step.Config["message"]},
		}, nil
	}))

	e := NewStepExecutor(registry, 0)
	step := &workflow.Step{ID: "s1", Type: "echo", Config: map[string]any{"message": "hello"}}

	result, err := e.Execute(context.Background(), step, testContext())
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Output["echo"])
	assert.Equal(t, "hello", result.Variables["last_message"])
}

func TestStepExecutor_UnregisteredType(t *testing.T) {
	e := NewStepExecutor(NewOperationRegistry(), 0)
	step := &workflow.Step{ID: "s1", Type: "unknown"}

	_, err := e.Execute(context.Background(), step, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未注册")
}

func TestStepExecutor_Timeout(t *testing.T) {
	registry := NewOperationRegistry()
	require.NoError(t, registry.Register("slow", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return &Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	e := NewStepExecutor(registry, 0)
	step := &workflow.Step{ID: "s1", Type: "slow", TimeoutSeconds: 1}

	start := time.Now()
	_, err := e.Execute(context.Background(), step, testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestStepExecutor_PanicRecovery(t *testing.T) {
	registry := NewOperationRegistry()
	require.NoError(t, registry.Register("boom", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		panic("something broke")
	}))

	e := NewStepExecutor(registry, 0)
	step := &workflow.Step{ID: "s1", Type: "boom"}

	_, err := e.Execute(context.Background(), step, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestStepExecutor_NilResult(t *testing.T) {
	registry := NewOperationRegistry()
	require.NoError(t, registry.Register("nilop", func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
		return nil, nil
	}))

	e := NewStepExecutor(registry, 0)
	result, err := e.Execute(context.Background(), &workflow.Step{ID: "s1", Type: "nilop"}, testContext())
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestRegisterBuiltins(t *testing.T) {
	registry := NewOperationRegistry()
	require.NoError(t, RegisterBuiltins(registry))

	for _, stepType := range []string{StepTypeHTTPFetch, StepTypeHTMLExtract, StepTypeTransform, StepTypeDelay} {
		assert.NotNil(t, registry.Get(stepType), stepType)
	}
}

func TestHTMLExtractOperation(t *testing.T) {
	wfCtx := testContext()
	wfCtx.Variables["body"] = `<html><body><ul><li class="item">苹果</li><li class="item">香蕉</li></ul></body></html>`

	step := &workflow.Step{
		ID:   "extract",
		Type: StepTypeHTMLExtract,
		Config: map[string]any{
			"selector": "li.item",
			"save_as":  "items",
		},
	}

	result, err := HTMLExtractOperation(context.Background(), step, wfCtx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Output["matched"])
	assert.Equal(t, []any{"苹果", "香蕉"}, result.Variables["items"])
}

func TestHTMLExtractOperation_MissingSource(t *testing.T) {
	step := &workflow.Step{
		ID:     "extract",
		Type:   StepTypeHTMLExtract,
		Config: map[string]any{"selector": "div"},
	}

	_, err := HTMLExtractOperation(context.Background(), step, testContext())
	assert.Error(t, err)
}

func TestTransformOperation(t *testing.T) {
	wfCtx := testContext()
	wfCtx.Variables["raw_title"] = "每日报表"
	wfCtx.Variables["raw_count"] = 42

	step := &workflow.Step{
		ID:   "transform",
		Type: StepTypeTransform,
		Config: map[string]any{
			"mapping": map[string]any{
				"title": "raw_title",
				"count": "raw_count",
			},
		},
	}

	result, err := TransformOperation(context.Background(), step, wfCtx)
	require.NoError(t, err)
	assert.Equal(t, "每日报表", result.Variables["title"])
	assert.Equal(t, 42, result.Variables["count"])
}

func TestTransformOperation_MissingSourceKey(t *testing.T) {
	step := &workflow.Step{
		ID:   "transform",
		Type: StepTypeTransform,
		Config: map[string]any{
			"mapping": map[string]any{"title": "nonexistent"},
		},
	}

	_, err := TransformOperation(context.Background(), step, testContext())
	assert.Error(t, err)
}

func TestDelayOperation(t *testing.T) {
	step := &workflow.Step{
		ID:     "wait",
		Type:   StepTypeDelay,
		Config: map[string]any{"duration": "50ms"},
	}

	start := time.Now()
	result, err := DelayOperation(context.Background(), step, testContext())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, "50ms", result.Output["waited"])
}

func TestDelayOperation_InvalidDuration(t *testing.T) {
	step := &workflow.Step{
		ID:     "wait",
		Type:   StepTypeDelay,
		Config: map[string]any{"duration": "not-a-duration"},
	}

	_, err := DelayOperation(context.Background(), step, testContext())
	assert.Error(t, err)
}

func TestHTTPFetchOperation_MissingURL(t *testing.T) {
	step := &workflow.Step{ID: "fetch", Type: StepTypeHTTPFetch, Config: map[string]any{}}

	_, err := HTTPFetchOperation(context.Background(), step, testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestStepExecutor_ConcurrentRegistryAccess(t *testing.T) {
	registry := NewOperationRegistry()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = registry.Register(fmt.Sprintf("type-%d", i), func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
				return &Result{}, nil
			})
		}
	}()

	for i := 0; i < 50; i++ {
		registry.Get("type-0")
		registry.Types()
	}
	<-done
}
