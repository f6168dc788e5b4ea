package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

const defaultStepTimeout = 30 * time.Second

// StepExecutor Step执行器（对外导出）
// 根据Step.Type从注册中心取出操作函数并调用到完成或失败，
// 超时由Step定义控制，调度器不参与
type StepExecutor struct {
	registry       *OperationRegistry
	defaultTimeout time.Duration
}

// NewStepExecutor 创建Step执行器实例（对外导出）
func NewStepExecutor(registry *OperationRegistry, defaultTimeout time.Duration) *StepExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultStepTimeout
	}
	return &StepExecutor{
		registry:       registry,
		defaultTimeout: defaultTimeout,
	}
}

// Execute 执行Step绑定的操作（对外导出）
// 操作panic会被捕获并转为错误返回；超时返回context.DeadlineExceeded包装错误
func (e *StepExecutor) Execute(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
	fn := e.registry.Get(step.Type)
	if fn == nil {
		return nil, fmt.Errorf("step类型 %s 未注册操作函数", step.Type)
	}

	timeout := e.defaultTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("step操作panic: %v", r)}
			}
		}()
		result, err := fn(ctx, step, wfCtx)
		done <- outcome{result: result, err: err}
	}()

	startTime := time.Now()
	select {
	case o := <-done:
		if o.err != nil {
			log.Printf("❌ [Step执行失败] ExecutionID=%s, StepID=%s, Type=%s, 耗时=%dms, 错误=%v",
				wfCtx.ExecutionID, step.ID, step.Type, time.Since(startTime).Milliseconds(), o.err)
			return nil, o.err
		}
		if o.result == nil {
			o.result = &Result{}
		}
		log.Printf("✅ [Step执行成功] ExecutionID=%s, StepID=%s, Type=%s, 耗时=%dms",
			wfCtx.ExecutionID, step.ID, step.Type, time.Since(startTime).Milliseconds())
		return o.result, nil
	case <-ctx.Done():
		log.Printf("⏱️  [Step执行超时] ExecutionID=%s, StepID=%s, Type=%s, 超时=%v",
			wfCtx.ExecutionID, step.ID, step.Type, timeout)
		return nil, fmt.Errorf("step %s 执行超时（%v）: %w", step.ID, timeout, ctx.Err())
	}
}
