// Package executor 提供Step操作注册中心与Step执行器。
// 调度器对Step的业务语义一无所知，Step Type到操作函数的映射
// 全部通过注册中心注入，新增Step类型只需注册新实现。
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

// Result Step操作的执行结果（对外导出）
// Output记录在StepExecution上，Variables合并进Execution.Variables
type Result struct {
	Output    map[string]any `json:"output,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// OperationFunc Step操作函数签名（对外导出）
// step为定义（含Config），wfCtx为本次调用的执行上下文快照，不得修改；
// 所有状态变更经由返回值流回Workflow Executor落库
type OperationFunc func(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error)

// OperationRegistry Step操作注册中心（对外导出）
type OperationRegistry struct {
	mu  sync.RWMutex
	ops map[string]OperationFunc // step type -> 操作函数
}

// NewOperationRegistry 创建注册中心实例（对外导出）
func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{
		ops: make(map[string]OperationFunc),
	}
}

// Register 注册Step操作（对外导出）
// 重复注册同一类型返回错误
func (r *OperationRegistry) Register(stepType string, fn OperationFunc) error {
	if stepType == "" {
		return fmt.Errorf("step类型不能为空")
	}
	if fn == nil {
		return fmt.Errorf("操作函数不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[stepType]; exists {
		return fmt.Errorf("step类型 %s 已注册", stepType)
	}
	r.ops[stepType] = fn
	return nil
}

// Get 按类型获取操作函数（对外导出）
// 未注册时返回nil
func (r *OperationRegistry) Get(stepType string) OperationFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[stepType]
}

// Types 列出所有已注册的Step类型（对外导出）
func (r *OperationRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.ops))
	for t := range r.ops {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
