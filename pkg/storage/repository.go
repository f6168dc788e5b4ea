// Package storage 定义持久化层契约：Workflow定义、Execution与StepExecution的
// 租户隔离存储。所有读写必须携带tenantID，跨租户访问一律返回ErrNotFound。
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

var (
	// ErrNotFound 记录不存在，或tenantID不匹配（对外导出）
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists 记录已存在，幂等创建时返回（对外导出）
	ErrAlreadyExists = errors.New("record already exists")
)

// ExecutionPatch Execution的部分更新（对外导出）
// nil字段不更新；Variables和StepResults按键合并到已存储的值中，
// 而不是整体替换，保证并发完成的Step互不覆盖
type ExecutionPatch struct {
	Status      *string
	Error       *string
	Variables   map[string]any
	StepResults map[string]*workflow.StepResult
	StartedAt   *time.Time
	PausedAt    *time.Time
	ResumedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// StepExecutionPatch StepExecution的部分更新（对外导出）
// Output和Variables为非nil时整体替换
type StepExecutionPatch struct {
	Status      *string
	Output      map[string]any
	Variables   map[string]any
	Error       *string
	RetryCount  *int
	LastRetryAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Repository 持久化层契约（对外导出）
// 实现必须保证UpdateExecution的合并更新是原子的（行锁内读改写或服务端合并），
// 因为两个并发完成的Step可能同时向variables/step_results追加数据
type Repository interface {
	// ========== Workflow定义 ==========

	// SaveWorkflow 保存Workflow定义及其Step（幂等，已存在则整体替换）
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// GetWorkflow 按ID和租户获取Workflow定义（含Step）
	GetWorkflow(ctx context.Context, workflowID, tenantID string) (*workflow.Workflow, error)

	// ListWorkflows 列出租户下所有Workflow定义（含Step）
	ListWorkflows(ctx context.Context, tenantID string) ([]*workflow.Workflow, error)

	// ========== Execution ==========

	// CreateExecution 创建Execution记录
	CreateExecution(ctx context.Context, exec *workflow.Execution) error

	// GetExecution 按ID和租户获取Execution
	GetExecution(ctx context.Context, executionID, tenantID string) (*workflow.Execution, error)

	// UpdateExecution 对Execution做原子合并更新
	UpdateExecution(ctx context.Context, executionID, tenantID string, patch *ExecutionPatch) error

	// ListExecutionsByStatus 按状态列出所有租户的Execution（引擎重启恢复用）
	ListExecutionsByStatus(ctx context.Context, status string) ([]*workflow.Execution, error)

	// ========== StepExecution ==========

	// CreateStepExecution 创建StepExecution记录
	// 相同复合ID已存在时返回ErrAlreadyExists（幂等创建，吸收重复投递）
	CreateStepExecution(ctx context.Context, rec *workflow.StepExecution) error

	// GetStepExecution 按复合ID和租户获取StepExecution
	GetStepExecution(ctx context.Context, id, tenantID string) (*workflow.StepExecution, error)

	// UpdateStepExecution 对StepExecution做部分更新
	UpdateStepExecution(ctx context.Context, id, tenantID string, patch *StepExecutionPatch) error

	// ListStepExecutions 列出Execution下的所有StepExecution
	ListStepExecutions(ctx context.Context, executionID, tenantID string) ([]*workflow.StepExecution, error)

	// ========== 运维 ==========

	// Ping 检查存储连通性（健康检查用）
	Ping(ctx context.Context) error

	// Close 关闭底层连接
	Close() error
}
