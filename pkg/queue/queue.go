// Package queue 定义持久化任务队列契约及其watermill实现。
// 三个逻辑队列相互独立：workflow-start / step-run / step-retry，
// 重试流量与首次调度分开，避免互相饿死。
// 投递语义为at-least-once，处理器必须自行幂等。
package queue

import (
	"context"
	"time"
)

// 逻辑队列Topic常量（对外导出）
const (
	TopicWorkflowStart = "workflow.start"
	TopicStepRun       = "workflow.step.run"
	TopicStepRetry     = "workflow.step.retry"
)

// WorkflowStartJob 启动工作流任务（对外导出）
type WorkflowStartJob struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	TenantID    string `json:"tenant_id"`
}

// StepJob 执行Step任务（对外导出）
type StepJob struct {
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	TenantID    string `json:"tenant_id"`
}

// StepRetryJob 重试Step任务（对外导出）
// Attempt为即将执行的重试序号（从1开始）
type StepRetryJob struct {
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	TenantID    string `json:"tenant_id"`
	Attempt     int    `json:"attempt"`
}

// Queue 任务队列契约（对外导出）
// delay>0表示延迟投递（重试退避使用）；RemovePendingJobs为尽力而为的
// 取消，已被worker认领的任务不会被打断
type Queue interface {
	// AddWorkflowStart 投递启动工作流任务
	AddWorkflowStart(ctx context.Context, job *WorkflowStartJob) error

	// AddStepExecution 投递Step执行任务
	AddStepExecution(ctx context.Context, job *StepJob, delay time.Duration) error

	// AddStepRetry 投递Step重试任务（独立Topic）
	AddStepRetry(ctx context.Context, job *StepRetryJob, delay time.Duration) error

	// RemovePendingJobs 尽力移除指定Execution所有未认领的任务
	RemovePendingJobs(ctx context.Context, executionID string) error

	// Depths 各逻辑队列当前深度（含未触发的延迟任务）
	Depths() map[string]int64

	// Close 关闭队列
	Close() error
}

// JobHandler 任务处理器契约（对外导出）
// 由Workflow Executor实现；返回非nil错误时任务会被重新投递（at-least-once），
// 不可重试的业务错误应在处理器内部吸收并落库
type JobHandler interface {
	HandleWorkflowStart(ctx context.Context, job *WorkflowStartJob) error
	HandleRunStep(ctx context.Context, job *StepJob) error
	HandleRetryStep(ctx context.Context, job *StepRetryJob) error
}
