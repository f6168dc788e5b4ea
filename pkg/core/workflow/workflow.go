// Package workflow 定义工作流核心数据模型：Workflow定义、Execution执行实例、
// StepExecution步骤执行记录，以及传递给Step操作函数的上下文。
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execution状态常量（对外导出）
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusPaused    = "paused"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusCancelled = "cancelled"
)

// StepExecution状态常量（对外导出）
const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// Workflow 工作流定义（对外导出）
// 不可变的DAG定义，由若干Step及其依赖关系组成，按租户隔离
type Workflow struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Steps       []*Step   `json:"steps"`
	CreateTime  time.Time `json:"create_time" db:"create_time"`
}

// Step 工作流中的步骤定义（对外导出）
// Type选择要调用的操作函数，DependsOn声明前置Step，Config为操作的不透明参数
type Step struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	DependsOn      []string       `json:"depends_on"`
	Config         map[string]any `json:"config"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

// Execution 工作流的一次执行实例（对外导出）
// Variables由已完成Step的结果累积更新，StepResults记录每个Step的最终结果
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	TenantID    string                 `json:"tenant_id"`
	Status      string                 `json:"status"`
	Input       map[string]any         `json:"input"`
	Variables   map[string]any         `json:"variables"`
	StepResults map[string]*StepResult `json:"step_results"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	PausedAt    *time.Time             `json:"paused_at,omitempty"`
	ResumedAt   *time.Time             `json:"resumed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CancelledAt *time.Time             `json:"cancelled_at,omitempty"`
	CreateTime  time.Time              `json:"create_time"`
}

// StepResult Step在Execution中的结果摘要（对外导出）
// 存储在Execution.StepResults中，用于依赖完成性检查和结果传递
type StepResult struct {
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// StepExecution 单个Step的执行记录（对外导出）
// 以 (ExecutionID, StepID) 复合ID为主键，每对只有一条记录
type StepExecution struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	TenantID    string         `json:"tenant_id"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	RetryCount  int            `json:"retry_count"`
	LastRetryAt *time.Time     `json:"last_retry_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Context 单次Step调用的执行上下文（对外导出）
// 从Execution当前状态组装，按值传递给操作函数，操作函数不得修改
type Context struct {
	ExecutionID string
	WorkflowID  string
	TenantID    string
	Input       map[string]any
	Variables   map[string]any
	StepResults map[string]*StepResult
}

// NewWorkflow 创建Workflow定义（对外导出）
func NewWorkflow(tenantID, name, description string) *Workflow {
	return &Workflow{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		Steps:       make([]*Step, 0),
		CreateTime:  time.Now(),
	}
}

// AddStep 向Workflow添加Step定义（对外导出）
func (w *Workflow) AddStep(step *Step) *Workflow {
	w.Steps = append(w.Steps, step)
	return w
}

// GetStep 根据ID查找Step定义（对外导出）
// 不存在时返回nil
func (w *Workflow) GetStep(stepID string) *Step {
	for _, s := range w.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// NewExecution 创建pending状态的Execution（对外导出）
func NewExecution(workflowID, tenantID string, input map[string]any) *Execution {
	if input == nil {
		input = make(map[string]any)
	}
	return &Execution{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		Status:      ExecutionStatusPending,
		Input:       input,
		Variables:   make(map[string]any),
		StepResults: make(map[string]*StepResult),
		CreateTime:  time.Now(),
	}
}

// IsTerminal 判断Execution是否处于终态（对外导出）
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// StepCompleted 判断指定Step在本Execution中是否已完成（对外导出）
func (e *Execution) StepCompleted(stepID string) bool {
	r, ok := e.StepResults[stepID]
	return ok && r.Status == StepStatusCompleted
}

// NewContext 从Execution当前状态组装Step执行上下文（对外导出）
// Variables和StepResults做浅拷贝，避免操作函数的读取与后续合并写入互相干扰
func NewContext(exec *Execution) *Context {
	vars := make(map[string]any, len(exec.Variables))
	for k, v := range exec.Variables {
		vars[k] = v
	}
	results := make(map[string]*StepResult, len(exec.StepResults))
	for k, v := range exec.StepResults {
		results[k] = v
	}
	return &Context{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		TenantID:    exec.TenantID,
		Input:       exec.Input,
		Variables:   vars,
		StepResults: results,
	}
}

// StepExecutionID 生成StepExecution的复合ID（对外导出）
func StepExecutionID(executionID, stepID string) string {
	return fmt.Sprintf("%s:%s", executionID, stepID)
}

// NewStepExecution 创建running状态的StepExecution记录（对外导出）
func NewStepExecution(executionID, stepID, tenantID string) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:          StepExecutionID(executionID, stepID),
		ExecutionID: executionID,
		StepID:      stepID,
		TenantID:    tenantID,
		Status:      StepStatusRunning,
		StartedAt:   &now,
	}
}
