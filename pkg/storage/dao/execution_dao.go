// Package dao 定义与数据库表结构一一对应的DAO结构体。
// map/切片类字段以JSON文本落库，由repository负责序列化。
package dao

import (
	"database/sql"
	"time"
)

// WorkflowDAO workflow_definition表结构（对外导出）
type WorkflowDAO struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreateTime  time.Time `db:"create_time"`
}

// StepDAO step_definition表结构（对外导出）
type StepDAO struct {
	ID             string `db:"id"`
	WorkflowID     string `db:"workflow_id"`
	Name           string `db:"name"`
	Type           string `db:"type"`
	DependsOn      string `db:"depends_on"` // JSON数组
	Config         string `db:"config"`     // JSON对象
	TimeoutSeconds int    `db:"timeout_seconds"`
	Position       int    `db:"position"` // 定义顺序
}

// ExecutionDAO execution表结构（对外导出）
type ExecutionDAO struct {
	ID          string       `db:"id"`
	WorkflowID  string       `db:"workflow_id"`
	TenantID    string       `db:"tenant_id"`
	Status      string       `db:"status"`
	Input       string       `db:"input"`        // JSON对象
	Variables   string       `db:"variables"`    // JSON对象
	StepResults string       `db:"step_results"` // JSON对象（step_id -> StepResult）
	Error       string       `db:"error_message"`
	StartedAt   sql.NullTime `db:"started_at"`
	PausedAt    sql.NullTime `db:"paused_at"`
	ResumedAt   sql.NullTime `db:"resumed_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	CancelledAt sql.NullTime `db:"cancelled_at"`
	CreateTime  time.Time    `db:"create_time"`
}

// StepExecutionDAO step_execution表结构（对外导出）
type StepExecutionDAO struct {
	ID          string       `db:"id"`
	ExecutionID string       `db:"execution_id"`
	StepID      string       `db:"step_id"`
	TenantID    string       `db:"tenant_id"`
	Status      string       `db:"status"`
	Output      string       `db:"output"`    // JSON对象
	Variables   string       `db:"variables"` // JSON对象（完成时操作产出的变量）
	RetryCount  int          `db:"retry_count"`
	LastRetryAt sql.NullTime `db:"last_retry_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	Error       string       `db:"error_message"`
}
