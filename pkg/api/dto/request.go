package dto

// TriggerWorkflowRequest 触发Workflow执行请求
type TriggerWorkflowRequest struct {
	Input map[string]any `json:"input" binding:"omitempty"`
}

// SaveWorkflowRequest 保存Workflow定义请求
type SaveWorkflowRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Steps       []SaveStepRequest `json:"steps" binding:"required"`
}

// SaveStepRequest Step定义
type SaveStepRequest struct {
	ID             string         `json:"id" binding:"required"`
	Name           string         `json:"name"`
	Type           string         `json:"type" binding:"required"`
	DependsOn      []string       `json:"depends_on"`
	Config         map[string]any `json:"config"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}
