package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/flow-engine/pkg/api/dto"
	"github.com/LENAX/flow-engine/pkg/core/engine"
	"github.com/LENAX/flow-engine/pkg/core/workflow"
	"github.com/LENAX/flow-engine/pkg/storage"
)

// ExecutionHandler Execution API处理器
type ExecutionHandler struct {
	engine *engine.Engine
	repo   storage.Repository
}

// NewExecutionHandler 创建ExecutionHandler
func NewExecutionHandler(eng *engine.Engine, repo storage.Repository) *ExecutionHandler {
	return &ExecutionHandler{engine: eng, repo: repo}
}

// Get 获取Execution详情
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	exec, err := h.repo.GetExecution(ctx, id, tenantID(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Execution不存在"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询Execution失败: %v", err)))
		return
	}

	progress := dto.ProgressInfo{Total: len(exec.StepResults)}
	for _, r := range exec.StepResults {
		switch r.Status {
		case workflow.StepStatusCompleted:
			progress.Completed++
		case workflow.StepStatusFailed:
			progress.Failed++
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ExecutionDetail{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		Input:       exec.Input,
		Variables:   exec.Variables,
		Progress:    progress,
		Error:       exec.Error,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		CreatedAt:   exec.CreateTime,
	}))
}

// GetSteps 列出Execution下的StepExecution
// GET /api/v1/executions/:id/steps
func (h *ExecutionHandler) GetSteps(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	records, err := h.repo.ListStepExecutions(ctx, id, tenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询StepExecution失败: %v", err)))
		return
	}

	items := make([]dto.StepExecutionDetail, 0, len(records))
	for _, rec := range records {
		detail := dto.StepExecutionDetail{
			StepID:      rec.StepID,
			Status:      rec.Status,
			Output:      rec.Output,
			RetryCount:  rec.RetryCount,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
			Error:       rec.Error,
		}
		if rec.StartedAt != nil && rec.CompletedAt != nil {
			detail.Duration = formatDuration(rec.CompletedAt.Sub(*rec.StartedAt))
		}
		items = append(items, detail)
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.StepExecutionDetail]{
		Total: len(items),
		Items: items,
	}))
}

// Pause 暂停Execution
// POST /api/v1/executions/:id/pause
func (h *ExecutionHandler) Pause(c *gin.Context) {
	h.transition(c, h.engine.Pause, "已暂停")
}

// Resume 恢复Execution
// POST /api/v1/executions/:id/resume
func (h *ExecutionHandler) Resume(c *gin.Context) {
	h.transition(c, h.engine.Resume, "已恢复")
}

// Cancel 取消Execution
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.engine.Cancel, "已取消")
}

// transition 生命周期跃迁的公共处理（内部方法）
// 状态不允许的跃迁返回409
func (h *ExecutionHandler) transition(c *gin.Context, op func(ctx context.Context, executionID, tenantID string) error, message string) {
	ctx := c.Request.Context()
	id := c.Param("id")

	err := op(ctx, id, tenantID(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Execution不存在"))
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, dto.NewErrorResponse(409, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"id":      id,
		"message": message,
	}))
}

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
