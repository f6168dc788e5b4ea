package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/flow-engine/pkg/api/dto"
	"github.com/LENAX/flow-engine/pkg/core/engine"
	"github.com/LENAX/flow-engine/pkg/core/workflow"
	"github.com/LENAX/flow-engine/pkg/storage"
)

// tenantID 从请求头提取租户标识，缺省为default
func tenantID(c *gin.Context) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	return "default"
}

// WorkflowHandler Workflow API处理器
type WorkflowHandler struct {
	engine *engine.Engine
	repo   storage.Repository
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine, repo storage.Repository) *WorkflowHandler {
	return &WorkflowHandler{engine: eng, repo: repo}
}

// List 列出租户下所有Workflow定义
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	workflows, err := h.repo.ListWorkflows(ctx, tenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询Workflow失败: %v", err)))
		return
	}

	items := make([]dto.WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		items = append(items, dto.WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			StepCount:   len(wf.Steps),
			CreatedAt:   wf.CreateTime,
		})
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Workflow详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wf, err := h.repo.GetWorkflow(ctx, id, tenantID(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Workflow不存在"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询Workflow失败: %v", err)))
		return
	}

	steps := make([]dto.StepSummary, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		steps = append(steps, dto.StepSummary{
			ID:             s.ID,
			Name:           s.Name,
			Type:           s.Type,
			DependsOn:      s.DependsOn,
			TimeoutSeconds: s.TimeoutSeconds,
		})
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.WorkflowDetail{
		WorkflowSummary: dto.WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			StepCount:   len(wf.Steps),
			CreatedAt:   wf.CreateTime,
		},
		Steps: steps,
	}))
}

// Save 保存Workflow定义
// POST /api/v1/workflows
func (h *WorkflowHandler) Save(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SaveWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	wf := workflow.NewWorkflow(tenantID(c), req.Name, req.Description)
	for _, s := range req.Steps {
		wf.AddStep(&workflow.Step{
			ID:             s.ID,
			Name:           s.Name,
			Type:           s.Type,
			DependsOn:      s.DependsOn,
			Config:         s.Config,
			TimeoutSeconds: s.TimeoutSeconds,
		})
	}
	if err := wf.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("Workflow定义非法: %v", err)))
		return
	}

	if err := h.repo.SaveWorkflow(ctx, wf); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("保存Workflow失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.WorkflowSummary{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		StepCount:   len(wf.Steps),
		CreatedAt:   wf.CreateTime,
	}))
}

// Trigger 触发Workflow执行
// POST /api/v1/workflows/:id/trigger
func (h *WorkflowHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.TriggerWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	exec, err := h.engine.TriggerWorkflow(ctx, id, tenantID(c), req.Input)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Workflow不存在"))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("触发Workflow失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.TriggerResponse{
		ExecutionID: exec.ID,
		Message:     "Workflow已提交执行",
	}))
}
