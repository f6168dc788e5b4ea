package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/flow-engine/pkg/api/dto"
	"github.com/LENAX/flow-engine/pkg/core/engine"
	"github.com/LENAX/flow-engine/pkg/queue"
)

// MetricsHandler 运行指标处理器
type MetricsHandler struct {
	engine *engine.Engine
	queue  queue.Queue
}

// NewMetricsHandler 创建MetricsHandler
func NewMetricsHandler(eng *engine.Engine, q queue.Queue) *MetricsHandler {
	return &MetricsHandler{engine: eng, queue: q}
}

// metricsResponse 指标响应
type metricsResponse struct {
	Engine engine.MetricsSnapshot `json:"engine"`
	Queues map[string]int64       `json:"queues"`
}

// Get 获取引擎计数器与队列深度
// GET /api/v1/metrics
func (h *MetricsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(metricsResponse{
		Engine: h.engine.Metrics().Snapshot(),
		Queues: h.queue.Depths(),
	}))
}
