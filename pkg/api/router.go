// Package api 提供引擎的HTTP管理面：Workflow定义管理、执行触发与
// 生命周期操作、指标查询和事件推送。
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/flow-engine/pkg/api/handler"
	"github.com/LENAX/flow-engine/pkg/api/middleware"
	"github.com/LENAX/flow-engine/pkg/core/engine"
	"github.com/LENAX/flow-engine/pkg/events"
	"github.com/LENAX/flow-engine/pkg/queue"
	"github.com/LENAX/flow-engine/pkg/storage"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, repo storage.Repository, q queue.Queue, bus *events.Bus, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(eng, repo)
	executionHandler := handler.NewExecutionHandler(eng, repo)
	healthHandler := handler.NewHealthHandler(version, repo)
	metricsHandler := handler.NewMetricsHandler(eng, q)
	eventsHandler := handler.NewEventsHandler(bus)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// Workflow路由
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Save)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.POST("/:id/trigger", workflowHandler.Trigger)
		}

		// Execution路由
		executions := v1.Group("/executions")
		{
			executions.GET("/:id", executionHandler.Get)
			executions.GET("/:id/steps", executionHandler.GetSteps)
			executions.POST("/:id/pause", executionHandler.Pause)
			executions.POST("/:id/resume", executionHandler.Resume)
			executions.POST("/:id/cancel", executionHandler.Cancel)
		}

		// 运行指标与事件推送
		v1.GET("/metrics", metricsHandler.Get)
		v1.GET("/events/stream", eventsHandler.Stream)
	}

	return router
}
