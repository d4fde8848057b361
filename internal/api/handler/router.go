package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers every route on a fresh engine.
func NewRouter(workflows *WorkflowHandler, ops *OpsHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api := router.Group("/api/v1")
	{
		wf := api.Group("/workflows")
		wf.POST("", workflows.StartWorkflow)
		wf.GET("/:id", workflows.GetWorkflow)
		wf.POST("/:id/steps", workflows.UpdateStep)
		wf.POST("/:id/suppliers", workflows.UpdateSuppliers)
		wf.POST("/:id/complete", workflows.CompleteWorkflow)
		wf.POST("/:id/customer-decision", workflows.RecordCustomerDecision)
		wf.POST("/:id/alerts/resolve", workflows.ResolveAlert)
		wf.POST("/:id/recovery/cancel", workflows.CancelRecovery)

		api.POST("/sweeps/:name", ops.RunSweep)
		api.GET("/health/summary", ops.HealthSummary)

		api.GET("/circuit-breakers", ops.ListBreakers)
		api.POST("/circuit-breakers/reset", ops.ResetAllBreakers)
		api.POST("/circuit-breakers/:service/reset", ops.ResetBreaker)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
