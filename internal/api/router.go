package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlexanderCholiy/resume-safari/internal/api/middleware"
	"github.com/AlexanderCholiy/resume-safari/internal/metrics"
)

// NewRouter 构建带公共中间件的 Gin 引擎，并暴露健康检查与受保护的指标端点。
func NewRouter(logger *slog.Logger, internalSecret string) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", middleware.InternalSecretMiddleware(internalSecret), metrics.Handler())

	return router
}
