package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/api/handlers"
	"github.com/feichai0017/document-converter/api/middleware"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, apiKey string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	// 健康检查
	r.GET("/", h.HealthCheck)

	auth := r.Group("/")
	auth.Use(middleware.APIKey(apiKey))
	{
		auth.POST("/convert", h.Document.Convert)
		auth.POST("/convert/raw", h.Document.ConvertRaw)
		auth.POST("/detect", h.Document.Detect)
		auth.GET("/formats", h.Document.Formats)
	}

	// 文档处理路由组
	docs := r.Group("/api/v1/documents")
	docs.Use(middleware.APIKey(apiKey))
	{
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}
}
