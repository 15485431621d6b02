package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/internal/service/document"
	"github.com/feichai0017/document-converter/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	service  string
}

func NewHandlers(
	documentService document.DocumentProcessor,
	log logger.Logger,
	maxUpload int64,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log, maxUpload),
		service:  "document-converter",
	}
}

// HealthCheck answers the unauthenticated root route.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
	})
}
