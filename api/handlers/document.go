package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/internal/format"
	"github.com/feichai0017/document-converter/internal/service/document"
	"github.com/feichai0017/document-converter/internal/utils/validator"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

const (
	// HeaderFilename names a raw upload, or overrides a multipart filename.
	HeaderFilename = "X-Filename"
	// HeaderFormat carries the detected format on conversion responses.
	HeaderFormat = "X-Document-Format"

	contentTypeMarkdown = "text/markdown; charset=utf-8"
)

type DocumentHandler struct {
	service   document.DocumentProcessor
	logger    logger.Logger
	maxUpload int64
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	Format    string `json:"format"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FormatInfo is one entry of the format registry listing.
type FormatInfo struct {
	Format     string   `json:"format"`
	Extensions []string `json:"extensions"`
	MimeTypes  []string `json:"mimeTypes"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{
		service:   service,
		logger:    log,
		maxUpload: maxUpload,
	}
}

// Convert converts a multipart upload and returns the Markdown body.
func (h *DocumentHandler) Convert(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	content, err := validator.ReadLimited(file, h.maxUpload)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	filename := header.Filename
	if name := requestFilename(c); name != "" {
		filename = name
	}
	h.convert(c, filename, content)
}

// ConvertRaw converts a request body. The filename comes from X-Filename or
// is derived from Content-Type.
func (h *DocumentHandler) ConvertRaw(c *gin.Context) {
	content, err := validator.ReadLimited(c.Request.Body, h.maxUpload)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	filename := requestFilename(c)
	if filename == "" {
		filename = format.FilenameForMime(c.ContentType())
	}
	h.convert(c, filename, content)
}

func (h *DocumentHandler) convert(c *gin.Context, filename string, content []byte) {
	doc, err := h.service.Convert(c.Request.Context(), filename, content)
	if err != nil {
		h.serviceError(c, "Conversion failed", err)
		return
	}

	c.Header(HeaderFormat, string(doc.Metadata.Format))
	c.Data(http.StatusOK, contentTypeMarkdown, []byte(doc.Markdown))
}

// Detect reports the format of a multipart upload or a raw body.
func (h *DocumentHandler) Detect(c *gin.Context) {
	var (
		content  []byte
		filename string
		err      error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid file upload", ferr)
			return
		}
		defer file.Close()
		filename = header.Filename
		content, err = validator.ReadLimited(file, h.maxUpload)
	} else {
		content, err = validator.ReadLimited(c.Request.Body, h.maxUpload)
	}
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	if name := requestFilename(c); name != "" {
		filename = name
	}

	c.JSON(http.StatusOK, h.service.Detect(content, filename))
}

// Formats lists every supported format with its extensions and MIME types.
func (h *DocumentHandler) Formats(c *gin.Context) {
	formats := format.Formats()
	infos := make([]FormatInfo, 0, len(formats))
	for _, f := range formats {
		infos = append(infos, FormatInfo{
			Format:     string(f),
			Extensions: format.ExtensionsFor(f),
			MimeTypes:  format.MimeTypesFor(f),
		})
	}
	c.JSON(http.StatusOK, gin.H{"formats": infos})
}

// ProcessDocument 处理单个文档
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	task, err := h.service.ProcessFile(c.Request.Context(), file, header)
	if err != nil {
		h.serviceError(c, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		Format:    string(task.Format),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// ProcessBatch 批量处理文档
func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		h.serviceError(c, "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = ProcessResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Filename:  task.Metadata["filename"],
			FileSize:  files[i].Size,
			Format:    string(task.Format),
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d documents", len(files)),
		"tasks":   responses,
	})
}

// GetStatus 获取处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.serviceError(c, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"format":    string(task.Format),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

// DownloadResult 下载处理结果. ?format=markdown returns the Markdown body
// instead of the JSON document.
func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	result, err := h.service.GetProcessedDocument(c.Request.Context(), taskID)
	if err != nil {
		h.serviceError(c, "Failed to get result", err)
		return
	}

	if c.Query("format") == "markdown" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", markdownName(result.Metadata.FileName, taskID)))
		c.Data(http.StatusOK, contentTypeMarkdown, []byte(result.Markdown))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.JSON(http.StatusOK, result)
}

// CancelTask 取消处理任务
func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.serviceError(c, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var decodeErr *format.DecodeError
	switch {
	case errors.Is(err, document.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, document.ErrInvalidDocument),
		errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrAsyncDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, document.ErrTaskNotCompleted),
		errors.Is(err, queue.ErrTaskFinished):
		return http.StatusConflict
	case errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// serviceError 处理服务层错误: 客户端错误记 warn, 其余记 error
func (h *DocumentHandler) serviceError(c *gin.Context, message string, err error) {
	h.respondError(c, statusFor(err), message, err, document.IsClientError(err))
}

// handleError 处理请求解析错误
func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.respondError(c, status, message, err, status < http.StatusInternalServerError)
}

func (h *DocumentHandler) respondError(c *gin.Context, status int, message string, err error, clientFault bool) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if clientFault {
		h.logger.Warn(message, fields...)
	} else {
		h.logger.Error(message, fields...)
	}

	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	if err != nil {
		response.Message = fmt.Sprintf("%s: %v", message, err)
	}

	c.AbortWithStatusJSON(status, response)
}

// requestFilename reads X-Filename, falling back to a bare Filename header.
func requestFilename(c *gin.Context) string {
	if name := c.GetHeader(HeaderFilename); name != "" {
		return filepath.Base(name)
	}
	if name := c.GetHeader("Filename"); name != "" {
		return filepath.Base(name)
	}
	return ""
}

func markdownName(filename, taskID string) string {
	if filename == "" {
		return taskID + ".md"
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".md"
}
