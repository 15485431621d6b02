package document

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/converters"
	"github.com/feichai0017/document-converter/pkg/queue"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrAsyncDisabled     = errors.New("async processing is disabled")
	ErrTaskNotCompleted  = errors.New("task is not completed")
)

// DetectionResult is the outcome of format detection for one upload.
type DetectionResult struct {
	Filename  string        `json:"filename"`
	Format    models.Format `json:"format"`
	Supported bool          `json:"supported"`
	MimeType  string        `json:"mimeType,omitempty"`
}

type DocumentProcessor interface {
	// Detect identifies the format of content without converting it.
	Detect(content []byte, filename string) DetectionResult
	// Convert turns content into Markdown synchronously.
	Convert(ctx context.Context, filename string, content []byte) (*converters.ProcessedDocument, error)

	// AsyncEnabled reports whether storage and queue are configured.
	AsyncEnabled() bool
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
}
