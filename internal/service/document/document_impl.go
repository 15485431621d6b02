package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/agent"
	processor "github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/format"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/utils/validator"
	"github.com/feichai0017/document-converter/pkg/converters"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
	"github.com/feichai0017/document-converter/pkg/storage"
)

// ProcessorProvider looks up the processor for a format.
type ProcessorProvider interface {
	GetProcessor(format models.Format) (processor.Processor, error)
}

type DocumentService struct {
	processors ProcessorProvider
	resolver   *format.Resolver
	validator  *validator.DocumentValidator
	converter  converters.DocumentConverter
	queue      queue.Queue
	storage    storage.Storage
	logger     logger.Logger
	config     *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize     int64
	QueuePriority   int
	MaxConcurrent   int
	RetentionPeriod time.Duration
	// AllowedFormats limits accepted uploads; empty accepts every format.
	AllowedFormats []models.Format
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxFileSize:     50 * 1024 * 1024, // 50MB
		QueuePriority:   2,
		MaxConcurrent:   5,
		RetentionPeriod: 24 * time.Hour,
	}
}

type Option func(*DocumentService)

// WithAsync enables the task API. Both q and store must be non-nil.
func WithAsync(q queue.Queue, store storage.Storage) Option {
	return func(s *DocumentService) {
		s.queue = q
		s.storage = store
	}
}

func WithResolver(r *format.Resolver) Option {
	return func(s *DocumentService) {
		s.resolver = r
	}
}

func NewService(processors ProcessorProvider, log logger.Logger, cfg *ServiceConfig, opts ...Option) *DocumentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	s := &DocumentService{
		processors: processors,
		converter:  converters.NewMarkdownConverter(),
		logger:     log,
		config:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = format.NewResolver(format.WithLogger(log.Named("format")))
	}
	s.validator = validator.NewDocumentValidator(log.Named("validator"), s.resolver, &validator.ValidatorConfig{
		MaxFileSize:    cfg.MaxFileSize,
		MaxPageCount:   validator.DefaultConfig().MaxPageCount,
		MaxDimension:   validator.DefaultConfig().MaxDimension,
		AllowedFormats: cfg.AllowedFormats,
	})
	return s
}

// GetService wires the service from configuration. Storage and queue are
// optional: without STORAGE_TYPE the async API reports ErrAsyncDisabled.
func GetService(ctx context.Context, log logger.Logger) (*DocumentService, error) {
	convCfg := config.GetConverterConfig()
	allowed, err := parseFormats(convCfg.AllowedFormats)
	if err != nil {
		return nil, err
	}

	factory, err := agent.NewProcessorFactory(ctx, log.Named("agent"), config.GetOCRConfig(),
		agent.WithHTMLLinkDomain(convCfg.HTMLLinkDomain))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}

	storageCfg := config.GetStorageConfig()
	cfg := DefaultServiceConfig()
	cfg.MaxFileSize = config.GetServerConfig().MaxFileSize
	cfg.AllowedFormats = allowed
	if storageCfg.Retention > 0 {
		cfg.RetentionPeriod = storageCfg.Retention
	}

	var opts []Option
	if storageCfg.Enabled() {
		store, err := storage.NewStorage(ctx, storageCfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		q := queue.NewAsynqQueue(queue.ConfigFromRedis(config.GetRedisConfig()), log.Named("queue"))
		if err := q.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
		opts = append(opts, WithAsync(q, store))
	} else {
		log.Info("Storage not configured, async API disabled")
	}

	return NewService(factory, log, cfg, opts...), nil
}

// parseFormats turns configured format names into formats, rejecting any
// name that is not a supported format.
func parseFormats(names []string) ([]models.Format, error) {
	var out []models.Format
	for _, name := range names {
		f := models.Format(name)
		if !f.Valid() {
			return nil, fmt.Errorf("%w: allowed format %q", ErrUnsupportedFormat, name)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *DocumentService) Detect(content []byte, filename string) DetectionResult {
	f := s.resolver.GuessFormat(content, filename)
	result := DetectionResult{
		Filename:  filename,
		Format:    f,
		Supported: f != models.FormatUnknown,
	}
	if mimes := format.MimeTypesFor(f); len(mimes) > 0 {
		result.MimeType = mimes[0]
	}
	return result
}

func (s *DocumentService) Convert(ctx context.Context, filename string, content []byte) (*converters.ProcessedDocument, error) {
	start := time.Now()

	f, err := s.validate(filename, content)
	if err != nil {
		return nil, err
	}

	doc, err := s.convert(ctx, f, content)
	if err != nil {
		return nil, err
	}
	doc.Metadata.FileName = filename
	doc.Metadata.FileSize = int64(len(content))
	doc.Metadata.ProcessingMs = time.Since(start).Milliseconds()

	s.logger.Info("Document converted",
		logger.String("filename", filename),
		logger.String("format", f.String()),
		logger.Int("size", len(content)),
		logger.Int64("processingMs", doc.Metadata.ProcessingMs),
	)
	return doc, nil
}

// validate maps validator codes onto the service's sentinel errors.
func (s *DocumentService) validate(filename string, content []byte) (models.Format, error) {
	result := s.validator.ValidateContent(filename, content)
	if result.IsValid {
		return result.FileInfo.Format, nil
	}
	return "", validationError(filename, result)
}

func validationError(filename string, result *validator.ValidationResult) error {
	switch {
	case result.HasError(validator.CodeFileTooLarge):
		return fmt.Errorf("%w: %s", ErrFileTooLarge, result.Errors[0].Message)
	case result.HasError(validator.CodeUnsupportedFormat), result.HasError(validator.CodeFormatNotAllowed):
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDocument, result.Errors[0].Message)
	}
}

func (s *DocumentService) convert(ctx context.Context, f models.Format, content []byte) (*converters.ProcessedDocument, error) {
	p, err := s.processors.GetProcessor(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	chunks, err := p.Process(ctx, bytes.NewReader(content))
	if errors.Is(err, processor.ErrMalformedDocument) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process %s document: %w", f, err)
	}
	if len(chunks) == 0 {
		chunks = []models.DocumentChunk{{Content: ""}}
	}

	doc, err := s.converter.Convert(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	doc.Metadata.Format = f
	return doc, nil
}

func (s *DocumentService) AsyncEnabled() bool {
	return s.queue != nil && s.storage != nil
}

func (s *DocumentService) ProcessFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
) (*models.ProcessingTask, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncDisabled
	}

	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	content, err := validator.ReadLimited(file, s.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	f, err := s.validate(header.Filename, content)
	if err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	taskID := uuid.New().String()
	now := time.Now()
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentConvert,
		Format:    f,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": header.Filename,
			"size":     strconv.Itoa(len(content)),
			"format":   string(f),
		},
	}

	fileID, err := s.storage.Store(ctx, bytes.NewReader(content), uploadKey(taskID, header.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: queue.Payload{
			FileID:   fileID,
			Filename: header.Filename,
			Size:     int64(len(content)),
			Format:   f,
		},
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
	}

	// status goes first so a fast worker cannot overwrite "running" with "pending"
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    string(models.StatusPending),
		Format:    string(f),
		Filename:  header.Filename,
		StartedAt: now,
	})

	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("File processing task created",
		logger.String("taskId", taskID),
		logger.String("filename", header.Filename),
		logger.String("format", f.String()),
	)
	return task, nil
}

// ProcessBatch submits every file and returns the tasks in input order.
// The whole batch is validated first, so one bad file submits nothing.
// On a later error the tasks created so far are returned alongside it.
func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncDisabled
	}

	checks, err := s.validator.ValidateFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	for i, r := range checks {
		if !r.IsValid {
			return nil, fmt.Errorf("failed to process file %s: %w", files[i].Filename, validationError(files[i].Filename, r))
		}
	}

	results := make([]*models.ProcessingTask, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}

	for i, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.ProcessFile(ctx, file, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}

			mu.Lock()
			results[i] = task
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	tasks := make([]*models.ProcessingTask, 0, len(files))
	for _, t := range results {
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	return tasks, err
}

// HandleDocument runs on the worker: load the upload, convert it, store the
// result and record the final status.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if !s.AsyncEnabled() {
		return ErrAsyncDisabled
	}
	if err := task.Validate(); err != nil {
		return err
	}

	s.logger.Info("Processing document",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.Filename),
	)

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    string(models.StatusRunning),
		Progress:  0.1,
		Format:    string(task.Payload.Format),
		Filename:  task.Payload.Filename,
		StartedAt: task.CreatedAt,
	})

	doc, err := s.handle(ctx, task)
	if err != nil {
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     string(models.StatusFailed),
			Error:      err.Error(),
			Format:     string(task.Payload.Format),
			Filename:   task.Payload.Filename,
			StartedAt:  task.CreatedAt,
			FinishedAt: time.Now(),
		})
		s.logger.Error("Document processing failed",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
		return err
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     string(models.StatusCompleted),
		Progress:   1.0,
		Format:     string(doc.Metadata.Format),
		Filename:   task.Payload.Filename,
		StartedAt:  task.CreatedAt,
		FinishedAt: doc.ProcessedAt,
	})

	s.logger.Info("Document processing completed",
		logger.String("taskId", task.ID),
		logger.Int("chunkCount", len(doc.Content)),
	)
	return nil
}

func (s *DocumentService) handle(ctx context.Context, task *queue.Task) (*converters.ProcessedDocument, error) {
	start := time.Now()

	reader, err := s.storage.Get(ctx, task.Payload.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	content, err := validator.ReadLimited(reader, 0)
	if err != nil {
		return nil, err
	}

	f := task.Payload.Format
	if !f.Valid() {
		f = s.resolver.GuessFormat(content, task.Payload.Filename)
		if f == models.FormatUnknown {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, task.Payload.Filename)
		}
	}

	doc, err := s.convert(ctx, f, content)
	if err != nil {
		return nil, err
	}
	doc.TaskID = task.ID
	doc.ProcessedAt = time.Now()
	doc.Metadata.FileName = task.Payload.Filename
	doc.Metadata.FileSize = int64(len(content))
	doc.Metadata.ProcessingMs = time.Since(start).Milliseconds()

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), resultKey(task.ID)); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}
	return doc, nil
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncDisabled
	}

	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	metadata := make(map[string]string)
	if status.Filename != "" {
		metadata["filename"] = status.Filename
	}
	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    models.ParseStatus(status.Status),
		Type:      queue.TaskTypeDocumentConvert,
		Format:    models.Format(status.Format),
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  metadata,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotCompleted, status.Status)
	}

	reader, err := s.storage.Get(ctx, resultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if !s.AsyncEnabled() {
		return ErrAsyncDisabled
	}

	current, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	if st := models.ParseStatus(current.Status); st.Finished() {
		return fmt.Errorf("failed to cancel task: %w: %s", queue.ErrTaskFinished, st)
	}

	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     taskID,
		Status:     string(models.StatusCancelled),
		Format:     current.Format,
		Filename:   current.Filename,
		StartedAt:  current.StartedAt,
		FinishedAt: time.Now(),
	})

	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes uploads and results older than the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	if !s.AsyncEnabled() {
		return ErrAsyncDisabled
	}
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

// Close releases the queue connection and the processors.
func (s *DocumentService) Close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if c, ok := s.processors.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func uploadKey(taskID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s", taskID, filepath.Base(filename))
}

func resultKey(taskID string) string {
	return fmt.Sprintf("results/%s.json", taskID)
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	var decodeErr *format.DecodeError
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrTaskNotCompleted) ||
		errors.Is(err, queue.ErrTaskNotFound) ||
		errors.Is(err, queue.ErrTaskFinished) ||
		errors.As(err, &decodeErr)
}
