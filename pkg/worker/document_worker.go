package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

// DocumentHandler is the part of the document service the worker drives.
type DocumentHandler interface {
	HandleDocument(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) error
}

type DocumentWorker struct {
	BaseWorker
	docService DocumentHandler
	cleanup    string
}

func NewDocumentWorker(cfg *Config, docService DocumentHandler, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("invalid worker concurrency: %d", cfg.Concurrency)
	}

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		docService: docService,
		cleanup:    cfg.CleanupSpec,
	}
	if cfg.CleanupSpec != "" {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), nil)
	}

	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentConvert, w.handleDocumentConvert)
	w.mux.HandleFunc(queue.TaskTypeDocumentCleanup, w.handleCleanup)
}

func (w *DocumentWorker) handleDocumentConvert(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Failed to decode task",
			logger.Error(err),
			logger.Int("payloadSize", len(t.Payload())),
		)
		// a malformed payload will never succeed
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := task.Validate(); err != nil {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("payload", task.Payload),
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	w.logger.Info("Processing document task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.Filename),
		logger.String("format", task.Payload.Format.String()),
	)

	w.writeResult(t, []byte(`{"status":"running","progress":0}`))

	if err := w.docService.HandleDocument(ctx, task); err != nil {
		w.writeResult(t, []byte(fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error())))
		return err
	}

	w.writeResult(t, []byte(`{"status":"completed","progress":100}`))
	return nil
}

func (w *DocumentWorker) handleCleanup(ctx context.Context, _ *asynq.Task) error {
	if err := w.docService.CleanupTasks(ctx); err != nil {
		w.logger.Error("Cleanup failed", logger.Error(err))
		return err
	}
	return nil
}

// writeResult records progress on the asynq task. Tasks built outside a
// server run have no result writer.
func (w *DocumentWorker) writeResult(t *asynq.Task, data []byte) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write(data); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	if w.scheduler != nil {
		if _, err := w.scheduler.Register(w.cleanup, asynq.NewTask(queue.TaskTypeDocumentCleanup, nil)); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	w.logger.Info("Worker started", logger.String("cleanup", w.cleanup))

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}
