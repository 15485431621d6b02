// Package worker runs the asynq server that consumes conversion tasks.
package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	Queues      map[string]int
	// CleanupSpec is the cron spec for storage cleanup. Empty disables it.
	CleanupSpec string
}

// ConfigFromRedis builds a worker config on the shared Redis settings.
func ConfigFromRedis(rc *config.RedisConfig) *Config {
	return &Config{
		RedisAddr:   rc.Addr,
		RedisDB:     rc.DB,
		Concurrency: rc.Concurrency,
		Queues:      queue.QueuePriorities(),
		CleanupSpec: "@hourly",
	}
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, DB: c.RedisDB}
}

type BaseWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    logger.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// Stop shuts the scheduler and server down. Later calls are no-ops.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
	})
	return nil
}
