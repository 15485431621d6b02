// Package queue schedules asynchronous conversions on asynq and keeps their
// status in Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const (
	TaskTypeDocumentConvert = "document:convert"
	// TaskTypeDocumentCleanup is scheduled periodically by the worker.
	TaskTypeDocumentCleanup = "document:cleanup"
)

// Queue names in priority order.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")

	queueNames = []string{QueueCritical, QueueDefault, QueueLow}
)

// QueuePriorities is the weighted queue map shared by the worker server.
func QueuePriorities() map[string]int {
	return map[string]int{
		QueueCritical: 6,
		QueueDefault:  3,
		QueueLow:      1,
	}
}

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
	Close() error
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   Payload           `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Payload points the worker at the stored upload.
type Payload struct {
	FileID   string        `json:"fileId"`
	Filename string        `json:"filename"`
	Size     int64         `json:"size"`
	Format   models.Format `json:"format"`
}

// Validate reports whether the task carries enough data to be processed.
func (t *Task) Validate() error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task: missing id")
	}
	if t.Payload.FileID == "" {
		return fmt.Errorf("invalid task %s: missing file id", t.ID)
	}
	return nil
}

// DecodeTask parses an asynq payload produced by Enqueue.
func DecodeTask(payload []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Format     string    `json:"format,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// ConfigFromRedis fills a QueueConfig from the shared Redis settings.
func ConfigFromRedis(rc *config.RedisConfig) *QueueConfig {
	return &QueueConfig{
		RedisAddr:      rc.Addr,
		RedisDB:        rc.DB,
		MaxRetries:     3,
		ProcessTimeout: 30 * time.Minute,
		StatusTTL:      24 * time.Hour,
	}
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	config    *QueueConfig
	logger    logger.Logger
}

func NewAsynqQueue(cfg *QueueConfig, log logger.Logger) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
		config: cfg,
		logger: log,
	}
}

// Ping checks the Redis connection.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	if err := q.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", q.config.RedisAddr, err)
	}
	return nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.Timeout(q.config.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(queueForPriority(task.Priority)),
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload, opts...))
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	q.logger.Debug("Task enqueued",
		logger.String("taskId", info.ID),
		logger.String("queue", info.Queue),
	)
	return nil
}

// GetTaskStatus prefers the status saved in Redis and falls back to the
// asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	switch {
	case err == nil:
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		return convertAsynqStatus(info), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to inspect task %s: %w", taskID, err)
		}

		switch cancelActionFor(info.State) {
		case cancelDelete:
			if err := q.inspector.DeleteTask(name, taskID); err != nil {
				return fmt.Errorf("failed to delete task %s: %w", taskID, err)
			}
		case cancelSignal:
			if err := q.inspector.CancelProcessing(taskID); err != nil {
				return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
			}
		default:
			return fmt.Errorf("%w: %s is %s", ErrTaskFinished, taskID, info.State)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

type cancelAction int

const (
	cancelRefuse cancelAction = iota
	cancelDelete
	cancelSignal
)

// cancelActionFor picks how a task in state can be stopped. Active tasks
// cannot be deleted, only signalled; finished ones are left alone.
func cancelActionFor(state asynq.TaskState) cancelAction {
	switch state {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return cancelDelete
	case asynq.TaskStateActive:
		return cancelSignal
	default:
		return cancelRefuse
	}
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.config.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string {
	return "task_status:" + taskID
}

func queueForPriority(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		Status:    string(models.StatusPending),
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.Status = string(models.StatusRunning)
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = string(models.StatusCompleted)
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = string(models.StatusFailed)
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	}

	return status
}
