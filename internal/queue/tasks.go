package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"documind/internal/config"
	"documind/internal/logger"
	"documind/models"

	"github.com/hibiken/asynq"
)

const (
	TaskRunAnalysis = "analysis:run"
	QueueCritical   = "critical"
)

type AnalysisPayload struct {
	TaskID string `json:"task_id"`
}

// NewAnalysisTask builds the queue message for one analysis task. The
// asynq task id is the analysis task id, so a task is enqueued at most once.
func NewAnalysisTask(taskID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(AnalysisPayload{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return asynq.NewTask(
		TaskRunAnalysis,
		payload,
		asynq.TaskID(taskID),
		asynq.MaxRetry(3),
		// the orchestrator enforces the task deadline; this only reclaims a stuck worker
		asynq.Timeout(timeout+time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

// RedisClientOpt points asynq at the same Redis the cache uses.
func RedisClientOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opt, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands tasks to the asynq worker fleet.
type Dispatcher struct {
	client  Enqueuer
	timeout time.Duration
}

func NewDispatcher(client Enqueuer, timeout time.Duration) *Dispatcher {
	return &Dispatcher{client: client, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ctx context.Context, taskID string) error {
	task, err := NewAnalysisTask(taskID, d.timeout)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debug("Analysis task already queued", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskRunAnalysis, err)
	}
	logger.Debug("Analysis task queued", "task_id", taskID, "queue", info.Queue)
	return nil
}

// Runner executes one analysis task.
type Runner interface {
	RunTask(ctx context.Context, taskID string) error
}

type TaskProcessor struct {
	runner Runner
}

func NewTaskProcessor(runner Runner) *TaskProcessor {
	return &TaskProcessor{runner: runner}
}

// ProcessAnalysis is the asynq handler for TaskRunAnalysis. Tasks that can
// never succeed are not retried.
func (p *TaskProcessor) ProcessAnalysis(ctx context.Context, t *asynq.Task) error {
	var payload AnalysisPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.TaskID == "" {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing analysis task", "task_id", payload.TaskID)
	err := p.runner.RunTask(ctx, payload.TaskID)
	if errors.Is(err, models.ErrTaskNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
