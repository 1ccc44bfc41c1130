package orchestrator

import (
	"context"
	"errors"
	"sync"

	"documind/internal/logger"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Runner executes one task to completion.
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, taskID string) error

func (f RunnerFunc) Run(ctx context.Context, taskID string) error { return f(ctx, taskID) }

// LocalDispatcher runs tasks in process on a fixed pool of workers.
type LocalDispatcher struct {
	runner  Runner
	jobs    chan string
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	stopped bool
}

func NewLocalDispatcher(runner Runner, workers int) *LocalDispatcher {
	if workers <= 0 {
		workers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner:  runner,
		jobs:    make(chan string, workers*16),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (d *LocalDispatcher) Start() {
	logger.Info("Starting local task dispatcher", "workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Dispatch queues the task, blocking while the queue is full.
func (d *LocalDispatcher) Dispatch(ctx context.Context, taskID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.jobs <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrDispatcherStopped
	}
}

// Stop cancels running tasks and waits for the workers to exit.
func (d *LocalDispatcher) Stop() {
	d.once.Do(func() {
		logger.Info("Stopping local task dispatcher")
		d.cancel()
		d.mu.Lock()
		d.stopped = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *LocalDispatcher) worker(id int) {
	defer d.wg.Done()
	for taskID := range d.jobs {
		if d.ctx.Err() != nil {
			continue
		}
		if err := d.runner.Run(d.ctx, taskID); err != nil {
			logger.Error("Task run failed", "worker", id, "task_id", taskID, "error", err)
		}
	}
}
