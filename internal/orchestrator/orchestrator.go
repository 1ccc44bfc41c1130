// Package orchestrator drives an analysis task through the stage state
// machine and owns the task lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"documind/internal/agents"
	"documind/internal/database"
	"documind/internal/logger"
	"documind/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics is the telemetry the orchestrator reports to.
type Metrics interface {
	RecordStageDuration(stage, status string, seconds float64)
	RecordTaskCompleted(status string)
}

type Orchestrator struct {
	executors map[models.Stage]agents.Executor
	tasks     database.TaskStore
	metrics   Metrics
	timeout   time.Duration
	tracer    trace.Tracer
}

// New wires one executor per stage. metrics may be nil; a zero timeout
// disables the task deadline.
func New(executors []agents.Executor, tasks database.TaskStore, metrics Metrics, timeout time.Duration) *Orchestrator {
	byStage := make(map[models.Stage]agents.Executor, len(executors))
	for _, e := range executors {
		byStage[e.Stage()] = e
	}
	return &Orchestrator{
		executors: byStage,
		tasks:     tasks,
		metrics:   metrics,
		timeout:   timeout,
		tracer:    otel.Tracer("documind/orchestrator"),
	}
}

// Run executes the task from Parse to a terminal state, persisting every
// stage result before the next stage starts. A task that is already
// terminal is returned as is. Run restarts a task left running by a lost
// worker from the beginning.
func (o *Orchestrator) Run(ctx context.Context, taskID string) (*models.AnalysisTask, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	runCtx, span := o.tracer.Start(runCtx, "analysis.run", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("document.id", task.DocumentID),
	))
	defer span.End()

	// writes must land even after the deadline cancels the stage context
	persist := context.WithoutCancel(ctx)

	task.Status = models.TaskRunning
	task.Error = ""
	task.Sequence = []string{}
	task.Results = map[models.Stage]*models.AgentResult{}
	task.UpdatedAt = time.Now().UTC()
	if err := o.tasks.Save(persist, task); err != nil {
		return nil, err
	}
	logger.Info("Task started", "task_id", task.ID, "document_id", task.DocumentID, "stages", task.Stages)

	st := &agents.State{Task: task, Results: task.Results}
	qaWanted := QAWanted(task)
	state := StateParse
	for !state.Terminal() {
		res := o.runStage(runCtx, st, state)
		task.Results[state.Stage()] = res
		task.Sequence = append(task.Sequence, string(state))

		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			task.Error = fmt.Sprintf("%s during %s", models.ErrTaskTimeout, state)
			state = StateFailed
		case ctx.Err() != nil:
			// shutdown, not a verdict on the task
			task.UpdatedAt = time.Now().UTC()
			if err := o.tasks.Save(persist, task); err != nil {
				logger.Error("Failed to save interrupted task", "task_id", task.ID, "error", err)
			}
			return task, ctx.Err()
		default:
			next := Next(state, OutcomeOf(res), qaWanted)
			if next == StateFailed {
				task.Error = fmt.Sprintf("%s: %s", state, res.Error)
			}
			state = next
		}

		task.UpdatedAt = time.Now().UTC()
		if err := o.tasks.Save(persist, task); err != nil {
			return task, fmt.Errorf("persist %s result: %w", res.Stage, err)
		}
	}

	now := time.Now().UTC()
	task.Sequence = append(task.Sequence, string(state))
	task.Status = FinalStatus(state, task.Results)
	task.UpdatedAt = now
	task.CompletedAt = &now
	if err := o.tasks.Save(persist, task); err != nil {
		return task, err
	}

	span.SetAttributes(attribute.String("task.status", string(task.Status)))
	if task.Status == models.TaskFailed {
		span.SetStatus(codes.Error, task.Error)
	}
	if o.metrics != nil {
		o.metrics.RecordTaskCompleted(string(task.Status))
	}
	logger.Info("Task finished",
		"task_id", task.ID,
		"status", task.Status,
		"sequence", task.Sequence,
		"error", task.Error,
	)
	return task, nil
}

func (o *Orchestrator) runStage(ctx context.Context, st *agents.State, state State) *models.AgentResult {
	stage := state.Stage()
	ctx, span := o.tracer.Start(ctx, "stage."+string(stage), trace.WithAttributes(
		attribute.String("task.id", st.Task.ID),
		attribute.String("stage", string(stage)),
	))
	defer span.End()

	start := time.Now()
	var res *models.AgentResult
	var err error
	if exec, ok := o.executors[stage]; ok {
		res, err = exec.Execute(ctx, st)
	} else {
		err = fmt.Errorf("%w: no executor for stage %s", models.ErrStageFailure, stage)
	}
	if res == nil {
		res = &models.AgentResult{Stage: stage}
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", models.ErrTaskTimeout, err)
	}

	res.Stage = stage
	res.Status = models.ResultStatusFor(err)
	res.StartedAt = start.UTC()
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("stage.status", string(res.Status)),
		attribute.String("llm.tier", string(res.Meta.Tier)),
		attribute.Int("llm.calls", res.Meta.LLMCalls),
		attribute.Int("cache.hits", res.Meta.CacheHits),
	)

	elapsed := time.Since(start)
	if o.metrics != nil {
		o.metrics.RecordStageDuration(string(stage), string(res.Status), elapsed.Seconds())
	}
	if err != nil {
		logger.Warn("Stage failed", "task_id", st.Task.ID, "stage", stage, "status", res.Status, "error", err)
	} else {
		logger.Info("Stage completed", "task_id", st.Task.ID, "stage", stage, "duration_ms", elapsed.Milliseconds())
	}
	return res
}

// RunTask is Run for dispatchers that only need the error.
func (o *Orchestrator) RunTask(ctx context.Context, taskID string) error {
	_, err := o.Run(ctx, taskID)
	return err
}
