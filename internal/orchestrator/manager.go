package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"documind/internal/ai"
	"documind/internal/database"
	"documind/internal/logger"
	"documind/internal/vectorindex"
	"documind/models"

	"github.com/google/uuid"
)

// Dispatcher starts a submitted task somewhere: in process or on a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

type SubmitRequest struct {
	DocumentID   string   `json:"document_id"`
	Tasks        []string `json:"tasks"`
	Questions    []string `json:"questions,omitempty"`
	TierOverride string   `json:"tier_override,omitempty"`
}

// Manager implements the task API operations.
type Manager struct {
	tasks      database.TaskStore
	docs       database.DocumentStore
	index      vectorindex.Index
	dispatcher Dispatcher
	usage      ai.UsageLedger
}

func NewManager(tasks database.TaskStore, docs database.DocumentStore, index vectorindex.Index, dispatcher Dispatcher) *Manager {
	return &Manager{tasks: tasks, docs: docs, index: index, dispatcher: dispatcher}
}

// WithUsage enables per-task token usage reports.
func (m *Manager) WithUsage(ledger ai.UsageLedger) *Manager {
	m.usage = ledger
	return m
}

// Submit validates the request, records a pending task and dispatches it.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return "", fmt.Errorf("%w: document_id is required", models.ErrInvalidRequest)
	}
	if len(req.Tasks) == 0 {
		return "", fmt.Errorf("%w: at least one task is required", models.ErrInvalidRequest)
	}
	stages := make([]models.Stage, 0, len(req.Tasks))
	for _, name := range req.Tasks {
		stage, ok := models.ParseStage(name)
		if !ok {
			return "", fmt.Errorf("%w: unknown task %q", models.ErrInvalidRequest, name)
		}
		stages = append(stages, stage)
	}
	var tier models.Tier
	if req.TierOverride != "" {
		t, ok := models.ParseTier(req.TierOverride)
		if !ok {
			return "", fmt.Errorf("%w: unknown tier %q", models.ErrInvalidRequest, req.TierOverride)
		}
		tier = t
	}
	if _, err := m.docs.Get(ctx, req.DocumentID); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	task := &models.AnalysisTask{
		ID:           uuid.NewString(),
		DocumentID:   req.DocumentID,
		Stages:       stages,
		Questions:    req.Questions,
		TierOverride: tier,
		Status:       models.TaskPending,
		Sequence:     []string{},
		Results:      map[models.Stage]*models.AgentResult{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.tasks.Create(ctx, task); err != nil {
		return "", err
	}

	if err := m.dispatcher.Dispatch(ctx, task.ID); err != nil {
		task.Status = models.TaskFailed
		task.Error = fmt.Sprintf("dispatch: %v", err)
		task.UpdatedAt = time.Now().UTC()
		task.CompletedAt = &task.UpdatedAt
		if serr := m.tasks.Save(context.WithoutCancel(ctx), task); serr != nil {
			logger.Error("Failed to mark undispatched task", "task_id", task.ID, "error", serr)
		}
		return "", fmt.Errorf("dispatch task %s: %w", task.ID, err)
	}

	logger.Info("Task submitted", "task_id", task.ID, "document_id", task.DocumentID, "stages", stages)
	return task.ID, nil
}

func (m *Manager) Get(ctx context.Context, taskID string) (*models.AnalysisTask, error) {
	return m.tasks.Get(ctx, taskID)
}

// RegisterDocument stores extracted text for the parser. Empty text is
// accepted here and rejected by the parse stage.
func (m *Manager) RegisterDocument(ctx context.Context, documentID, rawText string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: document_id is required", models.ErrInvalidRequest)
	}
	return m.docs.Put(ctx, &models.Document{ID: documentID, RawText: rawText})
}

// InvalidateDocument removes every indexed vector of the document.
func (m *Manager) InvalidateDocument(ctx context.Context, documentID string) error {
	if err := m.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", documentID, err)
	}
	logger.Info("Document vectors invalidated", "document_id", documentID)
	return nil
}

// Usage returns the token usage recorded for a task, per stage, tier and
// model. Unknown tasks yield ErrTaskNotFound.
func (m *Manager) Usage(ctx context.Context, taskID string) ([]ai.UsageRecord, error) {
	if _, err := m.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	if m.usage == nil {
		return []ai.UsageRecord{}, nil
	}
	records, err := m.usage.TaskUsage(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("usage of %s: %w", taskID, err)
	}
	if records == nil {
		records = []ai.UsageRecord{}
	}
	return records, nil
}
