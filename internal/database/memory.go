package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"documind/models"
)

// MemoryTaskStore hands out copies so callers never share a task with the
// running pipeline.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.AnalysisTask
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*models.AnalysisTask)}
}

func (s *MemoryTaskStore) Create(_ context.Context, task *models.AnalysisTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id string) (*models.AnalysisTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	return cloneTask(task), nil
}

func (s *MemoryTaskStore) Save(_ context.Context, task *models.AnalysisTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryTaskStore) FailStale(_ context.Context, before time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, task := range s.tasks {
		if task.Status.Terminal() || !task.UpdatedAt.Before(before) {
			continue
		}
		task.Status = models.TaskFailed
		task.Error = reason
		task.UpdatedAt = now
		task.CompletedAt = &now
		n++
	}
	return n, nil
}

func cloneTask(t *models.AnalysisTask) *models.AnalysisTask {
	c := *t
	c.Stages = append([]models.Stage(nil), t.Stages...)
	c.Questions = append([]string(nil), t.Questions...)
	c.Sequence = append([]string(nil), t.Sequence...)
	if t.Results != nil {
		c.Results = make(map[models.Stage]*models.AgentResult, len(t.Results))
		for stage, r := range t.Results {
			rc := *r
			c.Results[stage] = &rc
		}
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]models.Document)}
}

func (s *MemoryDocumentStore) Put(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	stored := models.Document{ID: doc.ID, RawText: doc.RawText, CreatedAt: now, UpdatedAt: now}
	if prev, ok := s.docs[doc.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.docs[doc.ID] = stored
	return nil
}

func (s *MemoryDocumentStore) Get(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return &doc, nil
}
