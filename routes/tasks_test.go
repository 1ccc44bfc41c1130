package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"documind/internal/ai"
	"documind/internal/database"
	"documind/internal/orchestrator"
	"documind/internal/vectorindex"
	"documind/middleware"
	"documind/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, taskID string) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, taskID)
	return nil
}

type apiHarness struct {
	router     *gin.Engine
	tasks      *database.MemoryTaskStore
	index      *vectorindex.MemoryIndex
	dispatcher *recordingDispatcher
	usage      *ai.MemoryUsageLedger
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &apiHarness{
		tasks:      database.NewMemoryTaskStore(),
		index:      vectorindex.NewMemoryIndex(),
		dispatcher: &recordingDispatcher{},
		usage:      ai.NewMemoryUsageLedger(),
	}
	manager := orchestrator.NewManager(h.tasks, database.NewMemoryDocumentStore(), h.index, h.dispatcher).WithUsage(h.usage)

	h.router = gin.New()
	h.router.Use(middleware.RequestIDMiddleware())
	SetupHealthRoutes(h.router, nil)
	SetupTaskRoutes(h.router, manager, nil)
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSubmitAndGetTask(t *testing.T) {
	h := newAPI(t)

	w := h.do(t, http.MethodPost, "/api/v1/documents", gin.H{"document_id": "doc-1", "raw_text": "This agreement covers delivery."})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"document_id": "doc-1",
		"tasks":       []string{"summarize", "qa"},
		"questions":   []string{"What is delivered?"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decodeBody(t, w)
	taskID, _ := body["task_id"].(string)
	require.NotEmpty(t, taskID)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, []string{taskID}, h.dispatcher.ids)

	w = h.do(t, http.MethodGet, "/api/v1/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	task := decodeBody(t, w)
	assert.Equal(t, taskID, task["task_id"])
	assert.Equal(t, "doc-1", task["document_id"])
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, []any{"summarize", "qa"}, task["stages"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestSubmitTaskErrors(t *testing.T) {
	h := newAPI(t)
	require.Equal(t, http.StatusCreated,
		h.do(t, http.MethodPost, "/api/v1/documents", gin.H{"document_id": "doc-1", "raw_text": "text"}).Code)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing document", gin.H{"tasks": []string{"summarize"}}, http.StatusBadRequest, "invalid_request"},
		{"no tasks", gin.H{"document_id": "doc-1"}, http.StatusBadRequest, "invalid_request"},
		{"unknown task", gin.H{"document_id": "doc-1", "tasks": []string{"translate"}}, http.StatusBadRequest, "invalid_request"},
		{"unknown tier", gin.H{"document_id": "doc-1", "tasks": []string{"summarize"}, "tier_override": "turbo"}, http.StatusBadRequest, "invalid_request"},
		{"unknown document", gin.H{"document_id": "nope", "tasks": []string{"summarize"}}, http.StatusNotFound, "document_not_found"},
		{"malformed body", "not an object", http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, w)["error_code"])
		})
	}
	assert.Empty(t, h.dispatcher.ids)
}

func TestSubmitTaskDispatchFailure(t *testing.T) {
	h := newAPI(t)
	h.dispatcher.err = errors.New("queue down")
	require.Equal(t, http.StatusCreated,
		h.do(t, http.MethodPost, "/api/v1/documents", gin.H{"document_id": "doc-1", "raw_text": "text"}).Code)

	w := h.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"document_id": "doc-1", "tasks": []string{"summarize"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decodeBody(t, w)["error_code"])
}

func TestGetUnknownTask(t *testing.T) {
	h := newAPI(t)
	w := h.do(t, http.MethodGet, "/api/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "task_not_found", decodeBody(t, w)["error_code"])
}

func TestRegisterDocumentValidation(t *testing.T) {
	h := newAPI(t)
	w := h.do(t, http.MethodPost, "/api/v1/documents", gin.H{"raw_text": "orphan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Empty text is accepted and left for the parse stage to reject.
	w = h.do(t, http.MethodPost, "/api/v1/documents", gin.H{"document_id": "doc-empty"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestInvalidateDocumentVectors(t *testing.T) {
	h := newAPI(t)
	ctx := context.Background()
	require.NoError(t, h.index.Upsert(ctx, []models.ChunkVector{
		models.NewChunkVector(models.Chunk{ID: "doc-1:0", DocumentID: "doc-1", Text: "a"}, "local/hashing-v1", []float32{1, 0}),
		models.NewChunkVector(models.Chunk{ID: "doc-2:0", DocumentID: "doc-2", Text: "b"}, "local/hashing-v1", []float32{0, 1}),
	}))

	w := h.do(t, http.MethodDelete, "/api/v1/documents/doc-1/vectors", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, h.index.Len())
}

func TestTaskUsage(t *testing.T) {
	h := newAPI(t)
	ctx := context.Background()
	require.NoError(t, h.tasks.Create(ctx, &models.AnalysisTask{ID: "task-1", DocumentID: "doc-1", Status: models.TaskComplete}))
	require.NoError(t, h.usage.Record(ctx, ai.UsageRecord{TaskID: "task-1", Stage: "summarize", Tier: "fast", Model: "gemini:flash", Calls: 1, InputTokens: 100, OutputTokens: 20}))
	require.NoError(t, h.usage.Record(ctx, ai.UsageRecord{TaskID: "task-1", Stage: "qa", Tier: "balanced", Model: "openai:gpt-4o", Calls: 1, InputTokens: 50, OutputTokens: 10}))

	w := h.do(t, http.MethodGet, "/api/v1/tasks/task-1/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(150), body["input_tokens"])
	assert.Equal(t, float64(30), body["output_tokens"])
	assert.Len(t, body["usage"], 2)

	w = h.do(t, http.MethodGet, "/api/v1/tasks/missing/usage", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name     string
		checks   map[string]HealthCheck
		wantCode int
		want     string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all ok", map[string]HealthCheck{"mongo": func(context.Context) error { return nil }}, http.StatusOK, "healthy"},
		{"one failing", map[string]HealthCheck{
			"mongo": func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			SetupHealthRoutes(router, tt.checks)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), `"status":"`+tt.want+`"`))
		})
	}
}
