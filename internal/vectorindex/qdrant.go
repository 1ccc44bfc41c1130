package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"documind/models"

	"github.com/google/uuid"
)

// pointNamespace derives Qdrant point ids, which must be UUIDs or integers,
// from chunk ids.
var pointNamespace = uuid.MustParse("6f1c1d4e-93b5-4c55-8f0e-2f3a4b9d7c21")

// PointID is the Qdrant point id stored for a chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// StatusError is a non-2xx Qdrant response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// HTTPStatus lets the provider error classifier treat 429 and 5xx as
// retryable.
func (e *StatusError) HTTPStatus() int { return e.Code }

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantIndex is a minimal REST client to Qdrant. It assumes cosine
// distance and creates the collection on first upsert.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu    sync.Mutex
	ready bool
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type qdrantPayload struct {
	ChunkID        string `json:"chunk_id"`
	DocumentID     string `json:"document_id"`
	Position       int    `json:"position"`
	Text           string `json:"text"`
	Label          string `json:"label,omitempty"`
	Start          int    `json:"start"`
	End            int    `json:"end"`
	EmbeddingModel string `json:"embedding_model"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must,omitempty"`
}

func buildFilter(f Filter) *qdrantFilter {
	var must []qdrantCondition
	add := func(key, value string) {
		if value == "" {
			return
		}
		c := qdrantCondition{Key: key}
		c.Match.Value = value
		must = append(must, c)
	}
	add("document_id", f.DocumentID)
	add("embedding_model", f.EmbeddingModel)
	if len(must) == 0 {
		return nil
	}
	return &qdrantFilter{Must: must}
}

// ensureCollection creates the collection and its keyword payload indexes
// when missing.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}

	path := "/collections/" + q.collection
	err := q.do(ctx, http.MethodGet, path, nil, nil)
	var se *StatusError
	switch {
	case err == nil:
		q.ready = true
		return nil
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
	default:
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return err
	}
	for _, field := range []string{"document_id", "embedding_model"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := q.do(ctx, http.MethodPut, path+"/index?wait=true", idx, nil); err != nil {
			return err
		}
	}
	q.ready = true
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []models.ChunkVector) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{
			ID:     PointID(p.ChunkID),
			Vector: p.Vector,
			Payload: qdrantPayload{
				ChunkID:        p.ChunkID,
				DocumentID:     p.DocumentID,
				Position:       p.Position,
				Text:           p.Text,
				Label:          p.Label,
				Start:          p.Start,
				End:            p.End,
				EmbeddingModel: p.EmbeddingModel,
			},
		}
	}
	return q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", body, nil)
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
			Vector  []float32     `json:"vector"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", req, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		// nothing indexed yet
		return []Hit{}, nil
	}
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		hits = append(hits, Hit{
			ChunkVector: models.ChunkVector{
				ChunkID:        p.ChunkID,
				DocumentID:     p.DocumentID,
				Position:       p.Position,
				Text:           p.Text,
				Label:          p.Label,
				Start:          p.Start,
				End:            p.End,
				EmbeddingModel: p.EmbeddingModel,
				Vector:         r.Vector,
			},
			Score: r.Score,
		})
	}
	sortHits(hits)
	return hits, nil
}

func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": buildFilter(Filter{DocumentID: documentID})}
	err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/delete?wait=true", body, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
