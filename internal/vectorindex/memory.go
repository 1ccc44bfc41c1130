package vectorindex

import (
	"context"
	"sync"

	"documind/models"
	"documind/utils"
)

// MemoryIndex is a brute-force cosine index for tests and single-node runs.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]models.ChunkVector
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]models.ChunkVector)}
}

func (m *MemoryIndex) Upsert(_ context.Context, points []models.ChunkVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ChunkID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		if !filter.match(&p) {
			continue
		}
		hits = append(hits, Hit{ChunkVector: p, Score: utils.CosineSimilarity(vector, p.Vector)})
	}
	m.mu.RUnlock()

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

// Len is the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}
