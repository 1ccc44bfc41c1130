// Package vectorindex stores chunk embeddings and answers nearest-neighbour
// queries scoped to one document and one embedding model.
package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"documind/internal/config"
	"documind/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// Filter scopes a search. Empty fields do not filter.
type Filter struct {
	DocumentID     string
	EmbeddingModel string
}

func (f Filter) match(cv *models.ChunkVector) bool {
	if f.DocumentID != "" && cv.DocumentID != f.DocumentID {
		return false
	}
	if f.EmbeddingModel != "" && cv.EmbeddingModel != f.EmbeddingModel {
		return false
	}
	return true
}

// Hit is a stored point with its cosine similarity to the query.
type Hit struct {
	models.ChunkVector
	Score float64
}

type Index interface {
	Upsert(ctx context.Context, points []models.ChunkVector) error
	// Search returns at most topK hits, best first.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// New builds the index selected by VECTOR_STORE. db is only used by the
// mongo backend.
func New(cfg *config.Config, db *mongo.Database) (Index, error) {
	switch cfg.VectorStore {
	case "memory":
		return NewMemoryIndex(), nil
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}), nil
	case "mongo":
		if db == nil {
			return nil, fmt.Errorf("mongo vector store needs a database")
		}
		return NewMongoIndex(db, cfg.VectorIndexName), nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}

// sortHits orders by score, then by position so equal scores are stable.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
}
