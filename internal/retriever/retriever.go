// Package retriever finds the chunks of one document most relevant to a
// query: vector search, score threshold, optional MMR diversification and
// reranking.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"documind/internal/ai"
	"documind/internal/config"
	"documind/internal/vectorindex"
	"documind/models"
)

// Embedder is the subset of ai.Embedder the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// Reranker rescores candidates, setting Score from VectorScore and the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.ScoredChunk) ([]models.ScoredChunk, error)
}

type Options struct {
	OverFetch      int
	ScoreThreshold float64
	MMRLambda      float64
	Retry          ai.RetryPolicy
}

// OptionsFromConfig reads the RETRIEVAL_* and MMR_LAMBDA settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OverFetch:      cfg.RetrievalOverFetch,
		ScoreThreshold: cfg.RetrievalScoreThreshold,
		MMRLambda:      cfg.MMRLambda,
		Retry:          ai.PolicyFromConfig(cfg),
	}
}

type Retriever struct {
	embedder Embedder
	index    vectorindex.Index
	reranker Reranker
	opts     Options
}

// New builds a Retriever. A nil reranker keeps the vector score as the
// final score.
func New(embedder Embedder, index vectorindex.Index, reranker Reranker, opts Options) *Retriever {
	if opts.OverFetch < 1 {
		opts.OverFetch = 3
	}
	return &Retriever{embedder: embedder, index: index, reranker: reranker, opts: opts}
}

// Retrieve returns at most k chunks of documentID, best first, ties broken
// by lower position. It never pads: fewer than k survive the threshold,
// fewer are returned.
func (r *Retriever) Retrieve(ctx context.Context, query, documentID string, k int, mode models.RetrievalMode) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	vectors, _, err := ai.Retry(ctx, r.opts.Retry, func(ctx context.Context) ([][]float32, error) {
		v, err := r.embedder.Embed(ctx, []string{query})
		return v, ai.Classify("embeddings", err)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	filter := vectorindex.Filter{DocumentID: documentID, EmbeddingModel: r.embedder.ModelVersion()}
	hits, _, err := ai.Retry(ctx, r.opts.Retry, func(ctx context.Context) ([]vectorindex.Hit, error) {
		h, err := r.index.Search(ctx, vectors[0], k*r.opts.OverFetch, filter)
		return h, ai.Classify("vector-index", err)
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.opts.ScoreThreshold {
			continue
		}
		candidates = append(candidates, models.ScoredChunk{
			Chunk:       h.Chunk(),
			Score:       h.Score,
			VectorScore: h.Score,
			Vector:      h.Vector,
		})
	}

	if mode == models.ModeDiversity {
		candidates = MMR(candidates, k, r.opts.MMRLambda)
	}
	if r.reranker != nil && len(candidates) > 0 {
		candidates, err = r.reranker.Rerank(ctx, query, candidates)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	SortByScore(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// SortByScore orders by final score, ties broken by lower position.
func SortByScore(chunks []models.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Chunk.Position < chunks[j].Chunk.Position
	})
}
