package retriever

import (
	"context"
	"math"

	"documind/internal/ai"
	"documind/models"
)

// LexicalReranker blends the vector score with token overlap:
// Score = Weight*VectorScore + (1-Weight)*ochiai(query, chunk).
type LexicalReranker struct {
	Weight float64
}

func NewLexicalReranker(weight float64) *LexicalReranker {
	if weight < 0 || weight > 1 {
		weight = 0.7
	}
	return &LexicalReranker{Weight: weight}
}

func (lr *LexicalReranker) Rerank(_ context.Context, query string, candidates []models.ScoredChunk) ([]models.ScoredChunk, error) {
	q := tokenSet(query)
	out := make([]models.ScoredChunk, len(candidates))
	for i, c := range candidates {
		c.Score = lr.Weight*c.VectorScore + (1-lr.Weight)*Ochiai(q, tokenSet(c.Chunk.Text))
		out[i] = c
	}
	return out, nil
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range ai.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Ochiai is |a∩b| / sqrt(|a|·|b|), 0 when either set is empty.
func Ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			common++
		}
	}
	return float64(common) / math.Sqrt(float64(len(a))*float64(len(b)))
}
