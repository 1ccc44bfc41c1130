package retriever

import (
	"math"

	"documind/models"
	"documind/utils"
)

// MMR greedily selects up to k candidates maximising
// lambda*relevance - (1-lambda)*max similarity to those already selected.
// Relevance is VectorScore; candidates without vectors count as dissimilar.
func MMR(candidates []models.ScoredChunk, k int, lambda float64) []models.ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return []models.ScoredChunk{}
	}
	remaining := append([]models.ScoredChunk(nil), candidates...)
	selected := make([]models.ScoredChunk, 0, min(k, len(remaining)))

	for len(selected) < k && len(remaining) > 0 {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range remaining {
			redundancy := 0.0
			for _, s := range selected {
				redundancy = math.Max(redundancy, utils.CosineSimilarity(c.Vector, s.Vector))
			}
			score := lambda*c.VectorScore - (1-lambda)*redundancy
			if score > bestScore || (score == bestScore && c.Chunk.Position < remaining[best].Chunk.Position) {
				best, bestScore = i, score
			}
		}
		selected = append(selected, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return selected
}
