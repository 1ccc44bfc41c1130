package models

// RetrievalMode selects plain relevance ranking or MMR diversity selection.
type RetrievalMode string

const (
	ModeRelevance RetrievalMode = "relevance"
	ModeDiversity RetrievalMode = "diversity"
)

// ScoredChunk is a retrieval candidate.
// VectorScore is the raw similarity from the index; Score is the final
// score after reranking.
type ScoredChunk struct {
	Chunk       Chunk     `json:"chunk"`
	Score       float64   `json:"score"`
	VectorScore float64   `json:"vector_score"`
	Vector      []float32 `json:"-"`
}

// RetrievalContext is the token-budgeted context handed to an LLM call.
type RetrievalContext struct {
	Query        string        `json:"query"`
	Ranked       []ScoredChunk `json:"ranked"`
	Text         string        `json:"text"`
	UsedChunkIDs []string      `json:"used_chunk_ids"`
	Tokens       int           `json:"tokens"`
	Truncated    bool          `json:"truncated"`
}

// Confidence is the mean final score of the chunks that made it into the
// context. Zero when nothing was used.
func (rc *RetrievalContext) Confidence() float64 {
	if len(rc.UsedChunkIDs) == 0 {
		return 0
	}
	used := make(map[string]struct{}, len(rc.UsedChunkIDs))
	for _, id := range rc.UsedChunkIDs {
		used[id] = struct{}{}
	}
	var sum float64
	for _, sc := range rc.Ranked {
		if _, ok := used[sc.Chunk.ID]; ok {
			sum += sc.Score
		}
	}
	return sum / float64(len(rc.UsedChunkIDs))
}
