// Package assembler packs ranked chunks into a token-budgeted context.
package assembler

import (
	"fmt"
	"strings"

	"documind/models"
	"documind/utils"
)

const blockSeparator = "\n\n"

// Block renders one source block. N is the 1-based position in the context.
func Block(n int, chunk models.Chunk) string {
	return fmt.Sprintf("[Source %d | chunk %s]\n%s", n, chunk.ID, chunk.Text)
}

// Assemble adds chunks in rank order while the estimated token count of the
// whole context stays within budget, stopping at the first chunk that does
// not fit. Chunks are never split. Truncated is set iff a ranked chunk was
// left out.
func Assemble(query string, ranked []models.ScoredChunk, budget int) models.RetrievalContext {
	rc := models.RetrievalContext{
		Query:        query,
		Ranked:       ranked,
		UsedChunkIDs: []string{},
	}

	var sb strings.Builder
	for _, sc := range ranked {
		block := Block(len(rc.UsedChunkIDs)+1, sc.Chunk)
		next := block
		if sb.Len() > 0 {
			next = sb.String() + blockSeparator + block
		}
		if utils.EstimateTokens(next) > budget {
			rc.Truncated = true
			break
		}
		sb.Reset()
		sb.WriteString(next)
		rc.UsedChunkIDs = append(rc.UsedChunkIDs, sc.Chunk.ID)
	}

	rc.Text = sb.String()
	rc.Tokens = utils.EstimateTokens(rc.Text)
	return rc
}
