package chunker

import (
	"context"
	"fmt"
	"regexp"

	"documind/internal/ai"
	"documind/utils"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// semanticBuffer is the number of neighbouring sentences on each side that
// form a sentence's window.
const semanticBuffer = 1

// semantic places boundaries where the similarity between consecutive
// sentence windows drops below the threshold, then re-splits oversized
// segments recursively.
func (c *Chunker) semantic(ctx context.Context, text string) ([]span, error) {
	rs := c.recursive()
	sentences := sentenceSpans(text)
	if len(sentences) < 2 || c.embedder == nil {
		return rs.split(text, 0, len(text)), nil
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-semanticBuffer)
		hi := min(len(sentences)-1, i+semanticBuffer)
		windows[i] = text[sentences[lo].start:sentences[hi].end]
	}

	vectors, _, err := ai.Retry(ctx, c.opts.Retry, func(ctx context.Context) ([][]float32, error) {
		v, err := c.embedder.Embed(ctx, windows)
		return v, ai.Classify("embeddings", err)
	})
	if err != nil {
		return nil, fmt.Errorf("embed sentence windows: %w", err)
	}
	if len(vectors) != len(windows) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d windows", len(vectors), len(windows))
	}

	var out []span
	segStart := 0
	for i := 0; i < len(sentences)-1; i++ {
		if utils.CosineSimilarity(vectors[i], vectors[i+1]) < c.opts.SemanticThreshold {
			out = append(out, rs.split(text, segStart, sentences[i].end)...)
			segStart = sentences[i].end
		}
	}
	out = append(out, rs.split(text, segStart, len(text))...)
	return out, nil
}

// sentenceSpans splits text into contiguous sentence spans, each keeping its
// terminator and trailing whitespace.
func sentenceSpans(text string) []span {
	var out []span
	pos := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, span{start: pos, end: m[1]})
		pos = m[1]
	}
	if pos < len(text) {
		out = append(out, span{start: pos, end: len(text)})
	}
	return out
}
