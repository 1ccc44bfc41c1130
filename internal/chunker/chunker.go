// Package chunker splits extracted document text into retrieval units.
//
// Chunks are byte ranges of the source text: every strategy covers the text
// in order and adjacent chunks may share an overlap, so the text is
// reconstructed exactly by concatenating chunk spans minus the overlaps.
package chunker

import (
	"context"
	"fmt"

	"documind/internal/ai"
	"documind/models"
)

type Strategy string

const (
	Recursive Strategy = "recursive"
	Semantic  Strategy = "semantic"
	Structure Strategy = "structure"
)

const (
	DefaultMaxChunkSize      = 1000
	DefaultOverlap           = 200
	DefaultSemanticThreshold = 0.5
)

// Embedder is the subset of the embedding client the semantic strategy needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options holds chunking parameters.
type Options struct {
	Strategy          Strategy
	MaxChunkSize      int
	Overlap           int
	SemanticThreshold float64
	// Retry governs the sentence-window embedding call.
	Retry ai.RetryPolicy
}

// Option configures a Chunker.
type Option func(*Options)

func WithStrategy(s Strategy) Option { return func(o *Options) { o.Strategy = s } }

func WithMaxChunkSize(n int) Option { return func(o *Options) { o.MaxChunkSize = n } }

func WithOverlap(n int) Option { return func(o *Options) { o.Overlap = n } }

func WithSemanticThreshold(t float64) Option { return func(o *Options) { o.SemanticThreshold = t } }

func WithRetry(p ai.RetryPolicy) Option { return func(o *Options) { o.Retry = p } }

// Chunker is safe for concurrent use.
type Chunker struct {
	opts     Options
	embedder Embedder
}

// New builds a Chunker. embedder may be nil unless the semantic strategy is
// used; without one the semantic strategy falls back to recursive splitting.
func New(embedder Embedder, opts ...Option) *Chunker {
	o := Options{
		Strategy:          Recursive,
		MaxChunkSize:      DefaultMaxChunkSize,
		Overlap:           DefaultOverlap,
		SemanticThreshold: DefaultSemanticThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.MaxChunkSize {
		o.Overlap = o.MaxChunkSize / 4
	}
	return &Chunker{opts: o, embedder: embedder}
}

// Options returns the effective options after clamping.
func (c *Chunker) Options() Options { return c.opts }

// Chunk splits text with the configured strategy. Empty text yields no
// chunks and no error.
func (c *Chunker) Chunk(ctx context.Context, documentID, text string) ([]models.Chunk, error) {
	if text == "" {
		return []models.Chunk{}, nil
	}

	var (
		spans []span
		err   error
	)
	switch c.opts.Strategy {
	case Recursive, "":
		spans = c.recursive().split(text, 0, len(text))
	case Semantic:
		spans, err = c.semantic(ctx, text)
	case Structure:
		spans = c.structure(text)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", c.opts.Strategy)
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = models.Chunk{
			ID:         ChunkID(documentID, i),
			DocumentID: documentID,
			Position:   i,
			Text:       text[s.start:s.end],
			Start:      s.start,
			End:        s.end,
			Label:      s.label,
		}
	}
	return chunks, nil
}

// ChunkID is deterministic so re-indexing a document overwrites its points.
func ChunkID(documentID string, position int) string {
	return fmt.Sprintf("%s:%d", documentID, position)
}

// Reconstruct rebuilds the source text from ordered chunks.
func Reconstruct(text string, chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []byte(text[chunks[0].Start:chunks[0].End])
	end := chunks[0].End
	for _, ch := range chunks[1:] {
		if ch.End > end {
			out = append(out, text[end:ch.End]...)
			end = ch.End
		}
	}
	return string(out)
}

type span struct {
	start, end int
	label      string
}

func (s span) len() int { return s.end - s.start }
