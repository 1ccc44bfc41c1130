package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"documind/internal/ai"
	"documind/internal/chunker"
	"documind/internal/logger"
	"documind/internal/vectorindex"
	"documind/models"
)

const embedBatchSize = 64

// ParseResult is the parser payload.
type ParseResult struct {
	DocumentID     string `json:"document_id"`
	ChunkCount     int    `json:"chunk_count"`
	Strategy       string `json:"strategy"`
	EmbeddingModel string `json:"embedding_model"`
	Characters     int    `json:"characters"`
}

// Parser chunks the document text, embeds the chunks and replaces the
// document's vectors in the index.
type Parser struct {
	docs     DocumentSource
	chunker  *chunker.Chunker
	embedder ai.Embedder
	index    vectorindex.Index
	retry    ai.RetryPolicy
}

func NewParser(docs DocumentSource, ch *chunker.Chunker, embedder ai.Embedder, index vectorindex.Index, retry ai.RetryPolicy) *Parser {
	return &Parser{docs: docs, chunker: ch, embedder: embedder, index: index, retry: retry}
}

func (p *Parser) Stage() models.Stage { return models.StageParse }

func (p *Parser) Execute(ctx context.Context, st *State) (*models.AgentResult, error) {
	res := newResult(models.StageParse)

	doc, err := p.docs.Get(ctx, st.Task.DocumentID)
	if errors.Is(err, models.ErrDocumentNotFound) {
		return res, fmt.Errorf("%w: %w", models.ErrFatalInput, err)
	}
	if err != nil {
		return res, fmt.Errorf("load document: %w", err)
	}
	if strings.TrimSpace(doc.RawText) == "" {
		return res, fmt.Errorf("%w: document %s has no text", models.ErrFatalInput, doc.ID)
	}

	chunks, err := p.chunker.Chunk(ctx, doc.ID, doc.RawText)
	if err != nil {
		return res, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return res, fmt.Errorf("%w: document %s produced no chunks", models.ErrFatalInput, doc.ID)
	}

	points, err := p.embed(ctx, chunks)
	if err != nil {
		return res, err
	}

	// vectors from an earlier parse or another embedding model are replaced
	if _, _, err := ai.Retry(ctx, p.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ai.Classify("vector-index", p.index.DeleteDocument(ctx, doc.ID))
	}); err != nil {
		return res, fmt.Errorf("delete stale vectors: %w", err)
	}
	if _, _, err := ai.Retry(ctx, p.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ai.Classify("vector-index", p.index.Upsert(ctx, points))
	}); err != nil {
		return res, fmt.Errorf("upsert vectors: %w", err)
	}

	doc.Chunks = chunks
	st.Document = doc

	logger.Info("Document parsed",
		"task_id", st.Task.ID,
		"document_id", doc.ID,
		"chunks", len(chunks),
		"embedding_model", p.embedder.ModelVersion(),
	)

	err = setPayload(res, ParseResult{
		DocumentID:     doc.ID,
		ChunkCount:     len(chunks),
		Strategy:       string(p.chunker.Options().Strategy),
		EmbeddingModel: p.embedder.ModelVersion(),
		Characters:     len(doc.RawText),
	})
	return res, err
}

func (p *Parser) embed(ctx context.Context, chunks []models.Chunk) ([]models.ChunkVector, error) {
	model := p.embedder.ModelVersion()
	points := make([]models.ChunkVector, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		batch := chunks[start:min(start+embedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, _, err := ai.Retry(ctx, p.retry, func(ctx context.Context) ([][]float32, error) {
			v, err := p.embedder.Embed(ctx, texts)
			return v, ai.Classify("embeddings", err)
		})
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i, ch := range batch {
			points = append(points, models.NewChunkVector(ch, model, vectors[i]))
		}
	}
	return points, nil
}
