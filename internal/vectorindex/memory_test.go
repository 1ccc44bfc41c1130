package vectorindex

import (
	"context"
	"testing"

	"documind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(doc string, pos int, model string, vec ...float32) models.ChunkVector {
	return models.ChunkVector{
		ChunkID:        doc + ":" + string(rune('0'+pos)),
		DocumentID:     doc,
		Position:       pos,
		Text:           "text",
		EmbeddingModel: model,
		Vector:         vec,
	}
}

func TestMemoryIndexSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, []models.ChunkVector{
		point("a", 0, "m1", 1, 0),
		point("a", 1, "m1", 0.6, 0.8),
		point("a", 2, "m1", 0, 1),
		point("a", 3, "m2", 1, 0),
		point("b", 0, "m1", 1, 0),
	}))

	t.Run("filters by document and model", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{DocumentID: "a", EmbeddingModel: "m1"})
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"a:0", "a:1", "a:2"}, []string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID})
		assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
		assert.InDelta(t, 0.6, hits[1].Score, 1e-6)
		assert.Equal(t, []float32{1, 0}, hits[0].Vector)
	})

	t.Run("limits to topK", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 1, Filter{DocumentID: "a", EmbeddingModel: "m1"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "a:0", hits[0].ChunkID)
	})

	t.Run("ties ordered by position", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{EmbeddingModel: "m1"})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(hits), 2)
		assert.Equal(t, 0, hits[0].Position)
		assert.Equal(t, 0, hits[1].Position)
		assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9)
	})

	t.Run("zero topK", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 0, Filter{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestMemoryIndexUpsertOverwritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, []models.ChunkVector{point("a", 0, "m1", 1, 0), point("b", 0, "m1", 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, []models.ChunkVector{point("a", 0, "m1", 0, 1)}))
	assert.Equal(t, 2, idx.Len())

	hits, err := idx.Search(ctx, []float32{0, 1}, 5, Filter{DocumentID: "a"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	require.NoError(t, idx.DeleteDocument(ctx, "a"))
	assert.Equal(t, 1, idx.Len())
	hits, err = idx.Search(ctx, []float32{0, 1}, 5, Filter{DocumentID: "a"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndexCopiesVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	p := point("a", 0, "m1", 1, 0)
	require.NoError(t, idx.Upsert(ctx, []models.ChunkVector{p}))
	p.Vector[0] = 0

	hits, err := idx.Search(ctx, []float32{1, 0}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, float32(1), hits[0].Vector[0])
}

func TestMemoryIndexCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryIndex().Search(ctx, []float32{1}, 1, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
