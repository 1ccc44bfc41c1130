package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"documind/internal/ai"
	"documind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var words = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}

// wordText builds n bytes of distinct space separated words.
func wordText(n int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < n; i++ {
		fmt.Fprintf(&sb, "%s%d ", words[i%len(words)], i)
	}
	return sb.String()[:n]
}

// clauseText builds n bytes of sentences, with a paragraph break after every
// fifth sentence when paragraphs is set.
func clauseText(n int, paragraphs bool) string {
	var sb strings.Builder
	for i := 0; sb.Len() < n; i++ {
		fmt.Fprintf(&sb, "Clause %d requires the supplier to deliver goods on time. ", i)
		if paragraphs && i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()[:n]
}

// assertContiguous checks that chunks start at 0, end at len(text) and
// leave no gap between neighbours, independently of Reconstruct.
func assertContiguous(t *testing.T, text string, chunks []models.Chunk) {
	t.Helper()
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End, "gap before chunk %d", i)
	}
}

func TestRecursiveThreeThousandCharacters(t *testing.T) {
	c := New(nil, WithMaxChunkSize(1000), WithOverlap(100))

	for name, text := range map[string]string{"words": wordText(3000), "sentences": clauseText(3000, false)} {
		t.Run(name, func(t *testing.T) {
			require.Len(t, text, 3000)
			chunks, err := c.Chunk(context.Background(), "doc", text)
			require.NoError(t, err)
			assert.Len(t, chunks, 4)
		})
	}
}

func TestEmptyAndShortText(t *testing.T) {
	c := New(nil, WithMaxChunkSize(100), WithOverlap(10))

	chunks, err := c.Chunk(context.Background(), "doc", "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)

	chunks, err = c.Chunk(context.Background(), "doc", "A short policy.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short policy.", chunks[0].Text)
	assert.Equal(t, "doc:0", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 15, chunks[0].End)
}

func TestRecursiveInvariants(t *testing.T) {
	texts := map[string]string{
		"words":      wordText(5000),
		"clauses":    clauseText(7000, true),
		"no spaces":  strings.Repeat("x", 2500),
		"unicode":    strings.Repeat("Vertragsstrafe für Verzug – Haftung ausgeschlossen. ", 60),
		"long lines": strings.Repeat(strings.Repeat("term ", 300)+"\n", 4),
	}
	params := []struct{ max, overlap int }{{1000, 100}, {300, 50}, {128, 0}}

	for name, text := range texts {
		for _, p := range params {
			t.Run(fmt.Sprintf("%s/%d/%d", name, p.max, p.overlap), func(t *testing.T) {
				c := New(nil, WithMaxChunkSize(p.max), WithOverlap(p.overlap))
				first, err := c.Chunk(context.Background(), "d", text)
				require.NoError(t, err)
				second, err := c.Chunk(context.Background(), "d", text)
				require.NoError(t, err)

				assert.Equal(t, first, second, "deterministic")
				assert.Equal(t, text, Reconstruct(text, first), "covers the text in order")
				assertContiguous(t, text, first)

				for i, ch := range first {
					assert.LessOrEqual(t, len(ch.Text), p.max)
					assert.Equal(t, text[ch.Start:ch.End], ch.Text)
					assert.Equal(t, i, ch.Position)
					if i > 0 {
						prev := first[i-1]
						assert.Greater(t, ch.Start, prev.Start)
						assert.Greater(t, ch.End, prev.End)
						assert.LessOrEqual(t, prev.End-ch.Start, p.overlap, "overlap bounded")
					}
				}
			})
		}
	}
}

func TestOverlapIsCarried(t *testing.T) {
	c := New(nil, WithMaxChunkSize(1000), WithOverlap(100))
	chunks, err := c.Chunk(context.Background(), "doc", wordText(3000))
	require.NoError(t, err)

	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i-1].End, chunks[i].Start, "chunk %d overlaps its predecessor", i)
	}
}

func TestOverlapClamped(t *testing.T) {
	c := New(nil, WithMaxChunkSize(100), WithOverlap(150))
	assert.Equal(t, 25, c.Options().Overlap)

	c = New(nil, WithMaxChunkSize(0), WithOverlap(-3))
	assert.Equal(t, DefaultMaxChunkSize, c.Options().MaxChunkSize)
	assert.Equal(t, 0, c.Options().Overlap)
}

func TestUnknownStrategy(t *testing.T) {
	_, err := New(nil, WithStrategy("fancy")).Chunk(context.Background(), "d", "text")
	assert.Error(t, err)
}

const contract = `# Master Services Agreement
Intro text.
1. Definitions
Terms mean things.
1.1 Services
The services are described.
2. Termination
Either party may terminate.
CONFIDENTIALITY: Each party keeps secrets.
`

func TestStructureLabels(t *testing.T) {
	c := New(nil, WithStrategy(Structure), WithMaxChunkSize(500), WithOverlap(50))
	chunks, err := c.Chunk(context.Background(), "msa", contract)
	require.NoError(t, err)

	labels := make([]string, len(chunks))
	for i, ch := range chunks {
		labels[i] = ch.Label
	}
	assert.Equal(t, []string{
		"Master Services Agreement",
		"1 Definitions",
		"1 Definitions > 1.1 Services",
		"2 Termination",
		"CONFIDENTIALITY",
	}, labels)
	assert.True(t, strings.HasPrefix(chunks[2].Text, "1.1 Services"))
	assert.Equal(t, contract, Reconstruct(contract, chunks))
	assertContiguous(t, contract, chunks)
}

func TestStructureSplitsOversizedSections(t *testing.T) {
	text := "1. Liability\n" + wordText(900) + "\n2. Payment\nNet thirty days.\n"
	c := New(nil, WithStrategy(Structure), WithMaxChunkSize(300), WithOverlap(30))
	chunks, err := c.Chunk(context.Background(), "d", text)
	require.NoError(t, err)

	require.Greater(t, len(chunks), 3)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.Equal(t, "1 Liability", ch.Label)
		assert.LessOrEqual(t, len(ch.Text), 300)
	}
	assert.Equal(t, "2 Payment", chunks[len(chunks)-1].Label)
	assert.Equal(t, text, Reconstruct(text, chunks))
	assertContiguous(t, text, chunks)
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line  string
		ok    bool
		depth int
		title string
	}{
		{"## Scope", true, 2, "Scope"},
		{"4.2.1 Remedies", true, 3, "4.2.1 Remedies"},
		{"7. Governing Law", true, 1, "7 Governing Law"},
		{"INDEMNIFICATION: The supplier shall", true, 1, "INDEMNIFICATION"},
		{"The parties agree:", false, 0, ""},
		{"####### too deep", false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			h, ok := parseHeading(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.depth, h.depth)
				assert.Equal(t, tt.title, h.title)
			}
		})
	}
}

// topicEmbedder maps text to (cat mentions, stock mentions).
type topicEmbedder struct{ calls int }

func (e *topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		out[i] = []float32{float32(strings.Count(lower, "cat")), float32(strings.Count(lower, "stock"))}
	}
	return out, nil
}

func TestSemanticSplitsAtTopicShift(t *testing.T) {
	text := "Cats purr. Cats nap. Cats hunt. Stocks rise. Stocks fall. Stocks trade."
	emb := &topicEmbedder{}
	c := New(emb, WithStrategy(Semantic), WithMaxChunkSize(1000), WithOverlap(0), WithSemanticThreshold(0.85))

	chunks, err := c.Chunk(context.Background(), "d", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Cats purr. Cats nap. Cats hunt. ", chunks[0].Text)
	assert.Equal(t, "Stocks rise. Stocks fall. Stocks trade.", chunks[1].Text)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, text, Reconstruct(text, chunks))
	assertContiguous(t, text, chunks)
}

// flakyEmbedder fails the first failures calls with err.
type flakyEmbedder struct {
	topicEmbedder
	failures int
	err      error
}

func (e *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.failures > 0 {
		e.failures--
		e.calls++
		return nil, e.err
	}
	return e.topicEmbedder.Embed(ctx, texts)
}

func TestSemanticRetriesEmbeddingFailures(t *testing.T) {
	text := "Cats purr. Cats nap. Stocks rise. Stocks fall."
	policy := ai.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("transient then success", func(t *testing.T) {
		emb := &flakyEmbedder{failures: 1, err: errors.New("429 rate limit")}
		c := New(emb, WithStrategy(Semantic), WithOverlap(0), WithSemanticThreshold(0.85), WithRetry(policy))

		chunks, err := c.Chunk(context.Background(), "d", text)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 2, emb.calls)
		assertContiguous(t, text, chunks)
	})

	t.Run("rejected is not retried", func(t *testing.T) {
		emb := &flakyEmbedder{failures: 3, err: errors.New("invalid input")}
		c := New(emb, WithStrategy(Semantic), WithOverlap(0), WithRetry(policy))

		_, err := c.Chunk(context.Background(), "d", text)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrProviderRejected)
		assert.Equal(t, 1, emb.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		emb := &flakyEmbedder{failures: 5, err: errors.New("503 service unavailable")}
		c := New(emb, WithStrategy(Semantic), WithOverlap(0), WithRetry(policy))

		_, err := c.Chunk(context.Background(), "d", text)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrTransientProvider)
		assert.Equal(t, 3, emb.calls)
	})
}

func TestSemanticFallsBackWithoutEmbedder(t *testing.T) {
	text := wordText(2500)
	semantic, err := New(nil, WithStrategy(Semantic), WithMaxChunkSize(1000), WithOverlap(100)).Chunk(context.Background(), "d", text)
	require.NoError(t, err)
	recursive, err := New(nil, WithMaxChunkSize(1000), WithOverlap(100)).Chunk(context.Background(), "d", text)
	require.NoError(t, err)
	assert.Equal(t, recursive, semantic)
}
