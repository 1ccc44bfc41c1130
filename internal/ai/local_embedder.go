package ai

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"documind/utils"
)

const defaultHashingDimensions = 512

// HashingEmbedder is a deterministic, offline embedder: lowercased word
// unigrams and bigrams are hashed into a signed feature vector with
// sublinear term frequency, then L2-normalized. Identical texts map to
// identical vectors.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultHashingDimensions
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashingEmbedder) Dimensions() int      { return e.dim }
func (e *HashingEmbedder) ModelVersion() string { return "local/hashing-v1" }

func (e *HashingEmbedder) vector(text string) []float32 {
	counts := map[string]int{}
	words := Tokenize(text)
	for i, w := range words {
		counts[w]++
		if i > 0 {
			counts[words[i-1]+" "+w]++
		}
	}

	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features) // fixed summation order

	v := make([]float32, e.dim)
	for _, feature := range features {
		n := counts[feature]
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		weight := float32(1 + math.Log(float64(n)))
		if sum>>63 == 1 {
			weight = -weight
		}
		v[idx] += weight
	}
	utils.L2Normalize(v)
	return v
}

// Tokenize splits text into lowercase letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
