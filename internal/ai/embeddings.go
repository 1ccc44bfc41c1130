package ai

import (
	"context"
	"fmt"

	"documind/internal/config"
	"documind/utils"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// Embedder turns texts into fixed-length vectors. ModelVersion identifies
// the vector space; vectors from different versions are never compared.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelVersion() string
}

// NewEmbedder builds the embedder selected by EMBEDDINGS_PROVIDER.
func NewEmbedder(ctx context.Context, cfg *config.Config, rec BreakerRecorder) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		return NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions, cfg.LLMRateTier, rec)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY for embeddings")
		}
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel, cfg.LLMRateTier, rec), nil
	case "local":
		return NewHashingEmbedder(cfg.VectorDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

const geminiEmbedBatch = 100

// GeminiEmbedder uses the Generative Language batch embedding endpoint.
type GeminiEmbedder struct {
	guard  *guard
	client *genai.Client
	model  string
	dim    int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dim int, rateTier string, rec BreakerRecorder) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{
		guard:  newGuard("gemini-embeddings", rateTier, rec),
		client: client,
		model:  model,
		dim:    dim,
	}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatch {
		end := min(start+geminiEmbedBatch, len(texts))
		batch := texts[start:end]

		tokens := 0
		for _, t := range batch {
			tokens += utils.EstimateTokens(t)
		}

		out, err := e.guard.run(ctx, "batch_embed_contents", tokens, func(ctx context.Context) (any, int, error) {
			em := e.client.EmbeddingModel(e.model)
			b := em.NewBatch()
			for _, t := range batch {
				b.AddContent(genai.Text(t))
			}
			resp, err := em.BatchEmbedContents(ctx, b)
			if err != nil {
				return nil, 0, err
			}
			if len(resp.Embeddings) != len(batch) {
				return nil, 0, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(batch))
			}
			vecs := make([][]float32, len(resp.Embeddings))
			for i, emb := range resp.Embeddings {
				vecs[i] = emb.Values
			}
			return vecs, tokens, nil
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, out.([][]float32)...)
	}
	return vectors, nil
}

func (e *GeminiEmbedder) Dimensions() int      { return e.dim }
func (e *GeminiEmbedder) ModelVersion() string { return "google/" + e.model }

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

const openAIEmbedBatch = 96

// OpenAIEmbedder uses the OpenAI embeddings API, L2-normalizing results.
type OpenAIEmbedder struct {
	guard  *guard
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, model, rateTier string, rec BreakerRecorder) *OpenAIEmbedder {
	// Set dimension based on model
	dim := 1536 // default for text-embedding-3-small
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &OpenAIEmbedder{
		guard:  newGuard("openai-embeddings", rateTier, rec),
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIEmbedBatch {
		end := min(start+openAIEmbedBatch, len(texts))
		batch := texts[start:end]

		tokens := 0
		for _, t := range batch {
			tokens += utils.EstimateTokens(t)
		}

		out, err := e.guard.run(ctx, "create_embeddings", tokens, func(ctx context.Context) (any, int, error) {
			resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.model),
				Input: batch,
			})
			if err != nil {
				return nil, 0, err
			}
			if len(resp.Data) != len(batch) {
				return nil, 0, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(batch))
			}
			vecs := make([][]float32, len(batch))
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(batch) {
					return nil, 0, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
				}
				v := make([]float32, len(d.Embedding))
				for i := range d.Embedding {
					v[i] = float32(d.Embedding[i])
				}
				utils.L2Normalize(v)
				vecs[d.Index] = v
			}
			return vecs, resp.Usage.TotalTokens, nil
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, out.([][]float32)...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int      { return e.dim }
func (e *OpenAIEmbedder) ModelVersion() string { return "openai/" + e.model }
