package ai

import (
	"context"
	"fmt"
	"strings"

	"documind/utils"

	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

type GeminiClient struct {
	guard  *guard
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string, rateTier string, rec BreakerRecorder) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		guard:  newGuard("gemini", rateTier, rec),
		client: client,
	}, nil
}

func (gc *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	estimated := utils.EstimateTokens(req.System) + utils.EstimateTokens(req.Prompt)

	out, err := gc.guard.run(ctx, "generate_content", estimated, func(ctx context.Context) (any, int, error) {
		model := gc.client.GenerativeModel(req.Model)
		model.SetTemperature(req.Temperature)
		if req.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(req.MaxTokens))
		}
		if req.System != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
		}
		if req.JSON {
			model.ResponseMIMEType = "application/json"
		}

		resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return nil, 0, err
		}

		text := extractText(resp)
		if text == "" {
			return nil, 0, fmt.Errorf("empty response from gemini")
		}
		in, outTokens := extractTokenUsage(resp, estimated, text)
		return &Response{
			Text:         text,
			Provider:     "gemini",
			Model:        req.Model,
			InputTokens:  in,
			OutputTokens: outTokens,
		}, in + outTokens, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break // first candidate only
	}
	return sb.String()
}

// Extract token usage from Gemini response, estimating when metadata is absent
func extractTokenUsage(resp *genai.GenerateContentResponse, estimatedInput int, text string) (int, int) {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
	}
	out := utils.EstimateTokens(text)
	if out < 1 {
		out = 1 // Minimum 1 token
	}
	return estimatedInput, out
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
