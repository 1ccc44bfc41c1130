package ai

import (
	"context"
	"fmt"
	"strings"

	"documind/utils"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient serves the Messages API.
type AnthropicClient struct {
	guard  *guard
	client anthropic.Client
}

func NewAnthropicClient(apiKey, rateTier string, rec BreakerRecorder) *AnthropicClient {
	return &AnthropicClient{
		guard:  newGuard("anthropic", rateTier, rec),
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
	}
}

func (ac *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	estimated := utils.EstimateTokens(req.System) + utils.EstimateTokens(req.Prompt)

	out, err := ac.guard.run(ctx, "messages", estimated, func(ctx context.Context) (any, int, error) {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultAnthropicMaxTokens
		}
		prompt := req.Prompt
		if req.JSON {
			prompt += "\n\nRespond with a single JSON object and nothing else."
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		}
		if req.Temperature > 0 {
			params.Temperature = anthropic.Float(float64(req.Temperature))
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		resp, err := ac.client.Messages.New(ctx, params)
		if err != nil {
			return nil, 0, err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return nil, 0, fmt.Errorf("empty response from anthropic")
		}

		in, outTokens := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
		return &Response{
			Text:         text.String(),
			Provider:     "anthropic",
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
