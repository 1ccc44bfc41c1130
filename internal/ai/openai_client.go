package ai

import (
	"context"
	"fmt"

	"documind/utils"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient serves chat completions through go-openai.
type OpenAIClient struct {
	guard  *guard
	client *openai.Client
}

func NewOpenAIClient(apiKey, rateTier string, rec BreakerRecorder) *OpenAIClient {
	return &OpenAIClient{
		guard:  newGuard("openai", rateTier, rec),
		client: openai.NewClient(apiKey),
	}
}

func (oc *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	estimated := utils.EstimateTokens(req.System) + utils.EstimateTokens(req.Prompt)

	out, err := oc.guard.run(ctx, "chat_completion", estimated, func(ctx context.Context) (any, int, error) {
		messages := make([]openai.ChatCompletionMessage, 0, 2)
		if req.System != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

		params := openai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}
		if req.JSON {
			params.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		}

		resp, err := oc.client.CreateChatCompletion(ctx, params)
		if err != nil {
			return nil, 0, err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return nil, 0, fmt.Errorf("empty response from openai")
		}
		return &Response{
			Text:         resp.Choices[0].Message.Content,
			Provider:     "openai",
			Model:        req.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, resp.Usage.TotalTokens, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}
