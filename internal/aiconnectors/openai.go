package aiconnectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/livereview/prchat/internal/llm"
)

// OpenAICompleter uses the go-openai client, which exposes the native JSON
// object response format.
type OpenAICompleter struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAICompleter(options ConnectorOptions) *OpenAICompleter {
	cfg := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		cfg.BaseURL = options.BaseURL
	}
	log.Debug().Str("api_key_prefix", keyPrefix(options.APIKey)).Msg("Initializing OpenAI client")
	return &OpenAICompleter{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: options.DefaultModel,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt, model string, opts llm.CallOptions) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            messages,
		Temperature:         float32(opts.Temperature),
		MaxCompletionTokens: opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}
	log.Debug().Str("model", model).Str("finish_reason", string(resp.Choices[0].FinishReason)).Msg("Received response from OpenAI")
	return resp.Choices[0].Message.Content, nil
}
