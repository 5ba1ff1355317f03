package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/livereview/prchat/internal/llm"
)

// AnthropicCompleter uses the official Anthropic SDK. The API has no JSON
// mode, so the system prompt carries the JSON-only instruction.
type AnthropicCompleter struct {
	api          *anthropic.Client
	defaultModel string
}

func NewAnthropicCompleter(options ConnectorOptions) *AnthropicCompleter {
	var opts []option.RequestOption
	if options.APIKey != "" {
		opts = append(opts, option.WithAPIKey(options.APIKey))
	}
	if options.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(options.BaseURL))
	}
	// retries belong to the tiered client
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)
	return &AnthropicCompleter{api: &client, defaultModel: options.DefaultModel}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, prompt, model string, opts llm.CallOptions) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("no text content in API response")
	}
	return text.String(), nil
}
