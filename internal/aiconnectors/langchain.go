package aiconnectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/livereview/prchat/internal/llm"
)

// LangchainCompleter sends chat completions through any langchaingo model.
type LangchainCompleter struct {
	provider Provider
	model    llms.Model
}

func NewLangchainCompleter(provider Provider, model llms.Model) *LangchainCompleter {
	return &LangchainCompleter{provider: provider, model: model}
}

func (c *LangchainCompleter) Complete(ctx context.Context, prompt, model string, opts llm.CallOptions) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if opts.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, opts.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOptions := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if model != "" {
		callOptions = append(callOptions, llms.WithModel(model))
	}
	if opts.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(opts.MaxTokens))
	}
	// Ollama and Gemini honour JSON mode; the others ignore it.
	if opts.JSONMode {
		callOptions = append(callOptions, llms.WithJSONMode())
	}

	log.Debug().
		Str("provider", string(c.provider)).
		Str("model", model).
		Int("prompt_chars", len(prompt)).
		Msg("Calling model")

	resp, err := c.model.GenerateContent(ctx, messages, callOptions...)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New(string(c.provider) + " returned no choices")
	}
	return resp.Choices[0].Content, nil
}
