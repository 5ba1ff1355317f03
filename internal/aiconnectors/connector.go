// Package aiconnectors provides llm.Completer implementations backed by
// langchaingo and by the native OpenAI and Anthropic SDKs.
package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/livereview/prchat/internal/llm"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderCohere Provider = "cohere"
	ProviderOllama Provider = "ollama"
)

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ParseProvider accepts the provider names used in configuration.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderGemini, ProviderClaude, ProviderCohere, ProviderOllama:
		return p, nil
	case "anthropic":
		return ProviderClaude, nil
	case "google", "googleai":
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
}

// ConnectorOptions contains options for creating a completer.
type ConnectorOptions struct {
	Provider Provider `json:"provider"`
	APIKey   string   `json:"api_key"`
	BaseURL  string   `json:"base_url,omitempty"`
	// DefaultModel is used when a call does not name one.
	DefaultModel string `json:"default_model,omitempty"`
	// NativeSDK routes openai and claude through their official SDKs
	// instead of langchaingo.
	NativeSDK bool `json:"native_sdk,omitempty"`
}

// NewCompleter creates the completer for the configured provider.
func NewCompleter(ctx context.Context, options ConnectorOptions) (llm.Completer, error) {
	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.DefaultModel).
		Bool("native_sdk", options.NativeSDK).
		Msg("Creating completer")

	if options.NativeSDK {
		switch options.Provider {
		case ProviderOpenAI:
			return NewOpenAICompleter(options), nil
		case ProviderClaude:
			return NewAnthropicCompleter(options), nil
		}
	}

	model, err := newLangchainModel(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}
	return NewLangchainCompleter(options.Provider, model), nil
}

func newLangchainModel(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(options.DefaultModel),
			openai.WithToken(options.APIKey),
		}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		return openai.New(opts...)
	case ProviderGemini:
		opts := []googleai.Option{googleai.WithAPIKey(options.APIKey)}
		if options.DefaultModel != "" {
			opts = append(opts, googleai.WithDefaultModel(options.DefaultModel))
		}
		return googleai.New(ctx, opts...)
	case ProviderClaude:
		opts := []anthropic.Option{
			anthropic.WithToken(options.APIKey),
			anthropic.WithModel(options.DefaultModel),
		}
		if options.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
		}
		return anthropic.New(opts...)
	case ProviderCohere:
		opts := []cohere.Option{
			cohere.WithToken(options.APIKey),
			cohere.WithModel(options.DefaultModel),
		}
		if options.BaseURL != "" {
			opts = append(opts, cohere.WithBaseURL(options.BaseURL))
		}
		return cohere.New(opts...)
	case ProviderOllama:
		baseURL := options.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(options.DefaultModel),
		)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, options.Provider)
}

// Ping sends a minimal prompt to check credentials and reachability.
func Ping(ctx context.Context, c llm.Completer, model string) error {
	_, err := c.Complete(ctx, "Reply with {\"ok\": true}", model, llm.CallOptions{
		MaxTokens: 10,
		JSONMode:  true,
		System:    llm.SystemPrompt,
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "429") || strings.Contains(strings.ToLower(errStr), "quota") {
			return fmt.Errorf("quota exceeded - the API key is probably valid but rate limited: %w", err)
		}
		return fmt.Errorf("model ping failed: %w", err)
	}
	return nil
}

func keyPrefix(apiKey string) string {
	return apiKey[:min(len(apiKey), 6)]
}
