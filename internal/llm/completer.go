// Package llm wraps language model calls with the two-tier retry policy and
// turns raw replies into JSON the orchestrator can decode.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrModelUnavailable is returned once every tier has used its attempts.
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrInvalidReply marks a reply that could not be turned into JSON.
	ErrInvalidReply = errors.New("invalid model reply")
)

// SystemPrompt is sent as the system message of every chat completion.
const SystemPrompt = "You are an expert code review assistant for GitHub Pull Requests. Always respond with valid JSON only."

// CallOptions are passed through to the provider on every attempt.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	System      string
}

// DefaultCallOptions returns temperature 0.3, 2000 tokens, JSON mode.
func DefaultCallOptions() CallOptions {
	return CallOptions{
		Temperature: 0.3,
		MaxTokens:   2000,
		JSONMode:    true,
		System:      SystemPrompt,
	}
}

// Completer is a single call to a language model. Implementations live in
// the aiconnectors package. Every returned error is treated as transient.
type Completer interface {
	Complete(ctx context.Context, prompt, model string, opts CallOptions) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt, model string, opts CallOptions) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt, model string, opts CallOptions) (string, error) {
	return f(ctx, prompt, model, opts)
}
