package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/metrics"
	"github.com/livereview/prchat/internal/retry"
)

// Tier is one model in the call policy together with its retry budget.
type Tier struct {
	Name  string
	Model string
	Retry retry.RetryConfig
}

// TieredClient calls the primary model and, once its attempts are used up,
// the secondary model. Each tier runs its own bounded retry loop; a tier is
// never revisited.
type TieredClient struct {
	completer      Completer
	tiers          []Tier
	callOptions    CallOptions
	requestTimeout time.Duration
}

// TieredOptions configures NewTieredClient.
type TieredOptions struct {
	PrimaryModel   string
	SecondaryModel string
	MaxAttempts    int
	BaseDelay      time.Duration
	RequestTimeout time.Duration
	CallOptions    CallOptions
}

// NewTieredClient builds the two-tier policy. The primary tier keeps waiting
// after its last failure so the hand-off to the secondary tier is paced like
// any other retry; the secondary tier returns as soon as it is exhausted.
func NewTieredClient(completer Completer, opts TieredOptions) *TieredClient {
	primary := retry.LLMRetryConfig()
	if opts.MaxAttempts > 0 {
		primary.MaxAttempts = opts.MaxAttempts
	}
	if opts.BaseDelay > 0 {
		primary.BaseDelay = opts.BaseDelay
	}
	secondary := primary
	primary.WaitAfterLast = true

	tiers := []Tier{{Name: "primary", Model: opts.PrimaryModel, Retry: primary}}
	if opts.SecondaryModel != "" {
		tiers = append(tiers, Tier{Name: "secondary", Model: opts.SecondaryModel, Retry: secondary})
	}

	callOptions := opts.CallOptions
	if callOptions == (CallOptions{}) {
		callOptions = DefaultCallOptions()
	}

	return &TieredClient{
		completer:      completer,
		tiers:          tiers,
		callOptions:    callOptions,
		requestTimeout: opts.RequestTimeout,
	}
}

// Tiers returns the configured tiers in call order.
func (tc *TieredClient) Tiers() []Tier {
	return append([]Tier(nil), tc.tiers...)
}

// TieredResult describes a completed or exhausted call.
type TieredResult struct {
	Raw          string
	Processed    ProcessorResult
	Tier         string
	Model        string
	Attempts     int
	TotalBackoff time.Duration
	Duration     time.Duration
	RetryReasons []string
}

// Generate sends prompt through the tiers until a reply decodes into target.
// A reply that cannot be decoded counts as a failed attempt. When every
// attempt failed the error wraps ErrInvalidReply if the last failure was an
// undecodable reply, ErrModelUnavailable otherwise; the last raw reply is
// kept in the result so callers can salvage it.
func (tc *TieredClient) Generate(ctx context.Context, prompt string, target interface{}, logger retry.Logger) (TieredResult, error) {
	start := time.Now()
	var result TieredResult
	var lastErr error

	for _, tier := range tc.tiers {
		tier := tier
		attempt := 0
		rr := retry.RetryWithBackoffAndReason(ctx, tier.Retry, func(ctx context.Context) (string, error) {
			attempt++
			raw, err := tc.call(ctx, tier, prompt, logger)
			if err != nil {
				if retry.IsRetryableError(err) {
					return "transient_error", err
				}
				return "model_error", err
			}
			result.Raw = raw
			processed, err := ProcessLLMResponse(raw, target, logger)
			result.Processed = processed
			if err != nil {
				metrics.ModelCalls.WithLabelValues(tier.Name, "invalid_reply").Inc()
				return "json_processing_failed", err
			}
			metrics.ModelCalls.WithLabelValues(tier.Name, "ok").Inc()
			return "success", nil
		}, logger)

		result.Attempts += rr.Attempts
		result.TotalBackoff += rr.TotalBackoff
		result.RetryReasons = append(result.RetryReasons, rr.RetryReasons...)

		if rr.Success {
			result.Tier = tier.Name
			result.Model = tier.Model
			result.Duration = time.Since(start)
			log.Debug().
				Str("tier", tier.Name).
				Str("model", tier.Model).
				Int("attempts", result.Attempts).
				Dur("backoff", result.TotalBackoff).
				Msg("Model call succeeded")
			return result, nil
		}

		lastErr = rr.LastError
		log.Warn().Err(lastErr).
			Str("tier", tier.Name).
			Str("model", tier.Model).
			Int("attempts", rr.Attempts).
			Msg("Model tier exhausted")

		if ctx.Err() != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("%w: %w", ErrModelUnavailable, ctx.Err())
		}
	}

	result.Duration = time.Since(start)
	if errors.Is(lastErr, ErrInvalidReply) {
		return result, fmt.Errorf("all %d attempts returned unusable replies: %w", result.Attempts, lastErr)
	}
	return result, fmt.Errorf("%w after %d attempts: %v", ErrModelUnavailable, result.Attempts, lastErr)
}

// requestLogger is implemented by *logging.TurnLogger.
type requestLogger interface {
	LogRequest(tier, model, prompt string)
}

func (tc *TieredClient) call(ctx context.Context, tier Tier, prompt string, logger retry.Logger) (string, error) {
	if rl, ok := logger.(requestLogger); ok {
		rl.LogRequest(tier.Name, tier.Model, prompt)
	}
	if tc.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tc.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := tc.completer.Complete(ctx, prompt, tier.Model, tc.callOptions)
	metrics.ModelLatency.WithLabelValues(tier.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCalls.WithLabelValues(tier.Name, "error").Inc()
		return "", fmt.Errorf("%s model %s: %w", tier.Name, tier.Model, err)
	}
	return raw, nil
}
