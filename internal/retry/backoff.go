package retry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Logger receives retry progress. *logging.TurnLogger implements it.
type Logger interface {
	Log(format string, args ...interface{})
}

// RetryConfig configures a bounded retry loop.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first (default: 3)
	BaseDelay   time.Duration `json:"base_delay"`   // Delay unit (default: 1s)
	MaxDelay    time.Duration `json:"max_delay"`    // Cap on a single delay (default: 30s)
	LogRetries  bool          `json:"log_retries"`  // Whether to log retry attempts
	// WaitAfterLast also waits after the final failed attempt, for callers
	// that move on to another tier.
	WaitAfterLast bool `json:"wait_after_last"`
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`       // Total number of attempts made
	TotalDuration time.Duration `json:"total_duration"` // Total time spent on all attempts
	TotalBackoff  time.Duration `json:"total_backoff"`  // Time spent waiting between attempts
	LastError     error         `json:"-"`              // Last error encountered
	Success       bool          `json:"success"`        // Whether the operation eventually succeeded
	RetryReasons  []string      `json:"retry_reasons"`  // Reasons for each failed attempt
}

// LLMRetryConfig returns the model call policy: three attempts, waiting
// 1s, 2s, 3s after each failure.
func LLMRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		LogRetries:  true,
	}
}

// RetryWithBackoff executes an operation with the configured backoff.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation func(ctx context.Context) error, logger Logger) RetryResult {
	return RetryWithBackoffAndReason(ctx, config, func(ctx context.Context) (string, error) {
		err := operation(ctx)
		reason := "unknown_error"
		if err != nil {
			reason = err.Error()
		}
		return reason, err
	}, logger)
}

// RetryWithBackoffAndReason executes an operation with backoff and custom
// reason tracking. The loop is bounded by MaxAttempts and every wait returns
// early when ctx is cancelled.
func RetryWithBackoffAndReason(ctx context.Context, config RetryConfig, operation func(ctx context.Context) (string, error), logger Logger) RetryResult {
	startTime := time.Now()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	logf := func(format string, args ...interface{}) {
		if config.LogRetries && logger != nil {
			logger.Log(format, args...)
		}
	}

	result := RetryResult{RetryReasons: make([]string, 0)}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.TotalDuration = time.Since(startTime)
			logf("Operation cancelled before attempt %d: %v", attempt, err)
			return result
		}

		result.Attempts = attempt
		if attempt == 1 {
			logf("Starting operation (attempt %d/%d)", attempt, config.MaxAttempts)
		} else {
			logf("Retrying operation (attempt %d/%d)", attempt, config.MaxAttempts)
		}

		reason, err := operation(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt == 1 {
				logf("Operation succeeded on first attempt")
			} else {
				logf("Operation succeeded after %d retries (total duration: %v)", attempt-1, result.TotalDuration)
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, reason)
		last := attempt >= config.MaxAttempts
		if last && !config.WaitAfterLast {
			break
		}

		delay := CalculateDelay(config, attempt)
		logf("Operation failed (attempt %d/%d): %v", attempt, config.MaxAttempts, err)
		logf("Waiting %v before next attempt", delay)

		waitStart := time.Now()
		select {
		case <-ctx.Done():
			result.TotalBackoff += time.Since(waitStart)
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			logf("Operation cancelled during backoff delay: %v", ctx.Err())
			return result
		case <-time.After(delay):
			result.TotalBackoff += delay
		}
	}

	result.TotalDuration = time.Since(startTime)
	logf("Operation failed after %d attempts (total duration: %v): %v",
		result.Attempts, result.TotalDuration, result.LastError)
	return result
}

// CalculateDelay returns the wait after the given failed attempt (1-based):
// BaseDelay * attempt, capped at MaxDelay.
func CalculateDelay(config RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := config.BaseDelay * time.Duration(attempt)
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// IsRetryableError reports whether an error looks transient (network,
// timeouts, throttling). It only labels retry reasons; the model call policy
// retries every error up to its budget.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"dns lookup failed",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
