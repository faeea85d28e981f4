package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds local retries of transient provider failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the initial delay; it doubles after each failed attempt.
	Backoff time.Duration
	// Timeout bounds each individual attempt. Zero means no per-attempt bound.
	Timeout time.Duration
}

// DefaultRetryPolicy retries transient failures twice after the first attempt.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 3,
	Backoff:  500 * time.Millisecond,
	Timeout:  30 * time.Second,
}

// WithRetry runs fn under the policy, retrying only transient provider errors
// (rate limiting, timeouts). Non-retryable errors and context cancellation
// surface immediately. The logger may be nil.
func WithRetry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	backoff := policy.Backoff
	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		err = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == policy.Attempts || !IsRetryable(err) {
			return err
		}
		if logger != nil {
			logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
