package async

import (
	"context"
	"time"

	"github.com/kelsos/safe-swap/internal/logger"
)

// RetryPolicy controls how idempotent reads are retried
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int
	// Delay before the first retry; it doubles on each following attempt
	Delay time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries nothing.
	Retryable func(error) bool
}

// NoRetry runs the operation exactly once
var NoRetry = RetryPolicy{}

// Retry runs fn until it succeeds, returns a non-retryable error or the policy is exhausted.
// Only use it for operations that are safe to repeat.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	delay := policy.Delay

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}

		if attempt >= policy.MaxRetries || policy.Retryable == nil || !policy.Retryable(err) {
			return value, err
		}

		logger.Warn("%s failed (attempt %d/%d), retrying in %v: %v", name, attempt+1, policy.MaxRetries+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
