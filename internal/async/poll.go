package async

import (
	"context"
	"errors"
	"time"

	"github.com/kelsos/safe-swap/internal/logger"
)

// ErrDeadline is returned when a poll loop runs past its timeout
var ErrDeadline = errors.New("poll deadline exceeded")

// CheckFunc reports whether the awaited condition holds.
// A non-nil error stops polling immediately.
type CheckFunc[T any] func(ctx context.Context) (T, bool, error)

// Poll calls check once right away and then on every tick of interval until it reports done,
// returns an error, the timeout passes or ctx is cancelled.
// A zero timeout means no deadline other than ctx.
func Poll[T any](ctx context.Context, name string, interval, timeout time.Duration, check CheckFunc[T]) (T, error) {
	var zero T

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		value, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			logger.Debug("%s: done after %d checks", name, attempt)
			return value, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, ErrDeadline
			}
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}
