package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestPollReturnsWhenDone(t *testing.T) {
	calls := 0
	value, err := Poll(context.Background(), "test", time.Millisecond, time.Second, func(ctx context.Context) (int, bool, error) {
		calls++
		return calls, calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, value)
	assert.Equal(t, 3, calls)
}

func TestPollStopsOnError(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), "test", time.Millisecond, time.Second, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestPollDeadline(t *testing.T) {
	_, err := Poll(context.Background(), "test", time.Millisecond, 20*time.Millisecond, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})

	require.ErrorIs(t, err, ErrDeadline)
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Poll(ctx, "test", time.Millisecond, 0, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		MaxRetries: 3,
		Delay:      time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, errFlaky) },
	}

	value, err := Retry(context.Background(), policy, "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		MaxRetries: 2,
		Delay:      time.Millisecond,
		Retryable:  func(error) bool { return true },
	}

	_, err := Retry(context.Background(), policy, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	policy := RetryPolicy{
		MaxRetries: 5,
		Delay:      time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, errFlaky) },
	}

	_, err := Retry(context.Background(), policy, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestNoRetry(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), NoRetry, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
