package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterAttempts(t *testing.T) {
	cfg := Config{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_MaxRetriesExhausted(t *testing.T) {
	cfg := Config{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2, MaxRetries: 3}
	attempts := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, attempts)
}

func TestRetry_ContextCancel(t *testing.T) {
	cfg := Config{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, cfg, func(ctx context.Context) error {
		return errors.New("never called successfully")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetry_MaxElapsedExhausted(t *testing.T) {
	cfg := Config{Initial: 5 * time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 1, MaxElapsed: 20 * time.Millisecond}
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
}
