package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/cointax/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	errTransient := errors.New("transient")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		}, fastRetry())
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return Permanent(ErrUnknownToken)
		}, fastRetry())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownToken)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errTransient
		}, fastRetry())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return errTransient }, fastRetry())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoff(t *testing.T) {
	b := newBackoff(service.RetryOptions{InitialDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond, Multiplier: 2})
	transient := errors.New("transient")

	assert.Equal(t, 10*time.Millisecond, b.delay(transient))
	assert.Equal(t, 20*time.Millisecond, b.delay(transient))
	assert.Equal(t, 35*time.Millisecond, b.delay(transient))
	assert.Equal(t, 35*time.Millisecond, b.delay(ErrRateLimit))

	defaults := newBackoff(service.RetryOptions{})
	assert.Equal(t, 100*time.Millisecond, defaults.delay(transient))
	assert.Equal(t, 30*time.Second, defaults.delay(fmt.Errorf("wrapped: %w", ErrRateLimit)))
}
