package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/cointax/internal/service"
)

var (
	// ErrRateLimit is returned by an operation the remote API throttled.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries wraps the last error once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError marks whether WithRetry should try an error again.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Permanent stops WithRetry on the first occurrence of err.
func Permanent(err error) error {
	return &RetryableError{Err: err, Retryable: false}
}

// backoff yields exponentially growing delays capped at max. A rate limit
// jumps straight to the cap.
type backoff struct {
	next       time.Duration
	max        time.Duration
	multiplier float64
}

func newBackoff(opts service.RetryOptions) *backoff {
	b := &backoff{next: opts.InitialDelay, max: opts.MaxDelay, multiplier: opts.Multiplier}
	if b.next <= 0 {
		b.next = 100 * time.Millisecond
	}
	if b.max <= 0 {
		b.max = 30 * time.Second
	}
	if b.multiplier <= 0 {
		b.multiplier = 2
	}
	return b
}

func (b *backoff) delay(err error) time.Duration {
	if errors.Is(err, ErrRateLimit) {
		return b.max
	}
	d := min(b.next, b.max)
	b.next = min(time.Duration(float64(b.next)*b.multiplier), b.max)
	return d
}

// WithRetry runs operation until it succeeds, returns a Permanent error, the
// context ends or opts.MaxAttempts is reached.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	wait := newBackoff(opts)

	var err error
	for attempt := 1; ; attempt++ {
		if err = operation(); err == nil {
			return nil
		}

		var marked *RetryableError
		if errors.As(err, &marked) && !marked.Retryable {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempts, err)
		}

		d := wait.delay(err)
		slog.Debug("Retrying after failure", "attempt", attempt, "of", attempts, "delay", d, "error", err)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
