// Package retry bounds and repeats request paths other than chat dispatch,
// which has its own soft-timeout race.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/RichardoC/padchat/internal/models"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = 2
	DefaultDelay    = time.Second
)

// WithTimeout runs op under a deadline and reports models.ErrTimeout when the
// deadline wins. Unlike chat dispatch, op's context is cancelled on timeout.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var zero T
			return zero, models.ErrTimeout
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, models.ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithRetry calls op up to attempts times with a fixed delay between calls.
// It stops early on a Permanent error or when ctx is done.
func WithRetry[T any](ctx context.Context, attempts int, delay time.Duration, op func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.RetryWithData[T](op, b)
}
