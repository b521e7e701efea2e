// Package retry gives Adapter connect() calls a bounded retry loop driven
// by Settings.maxRetries / Settings.retryDelay, adapted from
// Icinga-icinga-go-library's retry+backoff packages and simplified to a
// fixed-delay policy, since a single retryDelay setting has no room for a
// backoff curve.
package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RetryableFunc is a function that may be retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryable reports whether a new attempt should be made for err.
type IsRetryable func(err error) bool

// Always treats every error as retryable.
func Always(error) bool { return true }

// WithRetries runs f, retrying up to maxRetries additional times (so up to
// maxRetries+1 total attempts) with a fixed delay between attempts,
// stopping early if ctx is done or isRetryable returns false for the most
// recent error.
func WithRetries(ctx context.Context, maxRetries int, delay time.Duration, isRetryable IsRetryable, f RetryableFunc) error {
	if isRetryable == nil {
		isRetryable = Always
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry canceled")
			case <-time.After(delay):
			}
		}

		err := f(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(lastErr, "failed after %d attempt(s)", maxRetries+1)
}
