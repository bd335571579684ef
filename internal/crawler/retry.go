package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy retries transient fetch failures a fixed number of times with
// a fixed delay between attempts. Both knobs are configuration-level
// choices rather than structural constants.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// NewRetryPolicy builds a policy, clamping Attempts to at least one.
func NewRetryPolicy(attempts int, delay time.Duration) RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return RetryPolicy{Attempts: attempts, Delay: delay}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unwrapped so callers
// can classify it.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == p.Attempts {
			return lastErr
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return fmt.Errorf("retry wait: %w", err)
		}
	}
	return lastErr
}

// retryable reports whether the error is a transient fetch failure.
// Extraction and persistence errors are never retried here: extraction is
// deterministic and persistence failures are handled by the caller.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
