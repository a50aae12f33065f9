package downloader

import (
	"context"
	"time"
)

// backoff describes how a transfer is retried.
type backoff struct {
	attempts int
	delay    time.Duration
	maxDelay time.Duration
	factor   float64
}

// withRetry calls fn until it succeeds, retryable reports false, the attempts
// run out or ctx ends. The last error is returned.
func withRetry[T any](ctx context.Context, b backoff, fn func(attempt int) (T, error), retryable func(error) bool) (T, error) {
	var (
		zero    T
		lastErr error
	)
	if b.attempts < 1 {
		b.attempts = 1
	}
	delay := b.delay

	for attempt := 1; attempt <= b.attempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == b.attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * b.factor)
		if b.maxDelay > 0 && delay > b.maxDelay {
			delay = b.maxDelay
		}
	}

	return zero, lastErr
}
