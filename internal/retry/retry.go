// Package retry holds the one retry policy shared by manifest fetching and
// segment downloads, so backoff behavior lives in a single injectable value
// instead of per-call loops.
package retry

import (
	"context"
	"time"
)

// Policy bounds repeated attempts of a single operation. Delay receives the
// 1-based number of the attempt that just failed. Retryable decides whether
// an error is transient; nil means every error is.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// LinearBackoff waits attempt*base between tries.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Default is the pipeline policy: three attempts, 500ms linear backoff.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       LinearBackoff(500 * time.Millisecond),
	}
}

// Do runs op until it succeeds, MaxAttempts is exhausted, a non-retryable
// error occurs, or ctx is done. It returns the number of attempts made and
// the final error.
func (p Policy) Do(ctx context.Context, op func() error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, lastErr
		}
		lastErr = op()
		if lastErr == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt < maxAttempts && p.Delay != nil {
			select {
			case <-time.After(p.Delay(attempt)):
			case <-ctx.Done():
				return attempt, lastErr
			}
		}
	}
	return maxAttempts, lastErr
}
