// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"time"
)

// Policy bounds the retries of one operation.
type Policy struct {
	MaxAttempts int           // total attempts including the first; <= 0 means 1
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay; 0 means uncapped
}

// Backoff returns the delay before attempt n (1-based, n >= 2):
// BaseDelay, 2*BaseDelay, 4*BaseDelay ... capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	if n < 2 || p.BaseDelay <= 0 {
		return 0
	}
	shift := n - 2
	if shift > 30 {
		shift = 30
	}
	d := p.BaseDelay << uint(shift)
	if d < p.BaseDelay || d>>uint(shift) != p.BaseDelay {
		d = time.Duration(1<<63 - 1)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns an error retryable rejects, or
// the attempts are exhausted. It returns the number of attempts made and
// the last error. A cancelled context stops the wait between attempts and
// returns the context error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return attempt - 1, err
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if retryable == nil || !retryable(lastErr) {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
