// Package retry is the one shared retry policy used for transient-failure
// tolerant calls (the text-generation service and the HTTP API client).
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes bounded exponential backoff with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth retrying. Nil means retry
	// everything except context cancellation.
	Retryable func(error) bool

	// Sleep is injectable for tests; nil uses a context-aware timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is the policy used across the codebase unless a caller needs a
// different shape: 3 attempts, 250ms base, 4s cap.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned unwrapped so callers keep its type.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, p.delay(attempt)); serr != nil {
				return err
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}

// delay returns the backoff before the given attempt (1-based for the first
// retry), with up to 25% random jitter.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
