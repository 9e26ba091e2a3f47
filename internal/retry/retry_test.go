package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_ReturnsLastErrorUnwrapped(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("still broken")
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: noSleep}
	err := p.Do(context.Background(), func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel error, got %v", err)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	perm := errors.New("permanent")
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Sleep:       noSleep,
		Retryable:   func(err error) bool { return !errors.Is(err, perm) },
	}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("want permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancellationWins(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: noSleep}
	err := p.Do(ctx, func() error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
