package sched

import (
	"testing"
	"time"
)

func TestManual_AdvanceFiresDueTimersInOrder(t *testing.T) {
	t.Parallel()

	c := NewManual(time.Unix(0, 0))
	var got []string
	c.AfterFunc(200*time.Millisecond, func() { got = append(got, "b") })
	c.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	c.AfterFunc(time.Second, func() { got = append(got, "never") })

	c.Advance(500 * time.Millisecond)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected firing order: %v", got)
	}
	if want := time.Unix(0, 0).Add(500 * time.Millisecond); !c.Now().Equal(want) {
		t.Fatalf("clock at %v, want %v", c.Now(), want)
	}
}

func TestManual_StopPreventsFiring(t *testing.T) {
	t.Parallel()

	c := NewManual(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(100*time.Millisecond, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop should report the timer was active")
	}
	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestManual_ResetReschedules(t *testing.T) {
	t.Parallel()

	c := NewManual(time.Unix(0, 0))
	count := 0
	timer := c.AfterFunc(100*time.Millisecond, func() { count++ })
	timer.Reset(300 * time.Millisecond)

	c.Advance(200 * time.Millisecond)
	if count != 0 {
		t.Fatal("timer fired before its reset due time")
	}
	c.Advance(200 * time.Millisecond)
	if count != 1 {
		t.Fatalf("timer fired %d times, want 1", count)
	}
}

func TestManual_CallbackMaySchedule(t *testing.T) {
	t.Parallel()

	c := NewManual(time.Unix(0, 0))
	fired := false
	c.AfterFunc(100*time.Millisecond, func() {
		c.AfterFunc(100*time.Millisecond, func() { fired = true })
	})
	c.Advance(time.Second)
	if !fired {
		t.Fatal("chained timer did not fire")
	}
}
