// Package sched abstracts wall-clock reads and timer scheduling so that the
// timer-heavy coordination code (debounced saves, lock expiry, restoration
// phase fallbacks) can be driven deterministically in tests.
package sched

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock reads time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

// Real returns the system clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Manual is a test clock. Time only moves when Advance is called; timers due at
// or before the new time fire synchronously, in due order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	t := &manualTimer{clock: m, fn: fn, due: m.now.Add(d), active: true}
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// Advance moves the clock forward and fires due timers. Callbacks run without
// the clock lock held, so they may schedule or reset other timers.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.due.After(m.now) {
			m.now = next.due
		}
		next.active = false
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if !t.active || t.due.After(target) {
			continue
		}
		if best == nil || t.due.Before(best.due) {
			best = t
		}
	}
	return best
}

type manualTimer struct {
	clock  *Manual
	fn     func()
	due    time.Time
	active bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.due = t.clock.now.Add(d)
	t.active = true
	return was
}
