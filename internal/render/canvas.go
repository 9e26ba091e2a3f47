// Package render is the in-process render surface: the canvas transform,
// element opacities and the transitions kill switch, with change broadcast
// for live views (the SSE stream and the terminal UI both subscribe).
package render

import (
	"sync"
	"time"

	"taskcanvas/internal/model"
	"taskcanvas/internal/sched"
)

// Snapshot is a copy of the canvas for one frame.
type Snapshot struct {
	Transform           model.ViewportState
	TransitionsDisabled bool
	Opacity             map[string]float64
}

// Canvas satisfies both the viewport coordinator's and the restoration
// controller's surface contracts.
type Canvas struct {
	mu                  sync.Mutex
	transform           model.ViewportState
	transitionsDisabled bool
	opacity             map[string]float64
	subs                map[chan struct{}]struct{}

	clock sched.Clock

	// Revealed is invoked after a reveal delay elapses, typically wired to
	// the restoration controller's NotifyElementRevealed. Optional.
	Revealed func(id string)
}

func NewCanvas(clock sched.Clock) *Canvas {
	if clock == nil {
		clock = sched.Real()
	}
	return &Canvas{
		transform: model.DefaultViewport(),
		opacity:   map[string]float64{},
		subs:      map[chan struct{}]struct{}{},
		clock:     clock,
	}
}

func (c *Canvas) ApplyTransform(t model.ViewportState) {
	c.mu.Lock()
	c.transform = t.Sanitize()
	c.mu.Unlock()
	c.broadcast()
}

func (c *Canvas) SetTransitionsDisabled(disabled bool) {
	c.mu.Lock()
	c.transitionsDisabled = disabled
	c.mu.Unlock()
	c.broadcast()
}

// RevealElement fades an element in after delay and reports completion
// through Revealed.
func (c *Canvas) RevealElement(id string, delay time.Duration) {
	c.clock.AfterFunc(delay, func() {
		c.SetOpacity(id, 1)
		if c.Revealed != nil {
			c.Revealed(id)
		}
	})
}

func (c *Canvas) SetOpacity(id string, v float64) {
	c.mu.Lock()
	c.opacity[id] = v
	c.mu.Unlock()
	c.broadcast()
}

// ApplyVisualStates maps the workspace visual-state map onto opacities.
// Entries absent from states are treated as hidden.
func (c *Canvas) ApplyVisualStates(states map[string]model.VisualState) {
	c.mu.Lock()
	c.opacity = make(map[string]float64, len(states))
	for id, vs := range states {
		c.opacity[id] = vs.Opacity()
	}
	c.mu.Unlock()
	c.broadcast()
}

func (c *Canvas) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Snapshot{
		Transform:           c.transform,
		TransitionsDisabled: c.transitionsDisabled,
		Opacity:             make(map[string]float64, len(c.opacity)),
	}
	for id, v := range c.opacity {
		out.Opacity[id] = v
	}
	return out
}

// Subscribe returns a change-notification channel. Notifications coalesce;
// read the Snapshot for current state.
func (c *Canvas) Subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
	}
}

func (c *Canvas) broadcast() {
	c.mu.Lock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()
}
