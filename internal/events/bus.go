// Package events is a small typed in-process pub/sub bus. It replaces the
// string-keyed DOM events the browser build used for cross-component
// signaling: components publish named events with structured payloads and
// subscribers receive them over buffered channels with non-blocking fan-out.
package events

import "sync"

type Type string

const (
	ProjectSelectionComplete  Type = "project-selection-complete"
	ProjectStateUpdated       Type = "project-state-updated"
	WorkspaceStateRestored    Type = "workspace-state-restored"
	RestorationPhaseChanged   Type = "restoration-phase-changed"
	ParentTaskChildrenRemoved Type = "parent-task-children-removed"
	WorkspaceStateSaved       Type = "workspace-state-saved-success"
	Error                     Type = "error"
)

type Event struct {
	Type    Type
	Payload any
}

type Bus struct {
	mu   sync.Mutex
	subs map[Type]map[chan Event]struct{}
	all  map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subs: map[Type]map[chan Event]struct{}{},
		all:  map[chan Event]struct{}{},
	}
}

// Subscribe registers for a single event type. The returned cancel func must be
// called exactly once; it closes the channel.
func (b *Bus) Subscribe(t Type) (ch chan Event, cancel func()) {
	ch = make(chan Event, 16)
	b.mu.Lock()
	m := b.subs[t]
	if m == nil {
		m = map[chan Event]struct{}{}
		b.subs[t] = m
	}
	m[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(m, ch)
		b.mu.Unlock()
		close(ch)
	}
}

// SubscribeAll registers for every event type.
func (b *Bus) SubscribeAll() (ch chan Event, cancel func()) {
	ch = make(chan Event, 16)
	b.mu.Lock()
	b.all[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.all, ch)
		b.mu.Unlock()
		close(ch)
	}
}

// Publish fans the event out to matching subscribers. Slow subscribers drop
// events rather than blocking the publisher.
func (b *Bus) Publish(t Type, payload any) {
	ev := Event{Type: t, Payload: payload}
	b.mu.Lock()
	for ch := range b.subs[t] {
		select {
		case ch <- ev:
		default:
		}
	}
	for ch := range b.all {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}
