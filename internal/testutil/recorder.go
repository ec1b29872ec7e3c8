package testutil

import (
	"sync"

	"github.com/hupe1980/gambit/core"
)

// EventRecorder is a core.Notifier that keeps every event.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

// Notify implements core.Notifier.
func (r *EventRecorder) Notify(ev core.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// OfType returns the recorded events of one type.
func (r *EventRecorder) OfType(typ core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of typ were recorded.
func (r *EventRecorder) Count(typ core.EventType) int {
	return len(r.OfType(typ))
}
