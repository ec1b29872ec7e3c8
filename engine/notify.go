package engine

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

// Filter selects the events a subscriber receives.
type Filter func(ev core.Event) bool

// ForSession passes events of one session plus session-less registry events.
func ForSession(sessionID string) Filter {
	return func(ev core.Event) bool {
		return ev.SessionID == "" || ev.SessionID == sessionID
	}
}

// OfType passes events of the given types.
func OfType(types ...core.EventType) Filter {
	set := make(map[core.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(ev core.Event) bool {
		_, ok := set[ev.Type]
		return ok
	}
}

type subscriber struct {
	ch      chan core.Event
	filters []Filter
}

func (s *subscriber) wants(ev core.Event) bool {
	for _, f := range s.filters {
		if !f(ev) {
			return false
		}
	}
	return true
}

// Broadcaster fans events out to subscribers. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	next    uint64
	closed  bool
	dropped atomic.Int64
}

var _ core.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a subscriber with the given buffer size. The
// returned function unsubscribes and closes the channel; it is safe to
// call more than once.
func (b *Broadcaster) Subscribe(buffer int, filters ...Filter) (<-chan core.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan core.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscriber{ch: ch, filters: filters}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Notify implements core.Notifier.
func (b *Broadcaster) Notify(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// LoggingNotifier writes every event to a logger. Failures log at warn
// level, agent output and stale results at debug, the rest at info.
type LoggingNotifier struct {
	Logger logging.Logger
}

// Notify implements core.Notifier.
func (n LoggingNotifier) Notify(ev core.Event) {
	l := logging.OrNoOp(n.Logger)
	args := []any{"event", string(ev.Type), "generation", ev.Generation}
	if ev.SessionID != "" {
		args = append(args, "session_id", ev.SessionID)
	}
	if ev.AgentID != "" {
		args = append(args, "agent_id", ev.AgentID)
	}
	if ev.Move != "" {
		args = append(args, "move", ev.Move)
	}
	if ev.Message != "" {
		args = append(args, "message", ev.Message)
	}
	if ev.Result != "" {
		args = append(args, "result", string(ev.Result))
	}

	switch ev.Type {
	case core.EventDecisionFailed, core.EventIllegalMove:
		l.Warn("Match event", append(args, "error", ev.Error)...)
	case core.EventAgentLog, core.EventStaleDiscarded:
		l.Debug("Match event", args...)
	default:
		l.Info("Match event", args...)
	}
}

// MultiNotifier delivers every event to each notifier in order.
type MultiNotifier []core.Notifier

// Notify implements core.Notifier.
func (m MultiNotifier) Notify(ev core.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}
