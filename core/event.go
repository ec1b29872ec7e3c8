package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies notifications published by the orchestrator and loader.
type EventType string

const (
	EventAgentLoaded    EventType = "agent_loaded"
	EventAgentUnloaded  EventType = "agent_unloaded"
	EventMatchStarted   EventType = "match_started"
	EventMatchPaused    EventType = "match_paused"
	EventMoveApplied    EventType = "move_applied"
	EventSuggestion     EventType = "suggestion"
	EventDecisionFailed EventType = "decision_failed"
	EventIllegalMove    EventType = "illegal_move"
	EventStaleDiscarded EventType = "stale_discarded"
	EventGameOver       EventType = "game_over"
	EventSessionReset   EventType = "session_reset"
	EventMoveUndone     EventType = "move_undone"
	EventAgentLog       EventType = "agent_log"
)

// Event is an immutable notification record. Fields that do not apply to a
// given type are left empty.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	SessionID  string     `json:"session_id,omitempty"`
	AgentID    string     `json:"agent_id,omitempty"`
	Side       Side       `json:"side,omitempty"`
	Move       string     `json:"move,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     GameResult `json:"result,omitempty"`
	Generation uint64     `json:"generation"`
	Ply        int        `json:"ply,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewEvent creates an event of the given type for a session.
func NewEvent(typ EventType, sessionID string) Event {
	return Event{
		ID:        NewID(),
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// WithError returns a copy of the event carrying err's message.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewID returns a random unique identifier.
func NewID() string {
	return uuid.NewString()
}

// Notifier receives events. Implementations must not block for long; they
// are called outside of any orchestrator lock but on the orchestrator's
// goroutine.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev Event)

// Notify calls f.
func (f NotifierFunc) Notify(ev Event) { f(ev) }

// NopNotifier discards events.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(Event) {}
