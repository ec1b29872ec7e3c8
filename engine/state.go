package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a match would move between states
// the orchestrator does not allow.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// State is the per-session position of the ply loop.
type State string

const (
	// StateIdle waits for the next step.
	StateIdle State = "idle"
	// StateAwaitingDecision has a decision call in flight.
	StateAwaitingDecision State = "awaiting_decision"
	// StateApplying hands a decided move to the rules engine.
	StateApplying State = "applying"
	// StateFailed is entered on an agent error or an illegal move and left
	// immediately for Idle with the match paused.
	StateFailed State = "failed"
)

var transitions = map[State][]State{
	StateIdle:             {StateAwaitingDecision},
	StateAwaitingDecision: {StateApplying, StateIdle, StateFailed},
	StateApplying:         {StateIdle, StateFailed},
	StateFailed:           {StateIdle},
}

// CanTransitionTo reports whether next may follow s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) transition(next State) (State, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
