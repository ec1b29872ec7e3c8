package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is returned when a payload does not match any supported runtime kind.
	ErrInvalidFormat = errors.New("invalid payload format")
	// ErrEmptyPayload is returned for zero-length uploads.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrPayloadTooLarge is returned when a payload exceeds the configured ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrRegistryFull is returned when the uploaded agent ceiling is reached.
	ErrRegistryFull = errors.New("agent registry full")
	// ErrInterfaceMismatch is returned when a module compiles but lacks the decision entry points.
	ErrInterfaceMismatch = errors.New("agent interface mismatch")
	// ErrCompileFailed is returned when compilation or instantiation fails.
	ErrCompileFailed = errors.New("agent compilation failed")

	// ErrAgentNotFound is returned for unknown agent ids.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEntryPointMissing is returned by a Runtime for an optional entry point the agent does not define.
	ErrEntryPointMissing = errors.New("entry point not defined")

	// ErrAgentTimedOut is returned when a decision does not complete within the timeout.
	ErrAgentTimedOut = errors.New("agent timed out")
	// ErrIllegalMove is returned when the rules engine rejects a move.
	ErrIllegalMove = errors.New("illegal move")
	// ErrGameOver is returned when a move is applied to a finished game.
	ErrGameOver = errors.New("game over")
	// ErrStaleGeneration is returned when a result targets a superseded game state.
	ErrStaleGeneration = errors.New("stale generation")
	// ErrNothingToUndo is returned by Undo on a game without moves.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNoSessionBound is returned by capability calls made outside a game.
	ErrNoSessionBound = errors.New("no session bound")
	// ErrDecisionInFlight is returned when a step is requested while one is running.
	ErrDecisionInFlight = errors.New("decision already in flight")
	// ErrNotAgentTurn is returned when the side to move is seated by a human.
	ErrNotAgentTurn = errors.New("side to move is not controlled by an agent")
	// ErrAgentSeat is returned when a human move is played for a side seated in auto mode.
	ErrAgentSeat = errors.New("side to move is controlled by an agent")
	// ErrInvalidConfig is returned for malformed match configuration.
	ErrInvalidConfig = errors.New("invalid match configuration")
	// ErrBuiltinAgent is returned when unloading an agent of the built-in catalog.
	ErrBuiltinAgent = errors.New("built-in agents cannot be unloaded")
)

// AgentError describes a failure raised from inside agent code: a script
// exception, a syntax error or a sandbox trap. Line is zero when unknown.
type AgentError struct {
	AgentID string
	Kind    RuntimeKind
	Op      string
	Message string
	Line    int
	Err     error
}

func (e *AgentError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("agent %s: %s: line %d: %s", e.AgentID, e.Op, e.Line, msg)
	}
	return fmt.Sprintf("agent %s: %s: %s", e.AgentID, e.Op, msg)
}

func (e *AgentError) Unwrap() error { return e.Err }

// IllegalMoveError carries the offending move of a rejected decision.
type IllegalMoveError struct {
	AgentID string
	Move    string
	Err     error
}

func (e *IllegalMoveError) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("agent %s returned illegal move %q: %v", e.AgentID, e.Move, e.Err)
	}
	return fmt.Sprintf("illegal move %q: %v", e.Move, e.Err)
}

func (e *IllegalMoveError) Unwrap() error { return e.Err }

// ErrorClass groups errors for callers that need to react by category.
type ErrorClass string

const (
	ClassNone       ErrorClass = ""
	ClassValidation ErrorClass = "validation"
	ClassLoad       ErrorClass = "load"
	ClassDecision   ErrorClass = "decision"
	ClassIllegal    ErrorClass = "illegal-result"
	ClassProgrammer ErrorClass = "programmer"
	ClassInternal   ErrorClass = "internal"
)

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorClass {
	var agentErr *AgentError
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidFormat), errors.Is(err, ErrEmptyPayload),
		errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrRegistryFull):
		return ClassValidation
	case errors.Is(err, ErrCompileFailed), errors.Is(err, ErrInterfaceMismatch):
		return ClassLoad
	case errors.Is(err, ErrNoSessionBound):
		return ClassProgrammer
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrNotAgentTurn), errors.Is(err, ErrAgentSeat),
		errors.Is(err, ErrDecisionInFlight), errors.Is(err, ErrNothingToUndo), errors.Is(err, ErrBuiltinAgent):
		return ClassValidation
	case errors.Is(err, ErrIllegalMove), errors.Is(err, ErrGameOver):
		return ClassIllegal
	case errors.Is(err, ErrAgentTimedOut), errors.As(err, &agentErr):
		return ClassDecision
	default:
		return ClassInternal
	}
}
