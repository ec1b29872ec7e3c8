package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassNone},
		{ErrEmptyPayload, ClassValidation},
		{fmt.Errorf("%w: 12 bytes", ErrPayloadTooLarge), ClassValidation},
		{ErrRegistryFull, ClassValidation},
		{ErrInvalidFormat, ClassValidation},
		{ErrInvalidConfig, ClassValidation},
		{ErrDecisionInFlight, ClassValidation},
		{ErrBuiltinAgent, ClassValidation},
		{fmt.Errorf("%w: boom", ErrCompileFailed), ClassLoad},
		{ErrInterfaceMismatch, ClassLoad},
		{ErrNoSessionBound, ClassProgrammer},
		{&IllegalMoveError{Move: "e2e5", Err: fmt.Errorf("%w: e2e5", ErrIllegalMove)}, ClassIllegal},
		{ErrGameOver, ClassIllegal},
		{fmt.Errorf("%w: agent a", ErrAgentTimedOut), ClassDecision},
		{&AgentError{AgentID: "a", Op: "select_move", Message: "TypeError"}, ClassDecision},
		{context.Canceled, ClassInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAgentError_Message(t *testing.T) {
	err := &AgentError{AgentID: "a1", Op: "select_move", Message: "x is not defined", Line: 3}
	if got := err.Error(); got != "agent a1: select_move: line 3: x is not defined" {
		t.Fatalf("unexpected message %q", got)
	}

	inner := errors.New("wasm trap")
	err = &AgentError{AgentID: "a1", Op: "select_move", Err: inner}
	if got := err.Error(); got != "agent a1: select_move: wasm trap" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("AgentError does not unwrap")
	}
}

func TestIllegalMoveError(t *testing.T) {
	err := &IllegalMoveError{AgentID: "a1", Move: "e2e5", Err: ErrIllegalMove}
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("IllegalMoveError does not unwrap")
	}
	var target *IllegalMoveError
	if !errors.As(fmt.Errorf("step: %w", err), &target) || target.Move != "e2e5" {
		t.Fatalf("errors.As failed: %+v", target)
	}
}
