package testutil

import (
	"fmt"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/rules"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").FEN(fen).Moves("e2e4", "e7e5").Build()
type SessionBuilder struct {
	id    string
	fen   string
	moves []string
}

// NewSessionBuilder creates a builder for a session with the given id
// starting from the standard position.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// FEN sets the starting position (chainable).
func (b *SessionBuilder) FEN(fen string) *SessionBuilder {
	b.fen = fen
	return b
}

// Moves appends plies played before the session is returned (chainable).
func (b *SessionBuilder) Moves(moves ...string) *SessionBuilder {
	b.moves = append(b.moves, moves...)
	return b
}

// Game returns the rules game for the configured position without moves.
func (b *SessionBuilder) Game() core.Game {
	if b.fen == "" {
		return rules.New()
	}
	g, err := rules.FromFEN(b.fen)
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid FEN %q: %v", b.fen, err))
	}
	return g
}

// Build returns the session. It panics on an invalid position or move.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.Game())
	for _, mv := range b.moves {
		if _, err := s.Apply(mv); err != nil {
			panic(fmt.Sprintf("testutil: move %s: %v", mv, err))
		}
	}
	return s
}
