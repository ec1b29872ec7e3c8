package core

import (
	"fmt"
	"sync"
	"time"
)

// MoveRecord is one entry of a session's move history.
type MoveRecord struct {
	Ply        int        `json:"ply"`
	Side       Side       `json:"side"`
	Move       string     `json:"move"`
	AgentID    string     `json:"agent_id,omitempty"`
	Check      bool       `json:"check"`
	Result     GameResult `json:"result"`
	Position   string     `json:"position"`
	Generation uint64     `json:"generation"`
	At         time.Time  `json:"at"`
}

// Token identifies the exact game state a decision was requested for.
// Any reset, undo, reconfiguration or applied move invalidates it.
type Token struct {
	Generation uint64 `json:"generation"`
	Ply        int    `json:"ply"`
}

// Session is a live game together with its move history and generation
// counter. It is safe for concurrent access and implements GameState, so
// capability hosts can read it while the orchestrator mutates it.
//
// Contract:
//   - the generation only grows; Reset, Undo and Bump increment it
//   - ApplyIf checks the token and applies the move under one lock
//   - History returns a defensive copy
//   - every game call, reads included, runs under the lock; games may
//     cache lazily and are not safe for concurrent use
type Session struct {
	ID      string
	Created time.Time

	mu         sync.Mutex
	game       Game
	history    []MoveRecord
	generation uint64
	updated    time.Time
}

// NewSession creates a session around a game.
func NewSession(id string, game Game) *Session {
	now := time.Now()
	return &Session{ID: id, Created: now, updated: now, game: game}
}

// Generation returns the current generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Token returns the token for the current state.
func (s *Session) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Token{Generation: s.generation, Ply: len(s.history)}
}

// Current reports whether tok still describes the session's state.
func (s *Session) Current(tok Token) bool {
	return s.Token() == tok
}

// History returns a copy of the move history.
func (s *Session) History() []MoveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MoveRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of plies played.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Updated returns the time of the last mutation.
func (s *Session) Updated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// ApplyIf applies move if tok is still current. It is the only path through
// which decisions reach the rules engine.
func (s *Session) ApplyIf(tok Token, move, agentID string) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.Generation != s.generation || tok.Ply != len(s.history) {
		return MoveRecord{}, fmt.Errorf("%w: token %d/%d, session %d/%d", ErrStaleGeneration, tok.Generation, tok.Ply, s.generation, len(s.history))
	}
	return s.applyLocked(move, agentID)
}

// Apply applies move to the current state regardless of generation.
func (s *Session) Apply(move string) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(move, "")
}

func (s *Session) applyLocked(move, agentID string) (MoveRecord, error) {
	side := s.game.Turn()
	if err := s.game.Apply(move); err != nil {
		return MoveRecord{}, err
	}
	rec := MoveRecord{
		Ply:        len(s.history) + 1,
		Side:       side,
		Move:       move,
		AgentID:    agentID,
		Check:      s.game.InCheck(),
		Result:     s.game.Result(),
		Position:   s.game.Position(),
		Generation: s.generation,
		At:         time.Now().UTC(),
	}
	s.history = append(s.history, rec)
	s.updated = rec.At
	return rec, nil
}

// Reset restores the starting position, clears history and returns the new generation.
func (s *Session) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game.Reset()
	s.history = nil
	s.generation++
	s.updated = time.Now()
	return s.generation
}

// Undo takes back the last ply and returns the new generation.
func (s *Session) Undo() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return s.generation, ErrNothingToUndo
	}
	if err := s.game.Undo(); err != nil {
		return s.generation, err
	}
	s.history = s.history[:len(s.history)-1]
	s.generation++
	s.updated = time.Now()
	return s.generation, nil
}

// Bump invalidates outstanding decisions without touching the game.
func (s *Session) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.updated = time.Now()
	return s.generation
}

// Board implements GameState.
func (s *Session) Board() BoardSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Board()
}

// LegalMoves implements GameState.
func (s *Session) LegalMoves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.LegalMoves()
}

// InCheck implements GameState.
func (s *Session) InCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.InCheck()
}

// Result implements GameState.
func (s *Session) Result() GameResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Result()
}

// Position implements GameState.
func (s *Session) Position() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Position()
}

// Turn implements GameState.
func (s *Session) Turn() Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Turn()
}

// SessionSnapshot is a serializable view of a session.
type SessionSnapshot struct {
	ID         string       `json:"id"`
	Generation uint64       `json:"generation"`
	Position   string       `json:"position"`
	Turn       Side         `json:"turn"`
	InCheck    bool         `json:"in_check"`
	Result     GameResult   `json:"result"`
	LegalMoves []string     `json:"legal_moves"`
	History    []MoveRecord `json:"history"`
	Created    time.Time    `json:"created"`
	Updated    time.Time    `json:"updated"`
}

// Snapshot captures a consistent view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make([]MoveRecord, len(s.history))
	copy(hist, s.history)
	return SessionSnapshot{
		ID:         s.ID,
		Generation: s.generation,
		Position:   s.game.Position(),
		Turn:       s.game.Turn(),
		InCheck:    s.game.InCheck(),
		Result:     s.game.Result(),
		LegalMoves: s.game.LegalMoves(),
		History:    hist,
		Created:    s.Created,
		Updated:    s.updated,
	}
}

// SessionStore keeps live sessions. Returned sessions are shared, not
// cloned; Session synchronizes itself.
type SessionStore interface {
	Create(game Game) (*Session, error)
	Get(id string) (*Session, error)
	Delete(id string) error
	List() []*Session
}
