package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/gambit/core"
)

// Config limits the store.
type Config struct {
	// MaxSessions caps the number of live sessions. Zero means unlimited.
	MaxSessions int
}

// DefaultConfig allows up to 64 concurrent sessions.
var DefaultConfig = Config{MaxSessions: 64}

// ErrTooManySessions is returned by Create when MaxSessions is reached.
var ErrTooManySessions = errors.New("too many sessions")

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map. Sessions are shared, not cloned: core.Session synchronizes
// itself and the orchestrator needs the live instance.
type InMemoryStore struct {
	cfg      Config
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(c *Config)) *InMemoryStore {
	cfg := DefaultConfig
	for _, fn := range optFns {
		fn(&cfg)
	}
	return &InMemoryStore{cfg: cfg, sessions: make(map[string]*core.Session)}
}

// Create stores a new session around game under a fresh id.
func (s *InMemoryStore) Create(game core.Game) (*core.Session, error) {
	if game == nil {
		return nil, fmt.Errorf("session: nil game")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.cfg.MaxSessions)
	}
	sess := core.NewSession(core.NewID(), game)
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the session with the given id.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete removes a session. Deleting an unknown id is an error so callers
// notice double deletes.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// List returns all sessions ordered by creation time.
func (s *InMemoryStore) List() []*core.Session {
	s.mu.RLock()
	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}
