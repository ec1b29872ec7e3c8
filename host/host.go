// Package host implements the capability host: the read-only, per-session
// view of a game that agents query while deciding.
package host

import (
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

// Options configures a Host.
type Options struct {
	// SessionID tags events.
	SessionID string
	// AgentID tags log lines and events.
	AgentID string
	// Logger receives agent log messages. Defaults to NoOp.
	Logger logging.Logger
	// Notifier receives agent_log events. Optional.
	Notifier core.Notifier
}

// Host is bound to exactly one game state. Every query reads the state at
// the time of the call; nothing is cached between calls.
type Host struct {
	state core.GameState
	opts  Options
}

var _ core.Capabilities = (*Host)(nil)

// New binds a host to state.
func New(state core.GameState, optFns ...func(o *Options)) *Host {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Host{state: state, opts: opts}
}

// Unbound returns a host with no session. Every call fails with
// core.ErrNoSessionBound. Used while reading agent metadata at load time.
func Unbound(optFns ...func(o *Options)) *Host {
	return New(nil, optFns...)
}

// Bound reports whether the host has a game.
func (h *Host) Bound() bool { return h.state != nil }

// Board returns the current board.
func (h *Host) Board() (core.BoardSnapshot, error) {
	if h.state == nil {
		return core.BoardSnapshot{}, core.ErrNoSessionBound
	}
	return h.state.Board(), nil
}

// LegalMoves returns the legal moves of the side to move in UCI notation.
func (h *Host) LegalMoves() ([]string, error) {
	if h.state == nil {
		return nil, core.ErrNoSessionBound
	}
	return h.state.LegalMoves(), nil
}

// InCheck reports whether the side to move is in check.
func (h *Host) InCheck() (bool, error) {
	if h.state == nil {
		return false, core.ErrNoSessionBound
	}
	return h.state.InCheck(), nil
}

// GameResult returns the result of the current position.
func (h *Host) GameResult() (core.GameResult, error) {
	if h.state == nil {
		return "", core.ErrNoSessionBound
	}
	return h.state.Result(), nil
}

// Position returns the current position as FEN.
func (h *Host) Position() (string, error) {
	if h.state == nil {
		return "", core.ErrNoSessionBound
	}
	return h.state.Position(), nil
}

// Log forwards an agent message to the logging sink, tagged with the side
// to move.
func (h *Host) Log(message string) error {
	if h.state == nil {
		return core.ErrNoSessionBound
	}
	side := h.state.Turn()
	h.opts.Logger.Info("Agent log", "agent_id", h.opts.AgentID, "side", string(side), "message", message)
	if h.opts.Notifier != nil {
		ev := core.NewEvent(core.EventAgentLog, h.opts.SessionID)
		ev.AgentID = h.opts.AgentID
		ev.Side = side
		ev.Message = message
		h.opts.Notifier.Notify(ev)
	}
	return nil
}
