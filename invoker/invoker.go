// Package invoker calls decision entry points of registered agents. It
// pins the agent for the duration of the call, enforces the decision
// timeout and maps runtime failures onto the core error taxonomy.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/metrics"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/registry"
)

// Operation names used in errors, logs and metrics.
const (
	OpSelectMove  = "select_move"
	OpSuggestMove = "suggest_move"
	OpGameStart   = "on_game_start"
)

// Config tunes invocation.
type Config struct {
	// Timeout bounds a single decision call. Zero disables the limit.
	Timeout time.Duration
}

// DefaultConfig allows an agent five seconds per decision.
var DefaultConfig = Config{Timeout: 5 * time.Second}

// Options configures an Invoker.
type Options struct {
	Config  Config
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Invoker is safe for concurrent use. Serializing calls per session is the
// orchestrator's job; runtimes serialize calls per agent.
type Invoker struct {
	reg  *registry.Registry
	opts Options
}

// New creates an Invoker over reg.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Invoker {
	opts := Options{Config: DefaultConfig, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Invoker{reg: reg, opts: opts}
}

// SelectMove asks the agent for the move it wants to play.
func (iv *Invoker) SelectMove(ctx context.Context, agentID string, caps core.Capabilities) (string, error) {
	return iv.decide(ctx, agentID, OpSelectMove, caps, func(ctx context.Context, rt core.Runtime) (string, error) {
		return rt.SelectMove(ctx, caps)
	})
}

// SuggestMove asks the agent for advice. Agents without a dedicated entry
// point answer with their selected move.
func (iv *Invoker) SuggestMove(ctx context.Context, agentID string, caps core.Capabilities) (string, error) {
	return iv.decide(ctx, agentID, OpSuggestMove, caps, func(ctx context.Context, rt core.Runtime) (string, error) {
		return rt.SuggestMove(ctx, caps)
	})
}

// NotifyGameStart delivers the game-start hook. It is best effort: every
// failure is logged and swallowed.
func (iv *Invoker) NotifyGameStart(ctx context.Context, agentID string, caps core.Capabilities) {
	_, err := iv.decide(ctx, agentID, OpGameStart, caps, func(ctx context.Context, rt core.Runtime) (string, error) {
		return "", rt.OnGameStart(ctx, caps)
	})
	switch {
	case err == nil, errors.Is(err, core.ErrEntryPointMissing):
	default:
		iv.opts.Logger.Warn("Game start hook failed", "agent_id", agentID, "error", err)
	}
}

type result struct {
	move string
	err  error
}

func (iv *Invoker) decide(ctx context.Context, agentID, op string, caps core.Capabilities, call func(context.Context, core.Runtime) (string, error)) (string, error) {
	lease, err := iv.reg.Acquire(agentID)
	if err != nil {
		return "", err
	}
	agent := lease.Agent()
	kind := agent.Runtime.Kind()

	if iv.opts.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.opts.Config.Timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		// the lease outlives an abandoned call so the runtime is never
		// released underneath it
		defer lease.Release(context.Background())
		mv, err := call(ctx, agent.Runtime)
		done <- result{move: mv, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	res.err = normalize(ctx, agentID, kind, op, res.err)
	dur := time.Since(start)
	iv.opts.Metrics.ObserveDecision(op, string(kind), outcome(res.err), dur)
	if gl, ok := iv.opts.Logger.(*logging.GambitLogger); ok {
		gl.WithAgent(agentID).LogDecision(op, res.move, dur, res.err)
	} else if res.err != nil {
		iv.opts.Logger.Debug("Agent decision failed", "agent_id", agentID, "operation", op, "error", res.err)
	}
	return res.move, res.err
}

// normalize maps raw runtime errors onto the error taxonomy.
func normalize(ctx context.Context, agentID string, kind core.RuntimeKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var agentErr *core.AgentError
	switch {
	case errors.Is(err, core.ErrNoSessionBound), errors.Is(err, core.ErrEntryPointMissing),
		errors.Is(err, core.ErrAgentNotFound), errors.Is(err, core.ErrAgentTimedOut):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: agent %s: %s", core.ErrAgentTimedOut, agentID, op)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	case errors.As(err, &agentErr):
		cp := *agentErr
		cp.AgentID = agentID
		if cp.Op == "" {
			cp.Op = op
		}
		return &cp
	default:
		return &core.AgentError{AgentID: agentID, Kind: kind, Op: op, Message: err.Error(), Err: err}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrAgentTimedOut):
		return "timeout"
	default:
		return "error"
	}
}
