package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/gambit/core"
)

// StubRuntime is a scriptable core.Runtime. Unset functions behave as
// missing entry points. It counts closes and tracks concurrent calls.
type StubRuntime struct {
	RuntimeKind   core.RuntimeKind
	NameFn        func(ctx context.Context, caps core.Capabilities) (string, error)
	DescriptionFn func(ctx context.Context, caps core.Capabilities) (string, error)
	SideFn        func(ctx context.Context, caps core.Capabilities) (core.Side, error)
	StartFn       func(ctx context.Context, caps core.Capabilities) error
	SelectFn      func(ctx context.Context, caps core.Capabilities) (string, error)
	SuggestFn     func(ctx context.Context, caps core.Capabilities) (string, error)

	closes   atomic.Int32
	calls    atomic.Int32
	inFlight atomic.Int32
	maxMu    sync.Mutex
	max      int32
}

var _ core.Runtime = (*StubRuntime)(nil)

// NewStaticRuntime returns a stub that always selects move.
func NewStaticRuntime(name, move string) *StubRuntime {
	return &StubRuntime{
		NameFn:   func(context.Context, core.Capabilities) (string, error) { return name, nil },
		SelectFn: func(context.Context, core.Capabilities) (string, error) { return move, nil },
	}
}

// NewFirstMoveRuntime returns a stub that plays the first legal move.
func NewFirstMoveRuntime() *StubRuntime {
	return &StubRuntime{
		SelectFn: func(_ context.Context, caps core.Capabilities) (string, error) {
			moves, err := caps.LegalMoves()
			if err != nil || len(moves) == 0 {
				return "", err
			}
			return moves[0], nil
		},
	}
}

func (s *StubRuntime) enter() func() {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	s.maxMu.Lock()
	if n > s.max {
		s.max = n
	}
	s.maxMu.Unlock()
	return func() { s.inFlight.Add(-1) }
}

// Kind implements core.Runtime.
func (s *StubRuntime) Kind() core.RuntimeKind {
	if s.RuntimeKind == "" {
		return core.KindScript
	}
	return s.RuntimeKind
}

// Name implements core.Runtime.
func (s *StubRuntime) Name(ctx context.Context, caps core.Capabilities) (string, error) {
	if s.NameFn == nil {
		return "", core.ErrEntryPointMissing
	}
	return s.NameFn(ctx, caps)
}

// Description implements core.Runtime.
func (s *StubRuntime) Description(ctx context.Context, caps core.Capabilities) (string, error) {
	if s.DescriptionFn == nil {
		return "", core.ErrEntryPointMissing
	}
	return s.DescriptionFn(ctx, caps)
}

// PreferredSide implements core.Runtime.
func (s *StubRuntime) PreferredSide(ctx context.Context, caps core.Capabilities) (core.Side, error) {
	if s.SideFn == nil {
		return core.SideNone, core.ErrEntryPointMissing
	}
	return s.SideFn(ctx, caps)
}

// OnGameStart implements core.Runtime.
func (s *StubRuntime) OnGameStart(ctx context.Context, caps core.Capabilities) error {
	if s.StartFn == nil {
		return core.ErrEntryPointMissing
	}
	return s.StartFn(ctx, caps)
}

// SelectMove implements core.Runtime.
func (s *StubRuntime) SelectMove(ctx context.Context, caps core.Capabilities) (string, error) {
	defer s.enter()()
	if s.SelectFn == nil {
		return "", core.ErrEntryPointMissing
	}
	return s.SelectFn(ctx, caps)
}

// SuggestMove implements core.Runtime.
func (s *StubRuntime) SuggestMove(ctx context.Context, caps core.Capabilities) (string, error) {
	defer s.enter()()
	if s.SuggestFn != nil {
		return s.SuggestFn(ctx, caps)
	}
	if s.SelectFn == nil {
		return "", core.ErrEntryPointMissing
	}
	return s.SelectFn(ctx, caps)
}

// Close implements core.Runtime.
func (s *StubRuntime) Close(context.Context) error {
	s.closes.Add(1)
	return nil
}

// Closes returns how often Close ran.
func (s *StubRuntime) Closes() int { return int(s.closes.Load()) }

// Calls returns how many decision calls were made.
func (s *StubRuntime) Calls() int { return int(s.calls.Load()) }

// MaxInFlight returns the highest number of concurrent decision calls seen.
func (s *StubRuntime) MaxInFlight() int {
	s.maxMu.Lock()
	defer s.maxMu.Unlock()
	return int(s.max)
}

// StubCompiler returns the runtime produced by Fn, or Runtime when Fn is nil.
type StubCompiler struct {
	Runtime core.Runtime
	Err     error
	Fn      func(ctx context.Context, payload []byte) (core.Runtime, error)
	calls   atomic.Int32
}

// Compile implements core.Compiler.
func (c *StubCompiler) Compile(ctx context.Context, payload []byte) (core.Runtime, error) {
	c.calls.Add(1)
	if c.Fn != nil {
		return c.Fn(ctx, payload)
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Runtime, nil
}

// Calls returns how many times Compile ran.
func (c *StubCompiler) Calls() int { return int(c.calls.Load()) }

// NewLoadedAgent wraps rt in an agent descriptor of the given origin.
func NewLoadedAgent(name string, origin core.Origin, rt core.Runtime) *core.LoadedAgent {
	return core.NewLoadedAgent(core.AgentDescriptor{
		Name:   name,
		Kind:   rt.Kind(),
		Origin: origin,
	}, rt)
}

// NewSequenceRuntime returns a stub that selects moves in order and fails
// once they are used up.
func NewSequenceRuntime(moves ...string) *StubRuntime {
	var (
		mu   sync.Mutex
		next int
	)
	return &StubRuntime{
		SelectFn: func(context.Context, core.Capabilities) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(moves) {
				return "", fmt.Errorf("sequence exhausted after %d moves", len(moves))
			}
			mv := moves[next]
			next++
			return mv, nil
		},
	}
}

// Gate blocks decision calls until the test opens it.
type Gate struct {
	// Entered receives a value each time a call reaches the gate.
	Entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{Entered: make(chan struct{}, 16), open: make(chan struct{})}
}

// Open releases every waiting and future call.
func (g *Gate) Open() { g.once.Do(func() { close(g.open) }) }

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case g.Entered <- struct{}{}:
	default:
	}
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewGatedRuntime returns a stub that selects move once gate opens.
func NewGatedRuntime(gate *Gate, move string) *StubRuntime {
	return &StubRuntime{
		SelectFn: func(ctx context.Context, _ core.Capabilities) (string, error) {
			if err := gate.Wait(ctx); err != nil {
				return "", err
			}
			return move, nil
		},
	}
}
