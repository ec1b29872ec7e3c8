// Package wasm runs compiled agents as sandboxed WebAssembly modules on
// wazero. A guest exports its decision entry points and imports the
// capability host from the "gambit" module.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

var (
	errOutOfRange = errors.New("memory access out of range")
	errClosed     = errors.New("runtime closed")
)

// Runtime is a core.Runtime backed by one wazero module instance. Calls are
// serialized. A guest that is killed (deadline, cancellation, exit) is
// re-instantiated from the compiled module on the next call.
type Runtime struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	mod      api.Module
	closed   bool
	logger   logging.Logger
}

var _ core.Runtime = (*Runtime)(nil)

func (r *Runtime) instantiate(ctx context.Context) error {
	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return err
	}
	r.mod = mod
	return nil
}

// Kind implements core.Runtime.
func (r *Runtime) Kind() core.RuntimeKind { return core.KindCompiled }

// Name implements core.Runtime.
func (r *Runtime) Name(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, ExportGetName)
}

// Description implements core.Runtime.
func (r *Runtime) Description(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, ExportGetDescription)
}

// PreferredSide implements core.Runtime.
func (r *Runtime) PreferredSide(ctx context.Context, caps core.Capabilities) (core.Side, error) {
	res, err := r.call(ctx, caps, ExportGetPreferredSide, nil)
	if err != nil {
		return core.SideNone, err
	}
	return sideFromCode(uint32(res[0])), nil
}

// OnGameStart implements core.Runtime.
func (r *Runtime) OnGameStart(ctx context.Context, caps core.Capabilities) error {
	_, err := r.call(ctx, caps, ExportOnGameStart, nil)
	return err
}

// SelectMove implements core.Runtime.
func (r *Runtime) SelectMove(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, ExportSelectMove)
}

// SuggestMove implements core.Runtime. Guests without suggest_move fall
// back to select_move.
func (r *Runtime) SuggestMove(ctx context.Context, caps core.Capabilities) (string, error) {
	mv, err := r.callString(ctx, caps, ExportSuggestMove)
	if errors.Is(err, core.ErrEntryPointMissing) {
		return r.callString(ctx, caps, ExportSelectMove)
	}
	return mv, err
}

// Close releases the module and its runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.mod = nil
	return r.runtime.Close(ctx)
}

func (r *Runtime) callString(ctx context.Context, caps core.Capabilities, name string) (string, error) {
	var out string
	_, err := r.call(ctx, caps, name, func(mod api.Module, res []uint64) error {
		ptr, length := unpack(res[0])
		buf, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return &core.AgentError{Kind: core.KindCompiled, Op: name, Message: "returned string out of memory bounds", Err: errOutOfRange}
		}
		out = string(buf)
		return nil
	})
	return out, err
}

// call runs one exported function. read, when set, decodes the results
// while the instance lock is still held.
func (r *Runtime) call(ctx context.Context, caps core.Capabilities, name string, read func(api.Module, []uint64) error) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errClosed
	}
	if r.mod == nil || r.mod.IsClosed() {
		if err := r.instantiate(context.WithoutCancel(ctx)); err != nil {
			return nil, &core.AgentError{Kind: core.KindCompiled, Op: name, Message: "re-instantiate", Err: err}
		}
	}
	fn := r.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%s: %w", name, core.ErrEntryPointMissing)
	}

	st := &callState{caps: caps}
	res, err := fn.Call(withCallState(ctx, st))
	if st.err != nil {
		return nil, st.err
	}
	if err != nil {
		return nil, diagnose(ctx, name, err)
	}
	if read != nil {
		if err := read(r.mod, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// diagnose converts a wazero failure into a context error or AgentError.
func diagnose(ctx context.Context, op string, err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeDeadlineExceeded:
			return context.DeadlineExceeded
		case sys.ExitCodeContextCanceled:
			return context.Canceled
		}
		return &core.AgentError{Kind: core.KindCompiled, Op: op, Message: fmt.Sprintf("exited with code %d", exitErr.ExitCode()), Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return &core.AgentError{Kind: core.KindCompiled, Op: op, Message: msg, Err: err}
}
