// Package script runs interpreted agents written in JavaScript on the goja
// interpreter. An agent defines global functions (selectMove is required)
// and reads the game through a call-scoped "host" object.
package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

// Entry points an agent may define.
const (
	FnSelectMove       = "selectMove"
	FnSuggestMove      = "suggestMove"
	FnGetName          = "getName"
	FnGetDescription   = "getDescription"
	FnGetPreferredSide = "getPreferredSide"
	FnOnGameStart      = "onGameStart"
)

// SourceName is the file name reported in stack traces.
const SourceName = "agent.js"

var (
	errClosed = errors.New("runtime closed")

	syntaxLine = regexp.MustCompile(`Line (\d+):\d+`)
	sourceLine = regexp.MustCompile(regexp.QuoteMeta(SourceName) + `:(\d+):\d+`)
)

// Options configures a Compiler.
type Options struct {
	Logger logging.Logger
}

// Compiler evaluates JavaScript agents.
type Compiler struct {
	opts Options
}

var _ core.Compiler = (*Compiler)(nil)

// NewCompiler creates a Compiler.
func NewCompiler(optFns ...func(o *Options)) *Compiler {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Compiler{opts: opts}
}

// Compile parses and evaluates the source once so its functions are defined.
func (c *Compiler) Compile(ctx context.Context, payload []byte) (core.Runtime, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: source is not valid UTF-8", core.ErrInvalidFormat)
	}
	prog, err := goja.Compile(SourceName, string(payload), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCompileFailed, diagnose("compile", err))
	}

	vm := goja.New()
	stop := interruptOnDone(ctx, vm)
	_, err = vm.RunProgram(prog)
	stop()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCompileFailed, diagnose("evaluate", err))
	}
	if _, ok := goja.AssertFunction(vm.Get(FnSelectMove)); !ok {
		return nil, fmt.Errorf("%w: %s is not defined", core.ErrInterfaceMismatch, FnSelectMove)
	}
	return &Runtime{vm: vm, logger: c.opts.Logger}, nil
}

// Runtime is a core.Runtime backed by one goja VM. goja is not goroutine
// safe, so every call holds the runtime lock.
type Runtime struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	closed bool
	logger logging.Logger
}

var _ core.Runtime = (*Runtime)(nil)

// Kind implements core.Runtime.
func (r *Runtime) Kind() core.RuntimeKind { return core.KindScript }

// Name implements core.Runtime.
func (r *Runtime) Name(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, FnGetName)
}

// Description implements core.Runtime.
func (r *Runtime) Description(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, FnGetDescription)
}

// PreferredSide implements core.Runtime. null and undefined mean no preference.
func (r *Runtime) PreferredSide(ctx context.Context, caps core.Capabilities) (core.Side, error) {
	v, err := r.call(ctx, caps, FnGetPreferredSide)
	if err != nil {
		return core.SideNone, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return core.SideNone, nil
	}
	return core.ParseSide(v.String()), nil
}

// OnGameStart implements core.Runtime.
func (r *Runtime) OnGameStart(ctx context.Context, caps core.Capabilities) error {
	_, err := r.call(ctx, caps, FnOnGameStart)
	return err
}

// SelectMove implements core.Runtime.
func (r *Runtime) SelectMove(ctx context.Context, caps core.Capabilities) (string, error) {
	return r.callString(ctx, caps, FnSelectMove)
}

// SuggestMove implements core.Runtime. Agents without suggestMove fall back
// to selectMove.
func (r *Runtime) SuggestMove(ctx context.Context, caps core.Capabilities) (string, error) {
	mv, err := r.callString(ctx, caps, FnSuggestMove)
	if errors.Is(err, core.ErrEntryPointMissing) {
		return r.callString(ctx, caps, FnSelectMove)
	}
	return mv, err
}

// Close drops the VM.
func (r *Runtime) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.vm.Interrupt(errClosed)
		r.vm = nil
	}
	return nil
}

func (r *Runtime) callString(ctx context.Context, caps core.Capabilities, name string) (string, error) {
	v, err := r.call(ctx, caps, name)
	if err != nil {
		return "", err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

func (r *Runtime) call(ctx context.Context, caps core.Capabilities, name string) (goja.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errClosed
	}
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, core.ErrEntryPointMissing)
	}

	st := &callState{}
	if err := r.vm.Set("host", newHostObject(r.vm, caps, st)); err != nil {
		return nil, err
	}
	defer func() { _ = r.vm.Set("host", goja.Undefined()) }()

	stop := interruptOnDone(ctx, r.vm)
	v, err := fn(goja.Undefined())
	stop()

	if st.err != nil {
		return nil, st.err
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, diagnose(name, err)
	}
	return v, nil
}

// interruptOnDone interrupts vm when ctx ends. The returned stop function
// waits for a racing interrupt to land before clearing it.
func interruptOnDone(ctx context.Context, vm *goja.Runtime) func() {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
		close(fired)
	})
	return func() {
		if !stop() {
			<-fired
		}
		vm.ClearInterrupt()
	}
}

// diagnose converts goja errors into AgentErrors with a best-effort line number.
func diagnose(op string, err error) error {
	ae := &core.AgentError{Kind: core.KindScript, Op: op, Err: err}

	var exc *goja.Exception
	var interrupted *goja.InterruptedError
	switch {
	case errors.As(err, &interrupted):
		ae.Message = "interrupted"
		if v, ok := interrupted.Value().(error); ok {
			ae.Err = v
		}
		return ae
	case errors.As(err, &exc):
		ae.Message = exc.Value().String()
		ae.Line = findLine(sourceLine, exc.String())
	default:
		msg := err.Error()
		ae.Message = firstLine(msg)
		if ae.Line = findLine(syntaxLine, msg); ae.Line == 0 {
			ae.Line = findLine(sourceLine, msg)
		}
	}
	return ae
}

func findLine(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
