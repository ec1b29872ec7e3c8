package wasm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/host"
	"github.com/hupe1980/gambit/internal/testutil"
	"github.com/hupe1980/gambit/rules"
)

func compile(t *testing.T, payload []byte) core.Runtime {
	t.Helper()
	rt, err := NewCompiler().Compile(context.Background(), payload)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestCompile_StaticAgent(t *testing.T) {
	ctx := context.Background()
	rt := compile(t, testutil.StaticWasmAgent("Random", "e2e4"))

	assert.Equal(t, core.KindCompiled, rt.Kind())

	name, err := rt.Name(ctx, host.Unbound())
	require.NoError(t, err)
	assert.Equal(t, "Random", name)

	_, err = rt.Description(ctx, host.Unbound())
	assert.ErrorIs(t, err, core.ErrEntryPointMissing)

	mv, err := rt.SelectMove(ctx, host.New(core.NewSession("s", rules.New())))
	require.NoError(t, err)
	assert.Equal(t, "e2e4", mv)

	// suggest_move is optional and falls back to select_move
	mv, err = rt.SuggestMove(ctx, host.New(core.NewSession("s", rules.New())))
	require.NoError(t, err)
	assert.Equal(t, "e2e4", mv)
}

func TestCompile_InvalidBinary(t *testing.T) {
	_, err := NewCompiler().Compile(context.Background(), []byte("\x00asm\x01\x00\x00\x00\xff\xff"))
	assert.ErrorIs(t, err, core.ErrCompileFailed)
}

func TestCompile_MissingSelectMove(t *testing.T) {
	_, err := NewCompiler().Compile(context.Background(), testutil.NoDecisionWasmAgent())
	assert.ErrorIs(t, err, core.ErrInterfaceMismatch)
}

func TestCompile_UnknownImport(t *testing.T) {
	payload := testutil.WasmModule{
		Imports:      []testutil.WasmImport{{Module: "env", Name: "fd_write", Params: []byte{testutil.I32}}},
		MemoryPages:  1,
		ExportMemory: true,
		Funcs:        []testutil.WasmFunc{{Export: "select_move", Results: []byte{testutil.I64}, Body: testutil.Packed(0, 0)}},
	}.Encode()

	_, err := NewCompiler().Compile(context.Background(), payload)
	assert.ErrorIs(t, err, core.ErrInterfaceMismatch)
}

func TestCompile_WrongSignature(t *testing.T) {
	payload := testutil.WasmModule{
		MemoryPages:  1,
		ExportMemory: true,
		Funcs:        []testutil.WasmFunc{{Export: "select_move", Results: []byte{testutil.I32}, Body: testutil.I32Const(0)}},
	}.Encode()

	_, err := NewCompiler().Compile(context.Background(), payload)
	assert.ErrorIs(t, err, core.ErrInterfaceMismatch)
}

func TestCompile_MissingMemory(t *testing.T) {
	payload := testutil.WasmModule{
		Funcs: []testutil.WasmFunc{{Export: "select_move", Results: []byte{testutil.I64}, Body: testutil.Packed(0, 0)}},
	}.Encode()

	_, err := NewCompiler().Compile(context.Background(), payload)
	assert.ErrorIs(t, err, core.ErrInterfaceMismatch)
}

func TestRuntime_HostImportsReadLiveState(t *testing.T) {
	ctx := context.Background()
	rt := compile(t, testutil.EchoPositionWasmAgent())

	var logs []string
	sess := core.NewSession("s", rules.New())
	caps := host.New(sess, func(o *host.Options) {
		o.Notifier = core.NotifierFunc(func(ev core.Event) { logs = append(logs, ev.Message) })
	})

	pos, err := rt.SelectMove(ctx, caps)
	require.NoError(t, err)
	assert.Equal(t, rules.StartFEN, pos)

	_, err = sess.Apply("e2e4")
	require.NoError(t, err)

	pos, err = rt.SelectMove(ctx, caps)
	require.NoError(t, err)
	assert.Equal(t, sess.Position(), pos)
	assert.Equal(t, []string{"echo", "echo"}, logs)

	side, err := rt.PreferredSide(ctx, host.Unbound())
	require.NoError(t, err)
	assert.Equal(t, core.SideBlack, side)
}

func TestRuntime_UnboundHostFailsWithNoSession(t *testing.T) {
	rt := compile(t, testutil.EchoPositionWasmAgent())

	_, err := rt.SelectMove(context.Background(), host.Unbound())
	assert.ErrorIs(t, err, core.ErrNoSessionBound)
}

func TestRuntime_Trap(t *testing.T) {
	rt := compile(t, testutil.TrappingWasmAgent())

	_, err := rt.SelectMove(context.Background(), host.Unbound())

	var agentErr *core.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, core.KindCompiled, agentErr.Kind)
	assert.Equal(t, ExportSelectMove, agentErr.Op)
}

func TestRuntime_DeadlineKillsAndRecovers(t *testing.T) {
	rt := compile(t, testutil.SpinningWasmAgent())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rt.SelectMove(ctx, host.Unbound())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the killed instance is replaced on the next call
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, err = rt.SelectMove(ctx2, host.Unbound())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt, err := NewCompiler().Compile(context.Background(), testutil.StaticWasmAgent("x", "e2e4"))
	require.NoError(t, err)

	require.NoError(t, rt.Close(context.Background()))
	require.NoError(t, rt.Close(context.Background()))

	_, err = rt.SelectMove(context.Background(), host.Unbound())
	assert.Error(t, err)
}
