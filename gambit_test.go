package gambit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/artifact"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
	"github.com/hupe1980/gambit/internal/testutil"
)

func newGambit(t *testing.T, optFns ...func(o *Options)) (*Gambit, *testutil.ManualScheduler) {
	t.Helper()
	sched := &testutil.ManualScheduler{}
	g, err := New(context.Background(), append([]func(o *Options){func(o *Options) {
		o.Scheduler = sched
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g, sched
}

func TestNew_RegistersBuiltins(t *testing.T) {
	g, _ := newGambit(t)

	agents := g.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "Random Bot", agents[0].Name)
	assert.Equal(t, "Smart Bot", agents[1].Name)
	for _, a := range agents {
		assert.Equal(t, core.OriginBuiltin, a.Origin)
		assert.Equal(t, core.KindScript, a.Kind)
	}

	id, ok := g.BuiltinID("smart")
	require.True(t, ok)
	resolved, err := g.ResolveAgent("Smart Bot")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
	resolved, err = g.ResolveAgent("SMART")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
	_, err = g.ResolveAgent("stockfish")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestCompiledAgentPlaysOnePly(t *testing.T) {
	ctx := context.Background()
	g, _ := newGambit(t, func(o *Options) { o.SkipBuiltins = true })

	desc, err := g.LoadAgent(ctx, "random.wasm", testutil.StaticWasmAgent("Random", "e2e4"))
	require.NoError(t, err)
	assert.Equal(t, "Random", desc.Name)
	assert.Equal(t, core.KindCompiled, desc.Kind)

	sess, err := g.NewSession("")
	require.NoError(t, err)
	cfg := core.MatchConfig{
		White:  core.Seat{Mode: core.SeatAuto, AgentID: desc.ID},
		Black:  core.Seat{Mode: core.SeatHuman},
		Paused: true,
	}
	require.NoError(t, g.Engine().Configure(ctx, sess.ID, cfg))

	res, err := g.Engine().Step(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, res.Outcome)

	hist := sess.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "e2e4", hist[0].Move)
}

func TestUnloadAgent_KeepsBuiltins(t *testing.T) {
	ctx := context.Background()
	g, _ := newGambit(t)
	id, ok := g.BuiltinID("random")
	require.True(t, ok)

	err := g.UnloadAgent(ctx, id)
	assert.ErrorIs(t, err, core.ErrBuiltinAgent)
	assert.Equal(t, core.ClassValidation, core.Classify(err))

	resolved, err := g.ResolveAgent("random")
	require.NoError(t, err)
	_, err = g.Agent(resolved)
	assert.NoError(t, err)
	assert.Len(t, g.Agents(), 2)
}

func TestNew_BuiltinsIgnoreUploadLimit(t *testing.T) {
	g, _ := newGambit(t, func(o *Options) {
		o.Policy = core.UploadPolicy{MaxPayloadBytes: 64, MaxUploadedAgents: 1}
	})
	assert.Len(t, g.Agents(), 2)
}

func TestOversizedUploadLeavesRegistryUnchanged(t *testing.T) {
	ctx := context.Background()
	g, _ := newGambit(t, func(o *Options) {
		o.Policy = core.UploadPolicy{MaxPayloadBytes: 64, MaxUploadedAgents: 5}
	})
	before := len(g.Agents())

	payload := append([]byte("function selectMove() { return 'e2e4'; }"), bytes.Repeat([]byte(" "), 24)...)
	payload = payload[:65]
	_, err := g.LoadAgent(ctx, "big.js", payload)
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
	assert.Len(t, g.Agents(), before)
}

func TestBuiltinsPlayAutomatedMatch(t *testing.T) {
	ctx := context.Background()
	g, sched := newGambit(t, func(o *Options) {
		o.EngineConfig.MaxPlies = 6
	})
	random, _ := g.BuiltinID("random")
	smart, _ := g.BuiltinID("smart")

	sess, err := g.NewSession("")
	require.NoError(t, err)
	events, stop := g.Events().Subscribe(64, engine.ForSession(sess.ID))
	defer stop()

	cfg := core.MatchConfig{
		White: core.Seat{Mode: core.SeatAuto, AgentID: random},
		Black: core.Seat{Mode: core.SeatAuto, AgentID: smart},
	}
	require.NoError(t, g.Engine().Configure(ctx, sess.ID, cfg))
	sched.RunAll(20)

	if !sess.Result().Terminal() {
		assert.Equal(t, 6, sess.Len())
	}
	for i, rec := range sess.History() {
		if i%2 == 0 {
			assert.Equal(t, random, rec.AgentID)
		} else {
			assert.Equal(t, smart, rec.AgentID)
		}
	}

	var applied int
	for len(events) > 0 {
		if ev := <-events; ev.Type == core.EventMoveApplied {
			applied++
		}
	}
	assert.Equal(t, sess.Len(), applied)
}

func TestUploadRetainsPayloadUntilUnload(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewInMemoryStore(1 << 20)
	g, _ := newGambit(t, func(o *Options) {
		o.SkipBuiltins = true
		o.Payloads = store
	})

	desc, err := g.LoadAgent(ctx, "first.js", []byte(testutil.FirstMoveScriptAgent))
	require.NoError(t, err)
	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{desc.ID}, ids)

	require.NoError(t, g.UnloadAgent(ctx, desc.ID))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, g.Agents())

	// unloading twice is a no-op
	require.NoError(t, g.UnloadAgent(ctx, desc.ID))
}

func TestLoadAgentAsync(t *testing.T) {
	g, _ := newGambit(t, func(o *Options) { o.SkipBuiltins = true })

	select {
	case res := <-g.LoadAgentAsync(context.Background(), "first.js", []byte(testutil.FirstMoveScriptAgent)):
		require.NoError(t, res.Err)
		assert.Equal(t, "First", res.Descriptor.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not complete")
	}
}

func TestNewSession_InvalidFEN(t *testing.T) {
	g, _ := newGambit(t, func(o *Options) { o.SkipBuiltins = true })

	_, err := g.NewSession("not a fen")
	assert.Error(t, err)
}
