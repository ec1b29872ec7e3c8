package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/archive"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/testutil"
)

// foolsMateFEN is the position after 1.f3 e5 2.g4; Qh4 mates.
const foolsMateFEN = "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq g3 0 2"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GAMBIT_LOG_LEVEL", "error")
	t.Setenv("GAMBIT_ARCHIVE_PATH", filepath.Join(dir, "gambit.db"))
	return dir
}

func TestAgentsCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Random Bot")
	assert.Contains(t, out, "Smart Bot")

	out, err = run(t, "agents", "--json")
	require.NoError(t, err)
	var agents []core.AgentDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &agents))
	assert.Len(t, agents, 2)
}

func TestAgentsCommand_LoadsFiles(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "opener.js")
	require.NoError(t, os.WriteFile(path, testutil.StaticScriptAgent("Opener", "e2e4"), 0o600))

	out, err := run(t, "agents", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Opener")
	assert.Contains(t, out, "uploaded")

	bad := filepath.Join(dir, "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte(`function getName() { return "x"; }`), 0o600))
	_, err = run(t, "agents", bad)
	assert.ErrorIs(t, err, core.ErrInterfaceMismatch)
}

func TestPlayCommand_StopsAtPlyLimit(t *testing.T) {
	isolate(t)
	t.Setenv("GAMBIT_ARCHIVE_ENABLED", "false")

	out, err := run(t, "play", "--white", "random", "--black", "smart", "--delay", "0", "--max-plies", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Random Bot (white) vs Smart Bot (black)")
	assert.Contains(t, out, "  1. white")
	assert.Contains(t, out, "  2. black")
	assert.Contains(t, out, "stopped: ply limit of 2 reached")
}

func TestPlayCommand_UnknownAgent(t *testing.T) {
	isolate(t)
	t.Setenv("GAMBIT_ARCHIVE_ENABLED", "false")

	_, err := run(t, "play", "--white", "stockfish", "--delay", "0")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestPlayCommand_ArchivesFinishedGame(t *testing.T) {
	dir := isolate(t)
	queen := filepath.Join(dir, "queen.js")
	require.NoError(t, os.WriteFile(queen, testutil.StaticScriptAgent("Queen", "d8h4"), 0o600))

	out, err := run(t, "play", "--white", "random", "--black", queen, "--fen", foolsMateFEN, "--delay", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "  1. black d8h4")
	assert.Contains(t, out, "result: checkmate, black wins")

	out, err = run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "checkmate")
	assert.Contains(t, out, "black")

	store, err := archive.OpenSQLite(filepath.Join(dir, "gambit.db"))
	require.NoError(t, err)
	games, err := store.List(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, games, 1)

	out, err = run(t, "history", games[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "d8h4")
	assert.Contains(t, out, "result: checkmate after 1 plies")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	isolate(t)
	t.Setenv("GAMBIT_ARCHIVE_ENABLED", "false")

	_, err := run(t, "history")
	assert.Error(t, err)
}

func TestWriteGame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeGame(&buf, archive.Game{
		ID:            "g1",
		SessionID:     "s1",
		Result:        core.ResultCheckmate,
		Plies:         3,
		White:         core.Seat{Mode: core.SeatAuto, AgentID: "a"},
		Black:         core.Seat{Mode: core.SeatHuman},
		Moves:         []string{"e2e4", "e7e5", "d1h5"},
		FinalPosition: "x",
		ArchivedAt:    time.Now(),
	}))
	assert.Contains(t, buf.String(), "  1. e2e4 e7e5\n  2. d1h5\n")
}

func TestOptionsFromConfig(t *testing.T) {
	isolate(t)
	t.Setenv("GAMBIT_UPLOAD_MAX_PAYLOAD_BYTES", "1024")

	a := &app{}
	require.NoError(t, a.init(newRootCmd()))
	g, err := a.newGambit(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = g.Close(context.Background()) }()

	assert.Equal(t, 1024, g.Registry().Policy().MaxPayloadBytes)
	sess, err := g.NewSession("")
	require.NoError(t, err)
	st, err := g.Engine().State(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, st.Config.MoveDelay)
}
