package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/agent/script"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/host"
	"github.com/hupe1980/gambit/rules"
)

func load(t *testing.T, key string) core.Runtime {
	t.Helper()
	e, ok := Lookup(key)
	require.True(t, ok)
	rt, err := script.NewCompiler().Compile(context.Background(), e.Payload)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestCatalog(t *testing.T) {
	all, err := Catalog()
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "random", all[0].Key)
	assert.Equal(t, "random.js", all[0].Filename())
	assert.Equal(t, core.KindScript, all[0].Kind)
	assert.NotEmpty(t, all[0].Payload)
	assert.Equal(t, "smart", all[1].Key)

	_, ok := Lookup("missing")
	assert.False(t, ok)
}

func TestValidateManifest_RejectsUnknownKind(t *testing.T) {
	schema, err := files.ReadFile("catalog.schema.json")
	require.NoError(t, err)

	err = validateManifest([]byte("agents:\n  - key: x\n    file: x.js\n    kind: python\n"), string(schema))
	assert.Error(t, err)

	err = validateManifest([]byte("agents:\n  - key: x\n    file: x.js\n    kind: compiled-module\n"), string(schema))
	assert.NoError(t, err)
}

func TestRandomBot_ClockIndex(t *testing.T) {
	rt := load(t, "random")
	ctx := context.Background()

	name, err := rt.Name(ctx, host.Unbound())
	require.NoError(t, err)
	assert.Equal(t, "Random Bot", name)

	// start position: fullmove 1 + halfmove 0 = index 1 of the sorted moves
	sess := core.NewSession("s", rules.New())
	mv, err := rt.SelectMove(ctx, host.New(sess))
	require.NoError(t, err)
	assert.Equal(t, sess.LegalMoves()[1], mv)
}

func TestSmartBot_PrefersCapture(t *testing.T) {
	rt := load(t, "smart")

	// white knight on c3 can take the queen on d5
	g, err := rules.FromFEN("rnb1kbnr/pppp1ppp/8/3q4/8/2N5/PPPPPPPP/R1BQKBNR w KQkq - 0 3")
	require.NoError(t, err)

	mv, err := rt.SelectMove(context.Background(), host.New(core.NewSession("s", g)))
	require.NoError(t, err)
	assert.Equal(t, "c3d5", mv)
}

func TestSmartBot_PrefersQueenPromotion(t *testing.T) {
	rt := load(t, "smart")

	g, err := rules.FromFEN("8/P6k/8/8/8/8/8/K7 w - - 0 40")
	require.NoError(t, err)

	mv, err := rt.SuggestMove(context.Background(), host.New(core.NewSession("s", g)))
	require.NoError(t, err)
	assert.Equal(t, "a7a8q", mv)
}
