package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/testutil"
	"github.com/hupe1980/gambit/rules"
)

type refusingDecider struct{}

func (refusingDecider) SelectMove(context.Context, string, core.Capabilities) (string, error) {
	return "", errors.New("not used")
}

func (refusingDecider) SuggestMove(context.Context, string, core.Capabilities) (string, error) {
	return "", errors.New("not used")
}

func (refusingDecider) NotifyGameStart(context.Context, string, core.Capabilities) {}

// Reset, undo and reconfiguration strictly increase the generation and
// invalidate every token captured before them.
func TestGenerationMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		eng := New(refusingDecider{}, func(o *Options) { o.Scheduler = &testutil.ManualScheduler{} })
		sess, err := eng.CreateSession(rules.New())
		require.NoError(rt, err)

		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"move", "reset", "undo", "configure"}), 1, 40).Draw(rt, "ops")
		for _, op := range ops {
			prev := sess.Generation()
			tok := sess.Token()

			var gen uint64
			bumped := true
			switch op {
			case "move":
				moves := sess.LegalMoves()
				if len(moves) == 0 {
					continue
				}
				mv := moves[rapid.IntRange(0, len(moves)-1).Draw(rt, "move")]
				_, err := eng.PlayMove(ctx, sess.ID, mv)
				require.NoError(rt, err)
				gen, bumped = sess.Generation(), false
			case "reset":
				gen, err = eng.Reset(sess.ID)
				require.NoError(rt, err)
			case "undo":
				gen, err = eng.Undo(sess.ID)
				if errors.Is(err, core.ErrNothingToUndo) {
					require.Equal(rt, prev, gen)
					continue
				}
				require.NoError(rt, err)
			case "configure":
				require.NoError(rt, eng.Configure(ctx, sess.ID, core.DefaultMatchConfig))
				gen = sess.Generation()
			}

			if bumped {
				require.Greater(rt, gen, prev)
			} else {
				require.Equal(rt, prev, gen)
			}
			require.False(rt, sess.Current(tok), "token survived %s", op)

			if moves := sess.LegalMoves(); len(moves) > 0 {
				_, err := sess.ApplyIf(tok, moves[0], "")
				require.ErrorIs(rt, err, core.ErrStaleGeneration)
			}
		}
	})
}
