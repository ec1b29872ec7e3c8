package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gambit"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
)

type playOptions struct {
	white    string
	black    string
	fen      string
	delay    time.Duration
	maxPlies int
}

func newPlayCmd(a *app) *cobra.Command {
	var opts playOptions
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play two agents against each other",
		Long: `Play two agents against each other and print every move.

An agent is a built-in key (random, smart), the name of a built-in agent or
the path of a .wasm or .js file.`,
		Example: `  gambit play --white smart --black ./agents/mine.wasm --delay 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("delay") {
				opts.delay = a.cfg.Match.MoveDelay
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.play(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.white, "white", "random", "agent playing white")
	cmd.Flags().StringVar(&opts.black, "black", "random", "agent playing black")
	cmd.Flags().StringVar(&opts.fen, "fen", "", "starting position (default standard)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "pause between moves (default match.move_delay)")
	cmd.Flags().IntVar(&opts.maxPlies, "max-plies", 0, "stop after this many plies (default match.max_plies)")
	return cmd
}

func (a *app) play(ctx context.Context, out io.Writer, opts playOptions) (err error) {
	store, err := a.openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	g, err := a.newGambit(ctx, store, func(o *gambit.Options) {
		if opts.maxPlies > 0 {
			o.EngineConfig.MaxPlies = opts.maxPlies
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, g.Close(context.Background()))
	}()

	white, err := loadAgent(ctx, g, opts.white)
	if err != nil {
		return fmt.Errorf("white: %w", err)
	}
	black, err := loadAgent(ctx, g, opts.black)
	if err != nil {
		return fmt.Errorf("black: %w", err)
	}

	sess, err := g.NewSession(opts.fen)
	if err != nil {
		return err
	}
	if res := sess.Result(); res.Terminal() {
		fmt.Fprintf(out, "position is already decided: %s\n", res)
		return nil
	}

	events, unsubscribe := g.Events().Subscribe(256, engine.ForSession(sess.ID), engine.OfType(
		core.EventMoveApplied, core.EventGameOver, core.EventMatchPaused,
		core.EventDecisionFailed, core.EventIllegalMove,
	))
	defer unsubscribe()

	fmt.Fprintf(out, "%s (white) vs %s (black)\n", white.Name, black.Name)
	err = g.Engine().Configure(ctx, sess.ID, core.MatchConfig{
		White:     core.Seat{Mode: core.SeatAuto, AgentID: white.ID},
		Black:     core.Seat{Mode: core.SeatAuto, AgentID: black.ID},
		MoveDelay: opts.delay,
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "interrupted")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case core.EventMoveApplied:
				fmt.Fprintf(out, "%3d. %-5s %s\n", ev.Ply, ev.Side, ev.Move)
			case core.EventGameOver:
				fmt.Fprintf(out, "result: %s\n", describeResult(ev.Result, ev.Side))
				return nil
			case core.EventMatchPaused:
				fmt.Fprintf(out, "stopped: %s\n", ev.Message)
				return nil
			case core.EventDecisionFailed, core.EventIllegalMove:
				return fmt.Errorf("%s agent failed: %s", ev.Side, ev.Error)
			}
		}
	}
}

// loadAgent resolves ref against the registry, loading it from disk when it
// names a file.
func loadAgent(ctx context.Context, g *gambit.Gambit, ref string) (core.AgentDescriptor, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		payload, err := os.ReadFile(ref)
		if err != nil {
			return core.AgentDescriptor{}, err
		}
		return g.LoadAgent(ctx, filepath.Base(ref), payload)
	}
	id, err := g.ResolveAgent(ref)
	if err != nil {
		return core.AgentDescriptor{}, err
	}
	return g.Agent(id)
}

func describeResult(res core.GameResult, mover core.Side) string {
	if res == core.ResultCheckmate {
		return fmt.Sprintf("%s, %s wins", res, mover)
	}
	return string(res)
}
