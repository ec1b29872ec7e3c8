package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gambit/archive"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [game-id]",
		Short: "List archived games, or print the moves of one game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return a.history(cmd.Context(), cmd.OutOrStdout(), id, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of games to list")
	return cmd
}

func (a *app) history(ctx context.Context, out io.Writer, id string, limit int) error {
	store, err := a.openArchive()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("the archive is disabled (archive.enabled)")
	}
	defer store.Close()

	if id != "" {
		game, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		return writeGame(out, game)
	}

	games, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintln(out, "no archived games")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tRESULT\tWINNER\tPLIES")
	for _, g := range games {
		winner := string(g.Winner)
		if winner == "" {
			winner = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", g.ID, g.ArchivedAt.Local().Format(time.DateTime), g.Result, winner, g.Plies)
	}
	return tw.Flush()
}

func writeGame(out io.Writer, g archive.Game) error {
	fmt.Fprintf(out, "game %s (session %s)\n", g.ID, g.SessionID)
	fmt.Fprintf(out, "white: %s %s\n", g.White.Mode, g.White.AgentID)
	fmt.Fprintf(out, "black: %s %s\n", g.Black.Mode, g.Black.AgentID)
	fmt.Fprintf(out, "result: %s after %d plies\n", g.Result, g.Plies)

	var b strings.Builder
	for i, mv := range g.Moves {
		if i%2 == 0 {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%3d.", i/2+1)
		}
		b.WriteString(" ")
		b.WriteString(mv)
	}
	if b.Len() > 0 {
		fmt.Fprintln(out, b.String())
	}
	fmt.Fprintf(out, "final: %s\n", g.FinalPosition)
	return nil
}
