package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gambit/core"
)

func newAgentsCmd(a *app) *cobra.Command {
	var asJSON bool
	var files []string
	cmd := &cobra.Command{
		Use:   "agents [file...]",
		Short: "List the built-in agents and validate agent files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listAgents(cmd.Context(), cmd.OutOrStdout(), append(files, args...), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON")
	cmd.Flags().StringSliceVar(&files, "load", nil, "agent files to load before listing")
	return cmd
}

func (a *app) listAgents(ctx context.Context, out io.Writer, files []string, asJSON bool) (err error) {
	g, err := a.newGambit(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, g.Close(context.Background()))
	}()

	for _, f := range files {
		if _, err := loadAgent(ctx, g, f); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	agents := g.Agents()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(agents)
	}
	return writeAgents(out, agents)
}

func writeAgents(out io.Writer, agents []core.AgentDescriptor) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tORIGIN\tSIDE\tDESCRIPTION")
	for _, d := range agents {
		side := string(d.PreferredSide)
		if side == "" {
			side = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.Origin, side, d.Description)
	}
	return tw.Flush()
}
