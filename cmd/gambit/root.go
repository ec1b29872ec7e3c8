package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gambit"
	"github.com/hupe1980/gambit/agent/wasm"
	"github.com/hupe1980/gambit/archive"
	"github.com/hupe1980/gambit/artifact"
	"github.com/hupe1980/gambit/config"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
	"github.com/hupe1980/gambit/invoker"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/session"
)

// app carries state shared by every subcommand.
type app struct {
	cfgPath  string
	logLevel string

	cfg    *config.Config
	logger *logging.GambitLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "gambit",
		Short:        "Load chess agents and play them against each other",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default searches ./config and .)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(a), newPlayCmd(a), newAgentsCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		AddSource: cfg.Log.AddSource,
	})
	return nil
}

// openArchive opens the configured archive, or returns nil when it is disabled.
func (a *app) openArchive() (*archive.SQLiteStore, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	return archive.OpenSQLite(a.cfg.Archive.Path)
}

// newGambit builds the façade from the loaded configuration.
func (a *app) newGambit(ctx context.Context, store *archive.SQLiteStore, optFns ...func(o *gambit.Options)) (*gambit.Gambit, error) {
	return gambit.New(ctx, append([]func(o *gambit.Options){a.options(store)}, optFns...)...)
}

func (a *app) options(store *archive.SQLiteStore) func(o *gambit.Options) {
	cfg := a.cfg
	return func(o *gambit.Options) {
		o.Policy = core.UploadPolicy{
			MaxPayloadBytes:   cfg.Upload.MaxPayloadBytes,
			MaxUploadedAgents: cfg.Upload.MaxUploadedAgents,
		}
		o.EngineConfig = engine.Config{
			MaxPlies:               cfg.Match.MaxPlies,
			MaxConcurrentDecisions: cfg.Match.MaxConcurrentDecisions,
			ArchiveTimeout:         engine.DefaultConfig.ArchiveTimeout,
			MoveDelay:              cfg.Match.MoveDelay,
		}
		o.InvokerConfig = invoker.Config{Timeout: cfg.Match.DecisionTimeout}
		o.WasmConfig = wasm.Config{
			MemoryLimitPages: cfg.Wasm.MemoryLimitPages,
			Interpreter:      cfg.Wasm.Interpreter,
		}
		o.SessionStore = session.NewInMemoryStore(func(c *session.Config) {
			c.MaxSessions = cfg.Match.MaxSessions
		})
		if cfg.Upload.RetainPayloads {
			o.Payloads = artifact.NewInMemoryStore(cfg.Upload.MaxPayloadBytes * cfg.Upload.MaxUploadedAgents)
		}
		if store != nil {
			o.Archiver = store
		}
		o.Logger = a.logger
	}
}
