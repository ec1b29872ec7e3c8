package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gambit/internal/server"
	"github.com/hupe1980/gambit/logging"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Address = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	g, err := a.newGambit(ctx, store)
	if err != nil {
		return err
	}

	api := server.New(g, func(o *server.Options) {
		o.Config.EventBuffer = a.cfg.Server.EventBuffer
		o.Logger = logging.ForComponent(a.logger, "server")
	})
	srv := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           api.Routes(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", "addr", srv.Addr, "agents", len(g.Agents()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = g.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	err = errors.Join(srv.Shutdown(shutdownCtx), g.Close(shutdownCtx))
	if err != nil {
		a.logger.Error("Server shutdown error", "error", err)
		return err
	}
	a.logger.Info("Server stopped")
	return nil
}
