package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"castboard/internal/api"
	"castboard/internal/ledger"
	"castboard/internal/logging"
	"castboard/internal/reconcile"
)

const shutdownTimeout = 30 * time.Second

var (
	listenAddr     string
	allowedOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and keep the leaderboard reconciled with the ledger",
	Long: `Run the HTTP API, reconcile against the ledger on startup and every
RECONCILE_INTERVAL, and (with the contract ledger and WS_URL set) on every
registry event.

Examples:
  castboard serve
  castboard serve --listen :8080 --ledger postgres`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":3000", "HTTP listen address; overrides LISTEN_ADDR")
	serveCmd.Flags().StringVar(&allowedOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (default: localhost only)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := api.NewServer(api.Options{
		Board:          a.board,
		Reconciler:     a.reconciler,
		Snapshots:      a.snapshots,
		AllowedOrigins: splitList(allowedOrigins),
		Logger:         logging.Component(logger, "api"),
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error().Dur("timeout", shutdownTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	var trigger <-chan struct{}
	if a.contract != nil && cfg.WSEndpoint != "" {
		stream, err := ledger.NewEventStream(cfg.WSEndpoint, a.contract.Address(), nil, logging.Component(logger, "ledger_events"))
		if err != nil {
			return err
		}
		events := make(chan ledger.Event, 16)
		trigger = reconcile.Coalesce(events)
		g.Go(func() error {
			defer close(events)
			return stream.Run(gctx, events)
		})
	}

	g.Go(func() error {
		return a.reconciler.Run(gctx, cfg.ReconcileInterval, trigger)
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
