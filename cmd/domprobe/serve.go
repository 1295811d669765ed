package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/domprobe/api"
	"github.com/use-agent/domprobe/cache"
	"github.com/use-agent/domprobe/snapshot"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the elements API over HTTP",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			// Server logs go to stdout.
			initLogger(a.cfg.Log, cmd.OutOrStdout())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	slog.Info("domprobe starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"driver", cfg.Browser.Driver,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 1. Start the browser driver ─────────────────────────────────
	driver, err := a.newDriver(cfg.Browser)
	if err != nil {
		return fmt.Errorf("failed to initialise browser driver: %w", err)
	}
	defer driver.Close()

	// ── 2. Static fetcher + cache ───────────────────────────────────
	fetcher := snapshot.NewFetcher(cfg.Browser.Proxy, cfg.Static.Timeout)
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()

	// ── 3. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(driver, fetcher, cfg, cc, time.Now())

	// ── 4. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 5. Graceful shutdown ────────────────────────────────────────
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// In-flight sessions get 5 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// driver.Close runs via defer and releases the browser.
	slog.Info("domprobe stopped")
	return nil
}
