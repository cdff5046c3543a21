// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/server"
	"github.com/pdiddy/cad-engine/internal/session"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation loop over HTTP",
	Long: `Serve exposes generation as an HTTP API: POST /api/generate and
POST /api/iterate run the loop (add ?stream=1 for server-sent reasoning
events), GET /api/sessions inspects the registry, and /metrics exports
Prometheus counters.`,
	RunE: runServe,
}

func init() {
	addGenerationFlags(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg := resolveConfig(cmd)
	store, err := session.Open(cfg.Sessions)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := server.NewMetrics("cad_engine")
	eng, err := buildEngine(cfg, metrics.InstrumentRecorder(store), logger)
	if err != nil {
		return err
	}

	srv := server.New(eng, store, metrics, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "Listening on %s\n", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.String("addr", cfg.Server.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
