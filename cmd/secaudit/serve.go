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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := api.Deps{
		Store:    eng.store,
		Entities: eng.entities,
		Registry: eng.registry,
		Settings: eng.settings,
		Analyzer: eng.analyzer,
		Runner:   eng.runner,
		Batch: api.BatchDefaults{
			ChunkSize:    eng.cfg.Batch.ChunkSize,
			Policy:       eng.cfg.Batch.Policy,
			RecentWindow: eng.cfg.Batch.RecentWindow,
		},
		Token: eng.cfg.Server.Token,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", eng.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// MCP over stdio runs alongside the HTTP API.
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("secaudit listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
