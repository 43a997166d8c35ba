package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indrasol/ai-receptionist-backend/internal/orchestrator"
	"github.com/indrasol/ai-receptionist-backend/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and task workers",
	Long: `Start the HTTP API together with the scrape workers.

The server accepts scrape submissions, the workers claim queued tasks and
run extraction, chunking and knowledge sync. Both shut down gracefully on
SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	ext, err := buildExtractor(cfg)
	if err != nil {
		return err
	}

	ch, err := buildChunker(cfg)
	if err != nil {
		return err
	}

	syncer, err := buildSyncer(cfg, st)
	if err != nil {
		return err
	}

	archiveClient, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}

	// Interface fields stay nil unless a component is actually enabled.
	var orchSyncer orchestrator.KnowledgeSyncer
	if syncer != nil {
		orchSyncer = syncer
	}
	var orchArchiver orchestrator.Archiver
	if archiveClient != nil {
		orchArchiver = archiveClient
	}

	orch, err := orchestrator.New(st, ext, ch, orchSyncer, orchArchiver, orchestrator.Config{
		Workers:        cfg.Worker.Count,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		PollInterval:   cfg.Worker.PollInterval,
		TaskTimeout:    cfg.Worker.TaskTimeout,
		StaleAfter:     cfg.Worker.StaleAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	orch.Run(ctx)

	var detacher server.Detacher
	if syncer != nil {
		detacher = syncer
	}
	srv := server.New(orch, st, detacher, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker shutdown incomplete", "error", err)
	}
	return nil
}
