package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/indrasol/ai-receptionist-backend/internal/orchestrator"
	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

var (
	scrapeURL          string
	scrapeOrganization string
	scrapeReceptionist string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Submit one URL and wait for the result",
	Long: `Submit a single scrape task and wait until it completes or fails.

Examples:
  # Ingest a page for an organization
  recepd scrape --url https://example.com/services --org acme

  # Scope the resulting chunks to one receptionist
  recepd scrape --url https://example.com/faq --org acme --receptionist front-desk`,
	RunE: runScrapeOnce,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "URL to scrape")
	scrapeCmd.Flags().StringVar(&scrapeOrganization, "org", "", "organization ID owning the chunks")
	scrapeCmd.Flags().StringVar(&scrapeReceptionist, "receptionist", "", "receptionist ID to scope chunks to")
	scrapeCmd.MarkFlagRequired("url")
	scrapeCmd.MarkFlagRequired("org")
}

func runScrapeOnce(cmd *cobra.Command, args []string) error {
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

	var orchSyncer orchestrator.KnowledgeSyncer
	if syncer != nil {
		orchSyncer = syncer
	}
	var orchArchiver orchestrator.Archiver
	if archiveClient != nil {
		orchArchiver = archiveClient
	}

	orch, err := orchestrator.New(st, ext, ch, orchSyncer, orchArchiver, orchestrator.Config{
		Workers:        1,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		PollInterval:   200 * time.Millisecond,
		TaskTimeout:    cfg.Worker.TaskTimeout,
		StaleAfter:     cfg.Worker.StaleAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	orch.Run(ctx)

	task, err := orch.Submit(ctx, scrapeOrganization, scrapeReceptionist, scrapeURL)
	if err != nil {
		return err
	}
	fmt.Printf("Task queued: %s\n", task.ID)

	final, err := waitForTask(ctx, orch, task)
	if err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = orch.Shutdown(shutdownCtx)

	switch final.Status {
	case models.TaskCompleted:
		chunks, err := st.ListActiveBySource(ctx, scrapeOrganization, scrapeURL)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		fmt.Printf("Completed: %d chunks stored\n", len(chunks))
		for _, c := range chunks {
			fmt.Printf("  %s  %s\n", c.ID, c.Name)
		}
		return nil
	case models.TaskFailed:
		reason := "unknown"
		if final.Error != nil {
			reason = *final.Error
		}
		return fmt.Errorf("task failed: %s", reason)
	default:
		return fmt.Errorf("interrupted while task was %s", final.Status)
	}
}

func waitForTask(ctx context.Context, orch *orchestrator.Orchestrator, task *models.ScrapeTask) (*models.ScrapeTask, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return task, nil
		case <-ticker.C:
		}

		current, err := orch.GetStatus(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll task: %w", err)
		}
		if current.Status.Terminal() {
			return current, nil
		}
	}
}
