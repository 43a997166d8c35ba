package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var reconcileOrganization string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair knowledge base drift for an organization",
	Long: `Reconcile the external knowledge base with the chunk store.

Deleted chunks that still hold a knowledge file get their file removed;
active chunks missing a file get uploaded. Run this after an outage of the
assistant platform or a partial sync failure.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileOrganization, "org", "", "organization ID to reconcile")
	reconcileCmd.MarkFlagRequired("org")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if !cfg.Vapi.Enabled {
		return fmt.Errorf("knowledge sync is disabled, nothing to reconcile")
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	syncer, err := buildSyncer(cfg, st)
	if err != nil {
		return err
	}

	result, err := syncer.Reconcile(ctx, reconcileOrganization)
	if err != nil {
		return err
	}

	fmt.Printf("Reconciled %s: %d attached, %d detached, %d failed\n",
		reconcileOrganization, result.Attached, result.Detached, result.Failed)
	return nil
}
