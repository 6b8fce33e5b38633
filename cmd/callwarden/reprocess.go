package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/callwarden/callwarden/internal/engine"
	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/rules"
	"github.com/callwarden/callwarden/internal/service"
)

func reprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess [session-id]",
		Short: "Run batch reconciliation for stuck sessions",
		Long: `Re-run batch reconciliation. With a session id, reconciles that one
session; without arguments, sweeps every processing session older than
--older-than and reconciles each in turn.

Reconciliation replaces a session's realtime segments with batch-derived,
speaker-segmented ones and re-runs compliance over them. A session whose
batch transcript is unusable is deleted along with its audio.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReprocess,
	}

	cmd.Flags().Duration("older-than", 30*time.Minute, "Age threshold for the sweep")

	return cmd
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	artifacts, err := initArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	transcriber, err := initTranscriber()
	if err != nil {
		return fmt.Errorf("failed to initialize transcriber: %w", err)
	}

	reconciler := engine.NewReconciler(store, transcriber, artifacts, rules.NewLoader(store)).
		WithMinDuration(viper.GetFloat64("engine.min_duration_seconds"))

	if len(args) == 1 {
		if err := reconciler.Reconcile(ctx, args[0]); err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		fmt.Printf("Session %s reconciled\n", args[0]) //nolint:forbidigo // User-facing output
		return nil
	}

	processing := model.SessionProcessing
	cutoff := time.Now().Add(-olderThan)
	sessions, err := store.ListSessions(ctx, service.SessionFilter{
		Status:    &processing,
		OlderThan: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("failed to list stuck sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No stuck sessions.") //nolint:forbidigo // User-facing output
		return nil
	}

	bar := progressbar.Default(int64(len(sessions)), "reconciling")
	failed := 0
	for _, session := range sessions {
		if err := reconciler.Reconcile(ctx, session.ID); err != nil {
			slog.Error("reconciliation failed", "session_id", session.ID, "error", err)
			failed++
		}
		_ = bar.Add(1)
	}

	//nolint:forbidigo // User-facing output
	fmt.Printf("Reconciled %d sessions, %d failed\n", len(sessions)-failed, failed)
	return nil
}
