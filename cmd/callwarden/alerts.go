package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and review compliance alerts",
	}

	cmd.AddCommand(alertsListCmd())
	cmd.AddCommand(alertsReviewCmd())

	return cmd
}

func alertsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE:  runAlertsList,
	}

	cmd.Flags().String("session", "", "Filter by session id")
	cmd.Flags().String("status", "", "Filter by status (new, reviewed, resolved, false_positive)")
	cmd.Flags().String("severity", "", "Filter by severity (low, medium, high, critical)")
	cmd.Flags().Int("limit", 100, "Maximum alerts to show")

	return cmd
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	sessionID, _ := cmd.Flags().GetString("session")
	statusFlag, _ := cmd.Flags().GetString("status")
	severityFlag, _ := cmd.Flags().GetString("severity")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := service.AlertFilter{SessionID: sessionID, Limit: limit}
	if statusFlag != "" {
		status := model.AlertStatus(statusFlag)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", statusFlag)
		}
		filter.Status = &status
	}
	if severityFlag != "" {
		severity := model.Severity(severityFlag)
		if !severity.Valid() {
			return fmt.Errorf("unknown severity %q", severityFlag)
		}
		filter.Severity = &severity
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	alerts, err := store.ListAlerts(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts found.") //nolint:forbidigo // User-facing output
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintln(w, "ID\tSESSION\tRULE\tSEVERITY\tSTATUS\tMATCHED")
	for _, alert := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%q\n",
			alert.ID, alert.SessionID, alert.RuleCode,
			alert.Severity, alert.Status, alert.MatchedText)
	}

	return nil
}

func alertsReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <alert-id>",
		Short: "Move an alert through review",
		Long: `Set an alert's review status. Valid transitions:
new → reviewed, resolved or false_positive; reviewed → resolved or
false_positive. Resolved and false_positive alerts are final.`,
		Args: cobra.ExactArgs(1),
		RunE: runAlertsReview,
	}

	cmd.Flags().String("status", "reviewed", "New status (reviewed, resolved, false_positive)")

	return cmd
}

func runAlertsReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	statusFlag, _ := cmd.Flags().GetString("status")

	status := model.AlertStatus(statusFlag)
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", statusFlag)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	if err := store.UpdateAlertStatus(ctx, args[0], status); err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	fmt.Printf("Alert %s → %s\n", args[0], status) //nolint:forbidigo // User-facing output
	return nil
}
