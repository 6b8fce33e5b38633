package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recording sessions",
	}

	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsDeleteCmd())

	return cmd
}

func sessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Long: `List sessions, newest first.

With --stuck, only sessions still in processing older than --older-than are
shown; these are reconciliations that partially failed and are eligible for
'callwarden reprocess'.`,
		RunE: runSessionsList,
	}

	cmd.Flags().String("status", "", "Filter by status (recording, processing, completed, flagged)")
	cmd.Flags().Bool("stuck", false, "Show only stuck processing sessions")
	cmd.Flags().Duration("older-than", 30*time.Minute, "Age threshold for --stuck")
	cmd.Flags().Int("limit", 50, "Maximum sessions to show")

	return cmd
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	statusFlag, _ := cmd.Flags().GetString("status")
	stuck, _ := cmd.Flags().GetBool("stuck")
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := service.SessionFilter{Limit: limit}
	if stuck {
		processing := model.SessionProcessing
		cutoff := time.Now().Add(-olderThan)
		filter.Status = &processing
		filter.OlderThan = &cutoff
	} else if statusFlag != "" {
		status := model.SessionStatus(statusFlag)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", statusFlag)
		}
		filter.Status = &status
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

	sessions, err := store.ListSessions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.") //nolint:forbidigo // User-facing output
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintln(w, "ID\tOWNER\tSTATUS\tSEGMENTS\tALERTS\tMAX SEV\tRISK\tDURATION\tBATCH")
	for _, session := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%d\t%.1fs\t%v\n",
			session.ID, session.OwnerID, session.Status,
			session.TotalSegments, session.TotalAlerts, session.MaxSeverity,
			session.RiskScore, session.DurationSeconds, session.BatchProcessed)
	}

	return nil
}

func sessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its segments and alerts",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsShow,
	}
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	//nolint:forbidigo // User-facing output
	fmt.Printf("Session %s\n  owner=%s status=%s segments=%d words=%d alerts=%d max_severity=%s risk=%d duration=%.1fs batch=%v\n\n",
		session.ID, session.OwnerID, session.Status, session.TotalSegments,
		session.TotalWords, session.TotalAlerts, session.MaxSeverity,
		session.RiskScore, session.DurationSeconds, session.BatchProcessed)

	segments, err := store.GetSegments(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get segments: %w", err)
	}

	for _, segment := range segments {
		marker := " "
		if segment.HasAlert {
			marker = "!"
		}
		//nolint:forbidigo // User-facing output
		fmt.Printf("%s [%3d] %6.1f-%6.1fs %-8s (%s) %s\n",
			marker, segment.SegmentIndex, segment.StartTime, segment.EndTime,
			segment.SpeakerID, segment.Source, segment.Text)
	}

	alerts, err := store.ListAlerts(ctx, service.AlertFilter{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	if len(alerts) > 0 {
		fmt.Println() //nolint:forbidigo // User-facing output
		for _, alert := range alerts {
			//nolint:forbidigo // User-facing output
			fmt.Printf("ALERT %s rule=%s severity=%s status=%s matched=%q\n",
				alert.ID, alert.RuleCode, alert.Severity, alert.Status, alert.MatchedText)
		}
	}

	return nil
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session with its segments, alerts and audio",
		Long: `Remove a session and everything hanging off it. Each step is idempotent,
so a partially failed delete can simply be re-run. The audio artifact is only
removed when audio storage is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: runSessionsDelete,
	}
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	// Alerts first, then segments, then the session row, mirroring the
	// reconciler's compensating-delete ordering.
	if _, err := store.DeleteAlertsBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete alerts: %w", err)
	}
	if _, err := store.DeleteSegments(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	if err := store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if viper.GetString("audio.bucket") != "" {
		artifacts, err := initArtifacts(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize artifact store: %w", err)
		}
		if err := artifacts.Delete(ctx, session.OwnerID, sessionID); err != nil {
			return fmt.Errorf("failed to delete audio artifact: %w", err)
		}
	}

	fmt.Printf("Session %s deleted\n", sessionID) //nolint:forbidigo // User-facing output
	return nil
}
