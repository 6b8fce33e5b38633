package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
)

// ErrAlertNotFound is returned when an alert is not found.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, session_id, segment_id, rule_code, category, severity,
	risk_score, matched_text, matched_pattern, context_text, audio_start,
	audio_end, speaker_id, confidence, status, created_at`

// SaveAlert inserts one compliance alert.
func (s *SQLiteStorage) SaveAlert(ctx context.Context, alert *model.ComplianceAlert) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAlert(alert); err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (
			id, session_id, segment_id, rule_code, category, severity,
			risk_score, matched_text, matched_pattern, context_text,
			audio_start, audio_end, speaker_id, confidence, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.SessionID, alert.SegmentID, alert.RuleCode,
		alert.Category, alert.Severity, alert.RiskScore, alert.MatchedText,
		alert.MatchedPattern, alert.ContextText, alert.AudioStart,
		alert.AudioEnd, alert.SpeakerID, alert.Confidence, alert.Status,
	); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	slog.Info("saved alert",
		"id", alert.ID,
		"session_id", alert.SessionID,
		"rule_code", alert.RuleCode,
		"severity", alert.Severity)
	return nil
}

// GetAlert retrieves an alert by id.
func (s *SQLiteStorage) GetAlert(ctx context.Context, id string) (*model.ComplianceAlert, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter. Within a session, alerts
// come back in insertion order so evaluator ordering is preserved.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, filter service.AlertFilter) ([]model.ComplianceAlert, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Severity != nil {
		conditions = append(conditions, "severity = ?")
		args = append(args, *filter.Severity)
	}
	if filter.RuleCode != "" {
		conditions = append(conditions, "rule_code = ?")
		args = append(args, filter.RuleCode)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var alerts []model.ComplianceAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

// UpdateAlertStatus moves an alert through the review state machine.
func (s *SQLiteStorage) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidAlert, status)
	}

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if !alert.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move alert from %q to %q", ErrInvalidAlert, alert.Status, status)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	slog.Info("updated alert status", "id", id, "status", status)
	return nil
}

// DeleteAlertsBySession removes all alerts for a session and returns how
// many rows went away. Idempotent.
func (s *SQLiteStorage) DeleteAlertsBySession(ctx context.Context, sessionID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Info("deleted alerts", "session_id", sessionID, "count", rows)
	return rows, nil
}

func scanAlert(row scanner) (*model.ComplianceAlert, error) {
	alert := &model.ComplianceAlert{}
	var segmentID sql.NullInt64
	var contextText, speakerID sql.NullString

	if err := row.Scan(
		&alert.ID, &alert.SessionID, &segmentID, &alert.RuleCode,
		&alert.Category, &alert.Severity, &alert.RiskScore,
		&alert.MatchedText, &alert.MatchedPattern, &contextText,
		&alert.AudioStart, &alert.AudioEnd, &speakerID,
		&alert.Confidence, &alert.Status, &alert.CreatedAt,
	); err != nil {
		return nil, err
	}

	if segmentID.Valid {
		alert.SegmentID = &segmentID.Int64
	}
	alert.ContextText = contextText.String
	alert.SpeakerID = speakerID.String
	return alert, nil
}
