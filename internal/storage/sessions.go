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

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, owner_id, status, started_at, total_segments, total_words,
	total_chars, total_alerts, risk_score, max_severity, duration_seconds,
	batch_processed, created_at, updated_at`

// CreateSession creates a new recording session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *model.Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSession(session); err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, owner_id, status, started_at, max_severity)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.Status, session.StartedAt,
		string(session.MaxSeverity)); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("created session", "id", session.ID, "owner", session.OwnerID)
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context, filter service.SessionFilter) ([]model.Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.OlderThan != nil {
		conditions = append(conditions, "updated_at < ?")
		args = append(args, *filter.OlderThan)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var sessions []model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus moves a session to a new lifecycle state.
func (s *SQLiteStorage) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidSession, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	slog.Info("updated session status", "id", id, "status", status)
	return nil
}

// ApplySegmentRollup adds one segment's counts to the session totals in a
// single row update.
func (s *SQLiteStorage) ApplySegmentRollup(ctx context.Context, id string, segments, words, chars int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			total_segments = total_segments + ?,
			total_words = total_words + ?,
			total_chars = total_chars + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		segments, words, chars, id)
	if err != nil {
		return fmt.Errorf("failed to apply segment rollup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ApplyAlertRollup adds alert counts and risk score to the session and
// raises max_severity if the new severity outranks the current one. The
// comparison happens inside one UPDATE so the row stays consistent under
// concurrent sessions.
func (s *SQLiteStorage) ApplyAlertRollup(ctx context.Context, id string, alerts, riskScore int, maxSeverity model.Severity) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			total_alerts = total_alerts + ?,
			risk_score = risk_score + ?,
			max_severity = CASE
				WHEN (CASE max_severity
					WHEN 'critical' THEN 4
					WHEN 'high' THEN 3
					WHEN 'medium' THEN 2
					WHEN 'low' THEN 1
					ELSE 0 END) >= ? THEN max_severity
				ELSE ? END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		alerts, riskScore, maxSeverity.Rank(), string(maxSeverity), id)
	if err != nil {
		return fmt.Errorf("failed to apply alert rollup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FinalizeSession writes the batch reconciliation rollups, duration and
// completed status in one atomic update. This is the only path that may
// lower max_severity, since the segments it summarizes replaced the
// realtime generation entirely.
func (s *SQLiteStorage) FinalizeSession(ctx context.Context, id string, rollup model.SessionRollup) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			total_segments = ?,
			total_words = ?,
			total_chars = ?,
			total_alerts = ?,
			risk_score = ?,
			max_severity = ?,
			duration_seconds = ?,
			status = ?,
			batch_processed = 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rollup.TotalSegments, rollup.TotalWords, rollup.TotalChars,
		rollup.TotalAlerts, rollup.RiskScore, string(rollup.MaxSeverity),
		rollup.DurationSeconds, model.SessionCompleted, id)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	slog.Info("finalized session", "id", id,
		"segments", rollup.TotalSegments,
		"alerts", rollup.TotalAlerts,
		"risk_score", rollup.RiskScore)
	return nil
}

// DeleteSession removes a session row. Safe to call on a missing session so
// the compensating-delete sequence can be retried.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("deleted session", "id", id)
	return nil
}

func scanSession(row scanner) (*model.Session, error) {
	session := &model.Session{}
	var maxSeverity string
	var startedAt sql.NullTime

	if err := row.Scan(
		&session.ID, &session.OwnerID, &session.Status, &startedAt,
		&session.TotalSegments, &session.TotalWords, &session.TotalChars,
		&session.TotalAlerts, &session.RiskScore, &maxSeverity,
		&session.DurationSeconds, &session.BatchProcessed,
		&session.CreatedAt, &session.UpdatedAt,
	); err != nil {
		return nil, err
	}

	session.MaxSeverity = model.Severity(maxSeverity)
	if startedAt.Valid {
		session.StartedAt = startedAt.Time
	}
	return session, nil
}
