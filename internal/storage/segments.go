package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/callwarden/callwarden/internal/model"
)

// ErrSegmentNotFound is returned when a segment is not found.
var ErrSegmentNotFound = errors.New("segment not found")

// SaveSegment inserts one transcript segment.
func (s *SQLiteStorage) SaveSegment(ctx context.Context, segment *model.TranscriptSegment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSegment(segment); err != nil {
		return err
	}

	wordsJSON, err := json.Marshal(segment.Words)
	if err != nil {
		return fmt.Errorf("failed to marshal words: %w", err)
	}

	query := `
		INSERT INTO segments (
			session_id, segment_index, text, start_time, end_time, words,
			speaker_id, has_alert, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		segment.SessionID, segment.SegmentIndex, segment.Text,
		segment.StartTime, segment.EndTime, string(wordsJSON),
		segment.SpeakerID, segment.HasAlert, segment.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	segment.ID = id
	return nil
}

// GetSegments returns all segments for a session in segment_index order.
func (s *SQLiteStorage) GetSegments(ctx context.Context, sessionID string) ([]model.TranscriptSegment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, segment_index, text, start_time, end_time,
			words, speaker_id, has_alert, alert_ids, source, created_at
		FROM segments
		WHERE session_id = ?
		ORDER BY segment_index`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var segments []model.TranscriptSegment
	for rows.Next() {
		var segment model.TranscriptSegment
		var wordsJSON, alertIDsJSON, speakerID sql.NullString

		if err := rows.Scan(
			&segment.ID, &segment.SessionID, &segment.SegmentIndex,
			&segment.Text, &segment.StartTime, &segment.EndTime,
			&wordsJSON, &speakerID, &segment.HasAlert, &alertIDsJSON,
			&segment.Source, &segment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}

		if wordsJSON.Valid && wordsJSON.String != "" {
			if err := json.Unmarshal([]byte(wordsJSON.String), &segment.Words); err != nil {
				return nil, fmt.Errorf("failed to unmarshal words: %w", err)
			}
		}
		if alertIDsJSON.Valid && alertIDsJSON.String != "" {
			if err := json.Unmarshal([]byte(alertIDsJSON.String), &segment.AlertIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal alert ids: %w", err)
			}
		}
		segment.SpeakerID = speakerID.String
		segments = append(segments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segments: %w", err)
	}
	return segments, nil
}

// DeleteSegments removes all segments for a session and returns how many
// rows went away. Idempotent; deleting an empty session is not an error.
func (s *SQLiteStorage) DeleteSegments(ctx context.Context, sessionID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete segments: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Info("deleted segments", "session_id", sessionID, "count", rows)
	return rows, nil
}

// MarkSegmentAlerted sets has_alert and appends the given alert ids on the
// segment row.
func (s *SQLiteStorage) MarkSegmentAlerted(ctx context.Context, segmentID int64, alertIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(alertIDs) == 0 {
		return nil
	}

	var existingJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT alert_ids FROM segments WHERE id = ?`, segmentID).Scan(&existingJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSegmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read segment alert ids: %w", err)
	}

	var ids []string
	if existingJSON.Valid && existingJSON.String != "" {
		if err := json.Unmarshal([]byte(existingJSON.String), &ids); err != nil {
			return fmt.Errorf("failed to unmarshal alert ids: %w", err)
		}
	}
	ids = append(ids, alertIDs...)

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal alert ids: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE segments SET has_alert = 1, alert_ids = ? WHERE id = ?`,
		string(data), segmentID); err != nil {
		return fmt.Errorf("failed to mark segment alerted: %w", err)
	}
	return nil
}
