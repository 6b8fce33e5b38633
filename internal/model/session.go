package model

import (
	"fmt"
	"time"
)

// SessionStatus tracks a recording session through its lifecycle.
type SessionStatus string

// Session lifecycle states. Flagged is a reviewer-driven side state; the
// engine itself only moves sessions recording → processing → completed.
const (
	SessionRecording  SessionStatus = "recording"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFlagged    SessionStatus = "flagged"
)

// Valid reports whether the status is a known session state.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRecording, SessionProcessing, SessionCompleted, SessionFlagged:
		return true
	}
	return false
}

// Session is one recording/call instance with denormalized rollups that are
// updated on every segment save and alert creation. MaxSeverity is monotonic
// non-decreasing except when a batch reconciliation atomically replaces all
// segments and recomputes it.
type Session struct {
	StartedAt       time.Time     `json:"started_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	Status          SessionStatus `json:"status"`
	MaxSeverity     Severity      `json:"max_severity,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	TotalSegments   int           `json:"total_segments"`
	TotalWords      int           `json:"total_words"`
	TotalChars      int           `json:"total_chars"`
	TotalAlerts     int           `json:"total_alerts"`
	RiskScore       int           `json:"risk_score"`
	BatchProcessed  bool          `json:"batch_processed"`
}

// Validate ensures the session has usable data.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.OwnerID == "" {
		return fmt.Errorf("session owner id is required")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("session %s: unknown status %q", s.ID, s.Status)
	}
	return nil
}

// SessionRollup carries the final aggregate values written in one atomic
// update when batch reconciliation completes.
type SessionRollup struct {
	MaxSeverity     Severity
	DurationSeconds float64
	TotalSegments   int
	TotalWords      int
	TotalChars      int
	TotalAlerts     int
	RiskScore       int
}
