// Package service defines the interfaces for all engine collaborators.
package service

import (
	"context"
	"io"
	"time"

	"github.com/callwarden/callwarden/internal/model"
)

// SessionFilter defines filtering options for session queries.
type SessionFilter struct {
	Status    *model.SessionStatus
	OlderThan *time.Time
	OwnerID   string
	Limit     int
	Offset    int
}

// AlertFilter defines filtering options for alert queries.
type AlertFilter struct {
	Status    *model.AlertStatus
	Severity  *model.Severity
	SessionID string
	RuleCode  string
	Limit     int
	Offset    int
}

// Storage defines the contract for the persistence layer. The underlying
// store guarantees single-row atomicity only; multi-row sequences (such as
// replacing a session's segments) are explicitly ordered by callers with
// documented partial-failure handling.
type Storage interface {
	// Rule operations
	CreateRule(ctx context.Context, rule *model.ComplianceRule) error
	GetRuleByCode(ctx context.Context, ruleCode string) (*model.ComplianceRule, error)
	GetActiveRules(ctx context.Context) ([]model.ComplianceRule, error)
	ListRules(ctx context.Context, includeInactive bool) ([]model.ComplianceRule, error)
	UpdateRule(ctx context.Context, rule *model.ComplianceRule) error
	SetRuleActive(ctx context.Context, ruleCode string, active bool) error
	DeleteRule(ctx context.Context, ruleCode string) error
	IncrementRuleTriggerCount(ctx context.Context, ruleCode string) error

	// Session operations
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error
	ApplySegmentRollup(ctx context.Context, id string, segments, words, chars int) error
	ApplyAlertRollup(ctx context.Context, id string, alerts, riskScore int, maxSeverity model.Severity) error
	FinalizeSession(ctx context.Context, id string, rollup model.SessionRollup) error
	DeleteSession(ctx context.Context, id string) error

	// Segment operations
	SaveSegment(ctx context.Context, segment *model.TranscriptSegment) error
	GetSegments(ctx context.Context, sessionID string) ([]model.TranscriptSegment, error)
	DeleteSegments(ctx context.Context, sessionID string) (int64, error)
	MarkSegmentAlerted(ctx context.Context, segmentID int64, alertIDs []string) error

	// Alert operations
	SaveAlert(ctx context.Context, alert *model.ComplianceAlert) error
	GetAlert(ctx context.Context, id string) (*model.ComplianceAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.ComplianceAlert, error)
	UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) error
	DeleteAlertsBySession(ctx context.Context, sessionID string) (int64, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// ArtifactStore holds session audio, content-addressed by owner and session
// id. Delete must be idempotent: deleting a missing artifact is not an error.
type ArtifactStore interface {
	Put(ctx context.Context, ownerID, sessionID string, body io.Reader, contentType string) (string, error)
	PresignGet(ctx context.Context, ownerID, sessionID string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, ownerID, sessionID string) error
}

// BatchTranscript is the flat, time-ordered word list a batch transcription
// returns. The engine is responsible for re-segmenting it by speaker.
type BatchTranscript struct {
	Language string
	Words    []model.Word
}

// DurationSeconds returns the end time of the last word, which is the usable
// duration of the transcript.
func (t BatchTranscript) DurationSeconds() float64 {
	if len(t.Words) == 0 {
		return 0
	}
	return t.Words[len(t.Words)-1].End
}

// BatchTranscriber re-transcribes a full recording from its audio URL.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, audioURL string) (BatchTranscript, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
