package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
)

// Timing carries the audio offsets an alert inherits from its segment.
type Timing struct {
	AudioStart float64
	AudioEnd   float64
}

// Materializer persists violations as alert records and keeps the
// denormalized counters on the parent segment and session up to date.
type Materializer struct {
	storage service.Storage
}

// NewMaterializer creates an alert materializer backed by the given storage.
func NewMaterializer(storage service.Storage) *Materializer {
	return &Materializer{storage: storage}
}

// Materialize inserts one alert per violation, preserving evaluator
// ordering, then updates the parent segment's has_alert flag and the
// session's alert rollups. Inserts are best-effort fan-out: a failed insert
// is logged and skipped, never aborting the remaining violations.
//
// Materialize does not deduplicate by content; callers own at-most-one-
// evaluation-per-segment semantics.
func (m *Materializer) Materialize(ctx context.Context, sessionID string, segmentID *int64, violations []model.Violation, contextText string, timing Timing, speakerID string) []string {
	if len(violations) == 0 {
		return nil
	}

	var alertIDs []string
	insertedRisk := 0
	var maxSeverity model.Severity

	for _, violation := range violations {
		alert := &model.ComplianceAlert{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			SegmentID:      segmentID,
			RuleCode:       violation.Rule.RuleCode,
			Category:       violation.Rule.Category,
			Severity:       violation.Rule.Severity,
			RiskScore:      violation.Rule.RiskScore,
			MatchedText:    violation.MatchedText,
			MatchedPattern: violation.MatchedPattern,
			ContextText:    contextText,
			AudioStart:     timing.AudioStart,
			AudioEnd:       timing.AudioEnd,
			SpeakerID:      speakerID,
			Confidence:     violation.Confidence,
			Status:         model.AlertNew,
		}

		if err := m.storage.SaveAlert(ctx, alert); err != nil {
			slog.Error("failed to save alert, skipping",
				"session_id", sessionID,
				"rule_code", violation.Rule.RuleCode,
				"error", err)
			continue
		}

		alertIDs = append(alertIDs, alert.ID)
		insertedRisk += violation.Rule.RiskScore
		maxSeverity = model.MaxSeverity(maxSeverity, violation.Rule.Severity)

		if err := m.storage.IncrementRuleTriggerCount(ctx, violation.Rule.RuleCode); err != nil {
			slog.Warn("failed to increment rule trigger count",
				"rule_code", violation.Rule.RuleCode,
				"error", err)
		}
	}

	if len(alertIDs) == 0 {
		return nil
	}

	if segmentID != nil {
		if err := m.storage.MarkSegmentAlerted(ctx, *segmentID, alertIDs); err != nil {
			slog.Error("failed to mark segment alerted",
				"segment_id", *segmentID,
				"error", err)
		}
	}

	if err := m.storage.ApplyAlertRollup(ctx, sessionID, len(alertIDs), insertedRisk, maxSeverity); err != nil {
		slog.Error("failed to apply alert rollup",
			"session_id", sessionID,
			"error", err)
	}

	return alertIDs
}
