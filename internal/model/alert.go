package model

import (
	"fmt"
	"time"
)

// AlertStatus tracks a detected violation through human review.
type AlertStatus string

// Alert review states: new → reviewed → resolved, with false_positive
// reachable from any non-resolved state.
const (
	AlertNew           AlertStatus = "new"
	AlertReviewed      AlertStatus = "reviewed"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

// Valid reports whether the status is a known alert state.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertNew, AlertReviewed, AlertResolved, AlertFalsePositive:
		return true
	}
	return false
}

// CanTransitionTo reports whether the review state machine permits moving
// from the current status to next.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertNew:
		return next == AlertReviewed || next == AlertResolved || next == AlertFalsePositive
	case AlertReviewed:
		return next == AlertResolved || next == AlertFalsePositive
	case AlertResolved, AlertFalsePositive:
		return false
	}
	return false
}

// ComplianceAlert is one persisted violation instance. Severity and category
// are frozen copies taken from the rule at detection time, immune to later
// rule edits; audit integrity wins over freshness.
type ComplianceAlert struct {
	CreatedAt      time.Time   `json:"created_at"`
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	RuleCode       string      `json:"rule_code"`
	Category       Category    `json:"category"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	MatchedText    string      `json:"matched_text"`
	MatchedPattern string      `json:"matched_pattern"`
	ContextText    string      `json:"context_text,omitempty"`
	SpeakerID      string      `json:"speaker_id,omitempty"`
	SegmentID      *int64      `json:"segment_id,omitempty"`
	AudioStart     float64     `json:"audio_start"`
	AudioEnd       float64     `json:"audio_end"`
	RiskScore      int         `json:"risk_score"`
	Confidence     float64     `json:"confidence"`
}

// Validate ensures the alert has usable data.
func (a *ComplianceAlert) Validate() error {
	if a.SessionID == "" {
		return fmt.Errorf("alert session id is required")
	}
	if a.RuleCode == "" {
		return fmt.Errorf("alert rule code is required")
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("alert %s: unknown severity %q", a.ID, a.Severity)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("alert %s: unknown status %q", a.ID, a.Status)
	}
	return nil
}

// Violation is the result of one rule matching one piece of text.
// Confidence is the rule's static confidence threshold, not a measured match
// quality; a known simplification kept for auditability.
type Violation struct {
	Rule           ComplianceRule `json:"rule"`
	MatchedPattern string         `json:"matched_pattern"`
	MatchedText    string         `json:"matched_text"`
	Confidence     float64        `json:"confidence"`
}

// EvaluationResult is the ordered output of evaluating one text against a
// rule set. RiskScore is the plain sum of the violated rules' risk scores;
// no diminishing returns, no cap, so scoring stays transparent.
type EvaluationResult struct {
	Violations []Violation `json:"violations"`
	RiskScore  int         `json:"risk_score"`
}
