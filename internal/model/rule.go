package model

import (
	"fmt"
	"time"
)

// ComplianceRule is a named, versioned detection policy. Rules are authored
// through an external admin surface and loaded read-only into the engine;
// the engine never mutates a rule (trigger counters are updated out-of-band).
type ComplianceRule struct {
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	RuleCode            string    `json:"rule_code"`
	Category            Category  `json:"category"`
	Severity            Severity  `json:"severity"`
	Jurisdiction        string    `json:"jurisdiction,omitempty"`
	PrimaryAction       string    `json:"primary_action,omitempty"`
	SecondaryAction     string    `json:"secondary_action,omitempty"`
	Patterns            []string  `json:"patterns"`
	ExcludePatterns     []string  `json:"exclude_patterns,omitempty"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	ID                  int64     `json:"id"`
	Version             int       `json:"version"`
	MinTextLength       int       `json:"min_text_length"`
	RiskScore           int       `json:"risk_score"`
	CooldownSeconds     int       `json:"cooldown_seconds"`
	MaxAlertsPerSession int       `json:"max_alerts_per_session"`
	TriggerCount        int       `json:"trigger_count"`
	IsActive            bool      `json:"is_active"`
}

// Validate ensures the rule has usable data before it is stored or loaded.
func (r *ComplianceRule) Validate() error {
	if r.RuleCode == "" {
		return fmt.Errorf("rule code is required")
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %s: at least one pattern is required", r.RuleCode)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("rule %s: unknown category %q", r.RuleCode, r.Category)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: unknown severity %q", r.RuleCode, r.Severity)
	}
	if r.RiskScore < 0 {
		return fmt.Errorf("rule %s: risk score must be non-negative", r.RuleCode)
	}
	if r.MinTextLength < 0 {
		return fmt.Errorf("rule %s: min text length must be non-negative", r.RuleCode)
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("rule %s: confidence threshold must be between 0 and 1", r.RuleCode)
	}
	return nil
}
