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

// ErrRuleNotFound is returned when a rule is not found.
var ErrRuleNotFound = errors.New("rule not found")

const ruleColumns = `id, rule_code, version, patterns, exclude_patterns, min_text_length,
	confidence_threshold, category, severity, risk_score, jurisdiction,
	cooldown_seconds, max_alerts_per_session, primary_action, secondary_action,
	trigger_count, is_active, created_at, updated_at`

// CreateRule creates a new compliance rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.ComplianceRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	patternsJSON, excludeJSON, err := marshalPatterns(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rules (
			rule_code, version, patterns, exclude_patterns, min_text_length,
			confidence_threshold, category, severity, risk_score, jurisdiction,
			cooldown_seconds, max_alerts_per_session, primary_action,
			secondary_action, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rule.RuleCode, rule.Version, patternsJSON, excludeJSON, rule.MinTextLength,
		rule.ConfidenceThreshold, rule.Category, rule.Severity, rule.RiskScore,
		rule.Jurisdiction, rule.CooldownSeconds, rule.MaxAlertsPerSession,
		rule.PrimaryAction, rule.SecondaryAction, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rule.ID = id
	slog.Info("created rule", "id", id, "rule_code", rule.RuleCode)
	return nil
}

// GetRuleByCode retrieves a rule by its stable code.
func (s *SQLiteStorage) GetRuleByCode(ctx context.Context, ruleCode string) (*model.ComplianceRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleCode, "ruleCode"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE rule_code = ?`
	rule, err := scanRule(s.db.QueryRowContext(ctx, query, ruleCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	return rule, nil
}

// GetActiveRules returns all active rules ordered by rule code.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.ComplianceRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE is_active = 1 ORDER BY rule_code`)
}

// ListRules returns all rules, optionally including inactive ones.
func (s *SQLiteStorage) ListRules(ctx context.Context, includeInactive bool) ([]model.ComplianceRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if includeInactive {
		return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY rule_code`)
	}
	return s.GetActiveRules(ctx)
}

// UpdateRule replaces a rule's definition, bumping its version.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.ComplianceRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	patternsJSON, excludeJSON, err := marshalPatterns(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE rules SET
			version = version + 1, patterns = ?, exclude_patterns = ?,
			min_text_length = ?, confidence_threshold = ?, category = ?,
			severity = ?, risk_score = ?, jurisdiction = ?, cooldown_seconds = ?,
			max_alerts_per_session = ?, primary_action = ?, secondary_action = ?,
			is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE rule_code = ?`

	result, err := s.db.ExecContext(ctx, query,
		patternsJSON, excludeJSON, rule.MinTextLength, rule.ConfidenceThreshold,
		rule.Category, rule.Severity, rule.RiskScore, rule.Jurisdiction,
		rule.CooldownSeconds, rule.MaxAlertsPerSession, rule.PrimaryAction,
		rule.SecondaryAction, rule.IsActive, rule.RuleCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}

	slog.Info("updated rule", "rule_code", rule.RuleCode)
	return nil
}

// SetRuleActive toggles a rule's active flag.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, ruleCode string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleCode, "ruleCode"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE rules SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE rule_code = ?`,
		active, ruleCode)
	if err != nil {
		return fmt.Errorf("failed to set rule active: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}

	slog.Info("set rule active", "rule_code", ruleCode, "active", active)
	return nil
}

// DeleteRule removes a rule entirely. Existing alerts keep their frozen
// copies of the rule's severity and category.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, ruleCode string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleCode, "ruleCode"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE rule_code = ?`, ruleCode)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}

	slog.Info("deleted rule", "rule_code", ruleCode)
	return nil
}

// IncrementRuleTriggerCount bumps the out-of-band trigger counter for a rule.
func (s *SQLiteStorage) IncrementRuleTriggerCount(ctx context.Context, ruleCode string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleCode, "ruleCode"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE rules SET trigger_count = trigger_count + 1 WHERE rule_code = ?`, ruleCode)
	if err != nil {
		return fmt.Errorf("failed to increment trigger count: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.ComplianceRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var rules []model.ComplianceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*model.ComplianceRule, error) {
	rule := &model.ComplianceRule{}
	var patternsJSON string
	var excludeJSON, jurisdiction, primaryAction, secondaryAction sql.NullString

	if err := row.Scan(
		&rule.ID, &rule.RuleCode, &rule.Version, &patternsJSON, &excludeJSON,
		&rule.MinTextLength, &rule.ConfidenceThreshold, &rule.Category,
		&rule.Severity, &rule.RiskScore, &jurisdiction, &rule.CooldownSeconds,
		&rule.MaxAlertsPerSession, &primaryAction, &secondaryAction,
		&rule.TriggerCount, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(patternsJSON), &rule.Patterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patterns: %w", err)
	}
	if excludeJSON.Valid && excludeJSON.String != "" {
		if err := json.Unmarshal([]byte(excludeJSON.String), &rule.ExcludePatterns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exclude patterns: %w", err)
		}
	}
	rule.Jurisdiction = jurisdiction.String
	rule.PrimaryAction = primaryAction.String
	rule.SecondaryAction = secondaryAction.String
	return rule, nil
}

func marshalPatterns(rule *model.ComplianceRule) (patterns string, excludes *string, err error) {
	data, err := json.Marshal(rule.Patterns)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal patterns: %w", err)
	}
	patterns = string(data)

	if len(rule.ExcludePatterns) > 0 {
		data, err := json.Marshal(rule.ExcludePatterns)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal exclude patterns: %w", err)
		}
		str := string(data)
		excludes = &str
	}
	return patterns, excludes, nil
}
