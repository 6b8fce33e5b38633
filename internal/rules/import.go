package rules

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/matcher"
	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
	"github.com/callwarden/callwarden/internal/storage"
)

//go:embed schema.json
var ruleSchemaJSON []byte

const ruleSchemaName = "rules.schema.json"

// ruleDefinition mirrors the rule file shape. is_active defaults to true
// when omitted, which plain unmarshalling into the model cannot express.
type ruleDefinition struct {
	IsActive            *bool    `json:"is_active"`
	RuleCode            string   `json:"rule_code"`
	Category            string   `json:"category"`
	Severity            string   `json:"severity"`
	Jurisdiction        string   `json:"jurisdiction"`
	PrimaryAction       string   `json:"primary_action"`
	SecondaryAction     string   `json:"secondary_action"`
	Patterns            []string `json:"patterns"`
	ExcludePatterns     []string `json:"exclude_patterns"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	RiskScore           int      `json:"risk_score"`
	MinTextLength       int      `json:"min_text_length"`
	CooldownSeconds     int      `json:"cooldown_seconds"`
	MaxAlertsPerSession int      `json:"max_alerts_per_session"`
}

// ImportResult summarizes a rule file import.
type ImportResult struct {
	Quarantined []string
	Created     int
	Updated     int
}

// ParseFile validates raw rule-file bytes against the embedded JSON schema
// and decodes them into rules. Schema violations fail the whole file; a
// file that passes the schema may still contain individually quarantinable
// rules (uncompilable patterns), which Import handles per rule.
func ParseFile(data []byte) ([]model.ComplianceRule, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(ruleSchemaName, bytes.NewReader(ruleSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add rule schema: %w", err)
	}
	schema, err := compiler.Compile(ruleSchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRuleFile, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRuleFile, err)
	}

	var definitions []ruleDefinition
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRuleFile, err)
	}

	rules := make([]model.ComplianceRule, 0, len(definitions))
	for _, def := range definitions {
		active := true
		if def.IsActive != nil {
			active = *def.IsActive
		}
		rules = append(rules, model.ComplianceRule{
			RuleCode:            def.RuleCode,
			Version:             1,
			Patterns:            def.Patterns,
			ExcludePatterns:     def.ExcludePatterns,
			MinTextLength:       def.MinTextLength,
			ConfidenceThreshold: def.ConfidenceThreshold,
			Category:            model.Category(def.Category),
			Severity:            model.Severity(def.Severity),
			RiskScore:           def.RiskScore,
			Jurisdiction:        def.Jurisdiction,
			CooldownSeconds:     def.CooldownSeconds,
			MaxAlertsPerSession: def.MaxAlertsPerSession,
			PrimaryAction:       def.PrimaryAction,
			SecondaryAction:     def.SecondaryAction,
			IsActive:            active,
		})
	}
	return rules, nil
}

// Import upserts parsed rules by rule code. Rules whose patterns cannot
// compile are quarantined (reported, skipped) rather than failing the rest
// of the file. Updates bump the stored rule version.
func Import(ctx context.Context, store service.Storage, rules []model.ComplianceRule) (*ImportResult, error) {
	result := &ImportResult{}

	for i := range rules {
		rule := rules[i]

		if _, err := matcher.Compile(rule); err != nil {
			slog.Warn("quarantining rule on import", "rule_code", rule.RuleCode, "error", err)
			result.Quarantined = append(result.Quarantined, rule.RuleCode)
			continue
		}

		_, err := store.GetRuleByCode(ctx, rule.RuleCode)
		switch {
		case errors.Is(err, storage.ErrRuleNotFound):
			if err := store.CreateRule(ctx, &rule); err != nil {
				return result, fmt.Errorf("failed to create rule %s: %w", rule.RuleCode, err)
			}
			result.Created++
		case err != nil:
			return result, fmt.Errorf("failed to look up rule %s: %w", rule.RuleCode, err)
		default:
			if err := store.UpdateRule(ctx, &rule); err != nil {
				return result, fmt.Errorf("failed to update rule %s: %w", rule.RuleCode, err)
			}
			result.Updated++
		}
	}

	return result, nil
}
