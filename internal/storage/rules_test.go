package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
)

func newRule(code string) *model.ComplianceRule {
	return &model.ComplianceRule{
		RuleCode:            code,
		Version:             1,
		Patterns:            []string{`\bssn\b`, `social security`},
		ExcludePatterns:     []string{`last four`},
		MinTextLength:       5,
		ConfidenceThreshold: 0.8,
		Category:            model.CategoryPII,
		Severity:            model.SeverityHigh,
		RiskScore:           40,
		Jurisdiction:        "US",
		IsActive:            true,
	}
}

func TestCreateAndGetRule(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rule := newRule("PII-001")
	require.NoError(t, store.CreateRule(ctx, rule))
	assert.NotZero(t, rule.ID)

	got, err := store.GetRuleByCode(ctx, "PII-001")
	require.NoError(t, err)
	assert.Equal(t, rule.RuleCode, got.RuleCode)
	assert.Equal(t, rule.Patterns, got.Patterns)
	assert.Equal(t, rule.ExcludePatterns, got.ExcludePatterns)
	assert.Equal(t, rule.Category, got.Category)
	assert.Equal(t, rule.Severity, got.Severity)
	assert.Equal(t, rule.RiskScore, got.RiskScore)
	assert.Equal(t, rule.Jurisdiction, got.Jurisdiction)
	assert.True(t, got.IsActive)
	assert.Zero(t, got.TriggerCount)
}

func TestCreateRuleValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	tests := []struct {
		mutate func(*model.ComplianceRule)
		name   string
	}{
		{name: "missing rule code", mutate: func(r *model.ComplianceRule) { r.RuleCode = "" }},
		{name: "no patterns", mutate: func(r *model.ComplianceRule) { r.Patterns = nil }},
		{name: "bad category", mutate: func(r *model.ComplianceRule) { r.Category = "bogus" }},
		{name: "bad severity", mutate: func(r *model.ComplianceRule) { r.Severity = "bogus" }},
		{name: "negative risk score", mutate: func(r *model.ComplianceRule) { r.RiskScore = -1 }},
		{name: "confidence out of range", mutate: func(r *model.ComplianceRule) { r.ConfidenceThreshold = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := newRule("BAD-001")
			tt.mutate(rule)
			assert.ErrorIs(t, store.CreateRule(ctx, rule), ErrInvalidRule)
		})
	}
}

func TestCreateRuleDuplicateCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.CreateRule(ctx, newRule("PII-001")))
	assert.Error(t, store.CreateRule(ctx, newRule("PII-001")))
}

func TestGetRuleByCodeNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetRuleByCode(context.Background(), "MISSING-001")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestUpdateRuleBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rule := newRule("PII-001")
	require.NoError(t, store.CreateRule(ctx, rule))

	rule.RiskScore = 60
	rule.Severity = model.SeverityCritical
	require.NoError(t, store.UpdateRule(ctx, rule))

	got, err := store.GetRuleByCode(ctx, "PII-001")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 60, got.RiskScore)
	assert.Equal(t, model.SeverityCritical, got.Severity)
}

func TestUpdateRuleNotFound(t *testing.T) {
	store := newTestStorage(t)
	assert.ErrorIs(t, store.UpdateRule(context.Background(), newRule("MISSING-001")), ErrRuleNotFound)
}

func TestGetActiveRules(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.CreateRule(ctx, newRule("PII-002")))
	require.NoError(t, store.CreateRule(ctx, newRule("PII-001")))

	inactive := newRule("PII-003")
	inactive.IsActive = false
	require.NoError(t, store.CreateRule(ctx, inactive))

	active, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Ordered by rule code for a deterministic evaluation order.
	assert.Equal(t, "PII-001", active[0].RuleCode)
	assert.Equal(t, "PII-002", active[1].RuleCode)

	all, err := store.ListRules(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetRuleActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.CreateRule(ctx, newRule("PII-001")))
	require.NoError(t, store.SetRuleActive(ctx, "PII-001", false))

	active, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, store.SetRuleActive(ctx, "MISSING-001", false), ErrRuleNotFound)
}

func TestDeleteRule(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.CreateRule(ctx, newRule("PII-001")))
	require.NoError(t, store.DeleteRule(ctx, "PII-001"))

	_, err := store.GetRuleByCode(ctx, "PII-001")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	assert.ErrorIs(t, store.DeleteRule(ctx, "PII-001"), ErrRuleNotFound)
}

func TestIncrementRuleTriggerCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.CreateRule(ctx, newRule("PII-001")))
	require.NoError(t, store.IncrementRuleTriggerCount(ctx, "PII-001"))
	require.NoError(t, store.IncrementRuleTriggerCount(ctx, "PII-001"))

	got, err := store.GetRuleByCode(ctx, "PII-001")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TriggerCount)

	// Trigger counts are out-of-band; they never touch the rule version.
	assert.Equal(t, 1, got.Version)
}
