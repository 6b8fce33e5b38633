// Package engine implements the core compliance evaluation pipeline:
// evaluating transcript text against rule snapshots, materializing alerts,
// ordering realtime segment ingestion and reconciling sessions against
// batch transcripts.
package engine

import (
	"github.com/callwarden/callwarden/internal/matcher"
	"github.com/callwarden/callwarden/internal/model"
)

// Evaluate runs every rule against the text and returns the violations in
// rule iteration order with their additive risk score.
//
// Evaluate is a pure function: no I/O, no side effects, same result for the
// same (text, rules) pair. Rules are evaluated independently; output order
// preserves the order rules were provided in, never re-sorted by severity.
// Each rule contributes at most one violation (first-match-wins inside the
// rule's pattern list).
func Evaluate(text string, rules []*matcher.CompiledRule) model.EvaluationResult {
	var result model.EvaluationResult

	for _, rule := range rules {
		match, ok := rule.Match(text)
		if !ok {
			continue
		}

		result.Violations = append(result.Violations, model.Violation{
			Rule:           rule.Rule,
			MatchedPattern: match.MatchedPattern,
			MatchedText:    match.MatchedText,
			Confidence:     rule.Rule.ConfidenceThreshold,
		})
		result.RiskScore += rule.Rule.RiskScore
	}

	return result
}

// MaxViolationSeverity returns the highest severity among the violations,
// or the empty severity when there are none.
func MaxViolationSeverity(violations []model.Violation) model.Severity {
	var max model.Severity
	for _, v := range violations {
		max = model.MaxSeverity(max, v.Rule.Severity)
	}
	return max
}
