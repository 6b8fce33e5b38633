// Package matcher evaluates text against one compliance rule's pattern set.
package matcher

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/model"
)

// MatchResult is the outcome of one rule matching one piece of text.
type MatchResult struct {
	MatchedText    string
	MatchedPattern string
}

type compiledPattern struct {
	re     *regexp.Regexp
	source string
}

// CompiledRule is a ComplianceRule with its patterns compiled once up front.
// Rules are admin-authored and may be malformed: patterns that fail to
// compile are dropped here, logged once, and never retried at match time.
// Matching is pure CPU work with no I/O.
type CompiledRule struct {
	Rule     model.ComplianceRule
	patterns []compiledPattern
	excludes []*regexp.Regexp
}

// Compile builds a CompiledRule, skipping malformed patterns with a logged
// warning. It returns an error only when no pattern compiles at all, since
// such a rule can never match anything.
//
// Go's regexp engine is RE2: matching is guaranteed linear in the input, so
// a hostile pattern cannot hang an evaluation and no per-match timeout is
// needed.
func Compile(rule model.ComplianceRule) (*CompiledRule, error) {
	compiled := &CompiledRule{Rule: rule}

	for _, pattern := range rule.Patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			slog.Warn("skipping malformed rule pattern",
				"rule_code", rule.RuleCode,
				"pattern", pattern,
				"error", err)
			continue
		}
		compiled.patterns = append(compiled.patterns, compiledPattern{re: re, source: pattern})
	}

	if len(compiled.patterns) == 0 {
		return nil, fmt.Errorf("%w: rule %s has no usable pattern", common.ErrPatternCompile, rule.RuleCode)
	}

	for _, pattern := range rule.ExcludePatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			slog.Warn("skipping malformed exclude pattern",
				"rule_code", rule.RuleCode,
				"pattern", pattern,
				"error", err)
			continue
		}
		compiled.excludes = append(compiled.excludes, re)
	}

	return compiled, nil
}

// Match evaluates text against the rule. First-match-wins: the rule
// contributes at most one result per text even when several patterns match.
// Exclude patterns are rule-wide; any exclude matching the text suppresses
// the rule entirely for this call.
func (c *CompiledRule) Match(text string) (*MatchResult, bool) {
	lowered := strings.ToLower(text)

	if len(lowered) < c.Rule.MinTextLength {
		return nil, false
	}

	for _, pattern := range c.patterns {
		matched := pattern.re.FindString(lowered)
		if matched == "" {
			continue
		}

		for _, exclude := range c.excludes {
			if exclude.MatchString(lowered) {
				return nil, false
			}
		}

		return &MatchResult{
			MatchedText:    matched,
			MatchedPattern: pattern.source,
		}, true
	}

	return nil, false
}

// PatternCount reports how many patterns survived compilation.
func (c *CompiledRule) PatternCount() int {
	return len(c.patterns)
}
