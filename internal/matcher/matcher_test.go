package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
)

func testRule(patterns, excludes []string) model.ComplianceRule {
	return model.ComplianceRule{
		RuleCode:        "TEST-001",
		Patterns:        patterns,
		ExcludePatterns: excludes,
		Category:        model.CategoryPII,
		Severity:        model.SeverityHigh,
		RiskScore:       40,
		IsActive:        true,
	}
}

func TestCompile(t *testing.T) {
	t.Run("compiles all patterns", func(t *testing.T) {
		compiled, err := Compile(testRule([]string{`\bssn\b`, `social security`}, nil))
		require.NoError(t, err)
		assert.Equal(t, 2, compiled.PatternCount())
	})

	t.Run("skips malformed patterns", func(t *testing.T) {
		compiled, err := Compile(testRule([]string{`[unclosed`, `\bssn\b`}, nil))
		require.NoError(t, err)
		assert.Equal(t, 1, compiled.PatternCount())
	})

	t.Run("fails when no pattern compiles", func(t *testing.T) {
		_, err := Compile(testRule([]string{`[unclosed`, `(also bad`}, nil))
		assert.Error(t, err)
	})

	t.Run("malformed exclude does not fail compilation", func(t *testing.T) {
		compiled, err := Compile(testRule([]string{`\bssn\b`}, []string{`[unclosed`}))
		require.NoError(t, err)

		result, ok := compiled.Match("my ssn is hidden")
		require.True(t, ok)
		assert.Equal(t, "ssn", result.MatchedText)
	})
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name        string
		patterns    []string
		excludes    []string
		minLength   int
		text        string
		wantMatch   bool
		wantText    string
		wantPattern string
	}{
		{
			name:        "basic match",
			patterns:    []string{`\bssn\b|\bsocial security\b`},
			text:        "Can you give me your social security number?",
			wantMatch:   true,
			wantText:    "social security",
			wantPattern: `\bssn\b|\bsocial security\b`,
		},
		{
			name:      "case insensitive",
			patterns:  []string{`credit card`},
			text:      "READ ME YOUR CREDIT CARD NUMBER",
			wantMatch: true,
			wantText:  "credit card",
		},
		{
			name:        "first pattern wins",
			patterns:    []string{`refund`, `full refund`},
			text:        "we promise a full refund",
			wantMatch:   true,
			wantText:    "refund",
			wantPattern: `refund`,
		},
		{
			name:      "no match",
			patterns:  []string{`\bssn\b`},
			text:      "what a lovely day",
			wantMatch: false,
		},
		{
			name:      "exclude suppresses the rule",
			patterns:  []string{`guarantee`},
			excludes:  []string{`no guarantee`},
			text:      "there is no guarantee of returns",
			wantMatch: false,
		},
		{
			name:      "exclude elsewhere in text still suppresses",
			patterns:  []string{`guarantee`},
			excludes:  []string{`hypothetically`},
			text:      "hypothetically we guarantee a profit",
			wantMatch: false,
		},
		{
			name:      "below min text length",
			patterns:  []string{`ssn`},
			minLength: 20,
			text:      "ssn please",
			wantMatch: false,
		},
		{
			name:      "at min text length",
			patterns:  []string{`ssn`},
			minLength: 10,
			text:      "ssn please",
			wantMatch: true,
			wantText:  "ssn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule(tt.patterns, tt.excludes)
			rule.MinTextLength = tt.minLength

			compiled, err := Compile(rule)
			require.NoError(t, err)

			result, ok := compiled.Match(tt.text)
			assert.Equal(t, tt.wantMatch, ok)
			if !tt.wantMatch {
				assert.Nil(t, result)
				return
			}

			require.NotNil(t, result)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, result.MatchedText)
			}
			if tt.wantPattern != "" {
				assert.Equal(t, tt.wantPattern, result.MatchedPattern)
			}
		})
	}
}

func TestMatchAtMostOnce(t *testing.T) {
	// Several patterns and several occurrences still yield one result.
	compiled, err := Compile(testRule([]string{`ssn`, `social security`}, nil))
	require.NoError(t, err)

	result, ok := compiled.Match("ssn here, ssn there, social security everywhere")
	require.True(t, ok)
	assert.Equal(t, "ssn", result.MatchedText)
	assert.Equal(t, "ssn", result.MatchedPattern)
}
