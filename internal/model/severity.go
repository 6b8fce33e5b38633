// Package model defines the core data structures for the callwarden engine.
package model

// Severity classifies how serious a compliance violation is.
// Severities are ordered: low < medium < high < critical.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of a severity. Unknown severities rank
// below low so they never win a max comparison.
func (s Severity) Rank() int {
	return severityRanks[s]
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Category is the closed set of violation types a rule can detect.
type Category string

// Violation categories.
const (
	CategoryPII             Category = "pii"
	CategoryPaymentCard     Category = "payment_card"
	CategoryDisclosure      Category = "disclosure"
	CategoryMisleading      Category = "misleading_claim"
	CategoryAbusive         Category = "abusive_language"
	CategoryUnauthorized    Category = "unauthorized_commitment"
	CategoryDoNotCall       Category = "do_not_call"
	CategoryRecordingNotice Category = "recording_notice"
)

var validCategories = map[Category]bool{
	CategoryPII:             true,
	CategoryPaymentCard:     true,
	CategoryDisclosure:      true,
	CategoryMisleading:      true,
	CategoryAbusive:         true,
	CategoryUnauthorized:    true,
	CategoryDoNotCall:       true,
	CategoryRecordingNotice: true,
}

// Valid reports whether the category is a known violation type.
func (c Category) Valid() bool {
	return validCategories[c]
}
