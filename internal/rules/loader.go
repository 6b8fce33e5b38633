// Package rules loads compliance rules from storage into immutable,
// pre-compiled snapshots for the evaluation engine.
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/callwarden/callwarden/internal/matcher"
	"github.com/callwarden/callwarden/internal/service"
)

// Snapshot is an immutable working set of compiled rules. A snapshot is
// loaded once per recording session and shared read-only across that
// session's evaluations; rule edits made externally are not observed until
// a new session loads a fresh snapshot.
type Snapshot struct {
	LoadedAt time.Time
	Rules    []*matcher.CompiledRule
}

// Empty reports whether the snapshot holds no rules.
func (s *Snapshot) Empty() bool {
	return len(s.Rules) == 0
}

// Loader fetches active rules and compiles them into snapshots.
type Loader struct {
	storage service.Storage
}

// NewLoader creates a rule loader backed by the given storage.
func NewLoader(storage service.Storage) *Loader {
	return &Loader{storage: storage}
}

// Load returns a snapshot of all active rules. A storage failure degrades
// to an empty snapshot rather than an error: callers must treat "no rules"
// as "no violations possible", never as a reason to block recording. Rules
// whose patterns all fail to compile are quarantined here, so match time
// never sees a malformed pattern.
func (l *Loader) Load(ctx context.Context) *Snapshot {
	snapshot := &Snapshot{LoadedAt: time.Now()}

	active, err := l.storage.GetActiveRules(ctx)
	if err != nil {
		slog.Error("rule load failed, evaluating with zero rules", "error", err)
		return snapshot
	}

	for _, rule := range active {
		compiled, err := matcher.Compile(rule)
		if err != nil {
			slog.Warn("quarantined rule", "rule_code", rule.RuleCode, "error", err)
			continue
		}
		snapshot.Rules = append(snapshot.Rules, compiled)
	}

	slog.Info("loaded rule snapshot",
		"active", len(active),
		"compiled", len(snapshot.Rules))
	return snapshot
}
