package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/rules"
	"github.com/callwarden/callwarden/internal/service"
	"github.com/callwarden/callwarden/internal/transcribe"
)

// Processor drives one session's realtime evaluation pipeline. Segments are
// evaluated strictly in segment_index order: out-of-order arrivals are
// buffered until the gap fills, since downstream timing offsets depend on
// the first segment establishing the time base. Draft (un-timed) payloads
// are dropped; already-seen payload ids are dropped too, which keeps
// at-most-one-evaluation-per-segment a Processor concern and the Evaluator
// pure.
//
// One Processor serves one session. The rule snapshot is fixed for the
// Processor's lifetime; rule edits made externally are not observed until a
// new session starts.
type Processor struct {
	storage      service.Storage
	materializer *Materializer
	snapshot     *rules.Snapshot
	pending      map[int]transcribe.Segment
	seen         map[string]bool
	sessionID    string
	nextIndex    int
	mu           sync.Mutex
	saved        bool
}

// NewProcessor creates a realtime processor for one session.
func NewProcessor(storage service.Storage, snapshot *rules.Snapshot, sessionID string) *Processor {
	return &Processor{
		storage:      storage,
		materializer: NewMaterializer(storage),
		snapshot:     snapshot,
		sessionID:    sessionID,
		pending:      make(map[int]transcribe.Segment),
		seen:         make(map[string]bool),
	}
}

// Ingest accepts one realtime payload. Timed segments are evaluated and
// persisted as soon as their turn in the index order comes up; a
// persistence failure for one segment is logged and does not abort the
// others.
func (p *Processor) Ingest(ctx context.Context, segment transcribe.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.saved {
		return fmt.Errorf("session %s: recording already saved", p.sessionID)
	}

	if !segment.Timed() {
		// Draft phase of the two-phase delivery; the timed version follows.
		return nil
	}

	if segment.ID != "" && p.seen[segment.ID] {
		return nil
	}
	if segment.Index < p.nextIndex {
		slog.Warn("rejecting stale segment",
			"session_id", p.sessionID,
			"segment_index", segment.Index,
			"next_index", p.nextIndex)
		return nil
	}

	if segment.ID != "" {
		p.seen[segment.ID] = true
	}
	p.pending[segment.Index] = segment
	p.drain(ctx)
	return nil
}

// Save flushes any still-buffered segments in index order and moves the
// session to processing. After Save the processor accepts no more input;
// batch reconciliation owns the session from here.
func (p *Processor) Save(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.saved {
		return nil
	}
	p.saved = true

	// Gaps never filled; release what we have, still in index order.
	p.flushLocked(ctx)

	if err := p.storage.UpdateSessionStatus(ctx, p.sessionID, model.SessionProcessing); err != nil {
		return fmt.Errorf("failed to move session to processing: %w", err)
	}
	return nil
}

// PendingCount reports how many out-of-order segments are buffered.
func (p *Processor) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// drain processes contiguously-indexed segments starting at nextIndex.
func (p *Processor) drain(ctx context.Context) {
	for {
		segment, ok := p.pending[p.nextIndex]
		if !ok {
			return
		}
		delete(p.pending, p.nextIndex)
		p.nextIndex++
		p.process(ctx, segment)
	}
}

// flushLocked releases every buffered segment in index order regardless of
// gaps. Used at save time.
func (p *Processor) flushLocked(ctx context.Context) {
	for len(p.pending) > 0 {
		min := -1
		for index := range p.pending {
			if min < 0 || index < min {
				min = index
			}
		}
		segment := p.pending[min]
		delete(p.pending, min)
		p.nextIndex = min + 1
		p.process(ctx, segment)
	}
}

func (p *Processor) process(ctx context.Context, segment transcribe.Segment) {
	record := &model.TranscriptSegment{
		SessionID:    p.sessionID,
		SegmentIndex: segment.Index,
		Text:         segment.Text,
		StartTime:    segment.Start(),
		EndTime:      segment.End(),
		Words:        segment.Words,
		SpeakerID:    segment.SpeakerID(),
		Source:       model.SourceRealtime,
	}

	result := Evaluate(segment.Text, p.snapshot.Rules)
	record.HasAlert = len(result.Violations) > 0

	var segmentID *int64
	if err := p.storage.SaveSegment(ctx, record); err != nil {
		// Alerts can still be persisted with a null segment link.
		slog.Error("failed to save realtime segment",
			"session_id", p.sessionID,
			"segment_index", segment.Index,
			"error", err)
	} else {
		segmentID = &record.ID
		if err := p.storage.ApplySegmentRollup(ctx, p.sessionID, 1, record.WordCount(), record.CharCount()); err != nil {
			slog.Error("failed to apply segment rollup",
				"session_id", p.sessionID,
				"error", err)
		}
	}

	if len(result.Violations) > 0 {
		timing := Timing{AudioStart: record.StartTime, AudioEnd: record.EndTime}
		p.materializer.Materialize(ctx, p.sessionID, segmentID, result.Violations, record.Text, timing, record.SpeakerID)
	}
}
