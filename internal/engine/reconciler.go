package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/rules"
	"github.com/callwarden/callwarden/internal/service"
)

// MinUsableDuration is the floor below which a batch transcript is treated
// as unusable and the session is compensating-deleted.
const MinUsableDuration = 0.5

const presignExpiry = 15 * time.Minute

// Reconciler replaces a session's realtime segments with batch-derived ones.
// The underlying store is single-row-atomic only, so the replacement runs as
// an explicitly ordered sequence of idempotent steps; a partial failure
// leaves the session in processing, where it is picked up again by a manual
// or scheduled retry. There is no automatic retry here.
type Reconciler struct {
	storage     service.Storage
	transcriber service.BatchTranscriber
	artifacts   service.ArtifactStore
	loader      *rules.Loader
	minDuration float64
}

// NewReconciler creates a reconciler with the default duration floor.
func NewReconciler(storage service.Storage, transcriber service.BatchTranscriber, artifacts service.ArtifactStore, loader *rules.Loader) *Reconciler {
	return &Reconciler{
		storage:     storage,
		transcriber: transcriber,
		artifacts:   artifacts,
		loader:      loader,
		minDuration: MinUsableDuration,
	}
}

// WithMinDuration overrides the usable-duration floor. Non-positive values
// keep the default.
func (r *Reconciler) WithMinDuration(seconds float64) *Reconciler {
	if seconds > 0 {
		r.minDuration = seconds
	}
	return r
}

// Reconcile re-transcribes the session audio in batch, re-segments by
// contiguous speaker runs, re-runs compliance over the new segments and
// atomically finalizes the session rollups. Callers must ensure no realtime
// work is still in flight for the session; batch and realtime passes never
// interleave.
//
// An empty transcript (no words, or duration under the floor) triggers the
// compensating delete: segments, alerts, session row and audio artifact all
// go away, and the caller gets a user-visible transcription failure.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string) error {
	session, err := r.storage.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if session.Status == model.SessionCompleted {
		slog.Info("session already reconciled", "session_id", sessionID)
		return nil
	}
	if session.Status == model.SessionFlagged {
		return fmt.Errorf("%w: session %s is flagged", common.ErrSessionNotReconcilable, sessionID)
	}

	if session.Status != model.SessionProcessing {
		if err := r.storage.UpdateSessionStatus(ctx, sessionID, model.SessionProcessing); err != nil {
			return fmt.Errorf("failed to move session to processing: %w", err)
		}
	}

	audioURL, err := r.artifacts.PresignGet(ctx, session.OwnerID, sessionID, presignExpiry)
	if err != nil {
		return fmt.Errorf("failed to presign session audio: %w", err)
	}

	transcript, err := r.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("batch transcription failed: %w", err)
	}

	duration := transcript.DurationSeconds()
	if len(transcript.Words) == 0 || duration < r.minDuration {
		slog.Warn("batch transcript unusable, deleting session",
			"session_id", sessionID,
			"words", len(transcript.Words),
			"duration", duration)
		if err := r.compensateDelete(ctx, session); err != nil {
			return err
		}
		return common.NewUserError("transcription failed", common.ErrTranscriptionEmpty)
	}

	// Replace the realtime generation. Alerts go first so no alert ever
	// references a segment that is already gone; both deletes are idempotent
	// and safe to re-run if a later step fails.
	if _, err := r.storage.DeleteAlertsBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: failed to delete realtime alerts: %v", common.ErrReconciliationPartial, err)
	}
	if _, err := r.storage.DeleteSegments(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: failed to delete realtime segments: %v", common.ErrReconciliationPartial, err)
	}

	// Rule edits made since recording are picked up here; the batch pass is
	// its own session scope.
	snapshot := r.loader.Load(ctx)
	materializer := NewMaterializer(r.storage)

	segments := model.SegmentsFromWords(sessionID, transcript.Words)
	rollup := model.SessionRollup{
		TotalSegments:   len(segments),
		DurationSeconds: duration,
	}

	for i := range segments {
		segment := &segments[i]
		rollup.TotalWords += segment.WordCount()
		rollup.TotalChars += segment.CharCount()

		result := Evaluate(segment.Text, snapshot.Rules)
		segment.HasAlert = len(result.Violations) > 0

		var segmentID *int64
		if err := r.storage.SaveSegment(ctx, segment); err != nil {
			slog.Error("failed to save batch segment, skipping",
				"session_id", sessionID,
				"segment_index", segment.SegmentIndex,
				"error", err)
		} else {
			segmentID = &segment.ID
		}

		if len(result.Violations) == 0 {
			continue
		}

		timing := Timing{AudioStart: segment.StartTime, AudioEnd: segment.EndTime}
		alertIDs := materializer.Materialize(ctx, sessionID, segmentID, result.Violations, segment.Text, timing, segment.SpeakerID)

		rollup.TotalAlerts += len(alertIDs)
		rollup.RiskScore += result.RiskScore
		rollup.MaxSeverity = model.MaxSeverity(rollup.MaxSeverity, MaxViolationSeverity(result.Violations))
	}

	// One atomic write: totals, duration, completed status, batch flag.
	if err := r.storage.FinalizeSession(ctx, sessionID, rollup); err != nil {
		return fmt.Errorf("%w: failed to finalize session: %v", common.ErrReconciliationPartial, err)
	}

	slog.Info("reconciled session",
		"session_id", sessionID,
		"segments", rollup.TotalSegments,
		"alerts", rollup.TotalAlerts,
		"duration", duration)
	return nil
}

// compensateDelete tears down a session whose batch transcript was
// unusable. Every step is idempotent, so a partial failure is safe to
// retry; errors are collected rather than short-circuiting so one failed
// step does not strand the rest.
func (r *Reconciler) compensateDelete(ctx context.Context, session *model.Session) error {
	var errs []error

	if _, err := r.storage.DeleteAlertsBySession(ctx, session.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete alerts: %w", err))
	}
	if _, err := r.storage.DeleteSegments(ctx, session.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete segments: %w", err))
	}
	if err := r.storage.DeleteSession(ctx, session.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	if err := r.artifacts.Delete(ctx, session.OwnerID, session.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete audio artifact: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", common.ErrReconciliationPartial, errors.Join(errs...))
	}
	return nil
}
