package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/rules"
	"github.com/callwarden/callwarden/internal/service"
	"github.com/callwarden/callwarden/internal/storage"
)

// seedRealtimeGeneration puts one realtime segment with an alert on the
// session, as a recording pass would have left it.
func seedRealtimeGeneration(t *testing.T, store *storage.SQLiteStorage, sessionID string) {
	t.Helper()
	ctx := context.Background()

	segment := &model.TranscriptSegment{
		SessionID: sessionID,
		Text:      "realtime draft of the call",
		Source:    model.SourceRealtime,
	}
	require.NoError(t, store.SaveSegment(ctx, segment))
	require.NoError(t, store.ApplySegmentRollup(ctx, sessionID, 1, 5, len(segment.Text)))

	materializer := NewMaterializer(store)
	ids := materializer.Materialize(ctx, sessionID, &segment.ID,
		[]model.Violation{violationFor(cardRule(), "credit card")}, segment.Text, Timing{}, "agent")
	require.Len(t, ids, 1)
}

type phrase struct {
	speaker string
	text    string
}

func transcriptWords(phrases ...phrase) []model.Word {
	var words []model.Word
	offset := 0.0
	for _, phrase := range phrases {
		for _, token := range strings.Fields(phrase.text) {
			words = append(words, model.Word{
				Text:      token,
				SpeakerID: phrase.speaker,
				Start:     offset,
				End:       offset + 0.4,
			})
			offset += 0.5
		}
	}
	return words
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionProcessing)
	createTestRule(t, store, piiRule())
	seedRealtimeGeneration(t, store, "session-1")

	artifacts := NewMockArtifactStore()
	_, err := artifacts.Put(ctx, "owner-1", "session-1", strings.NewReader("audio"), "audio/webm")
	require.NoError(t, err)

	transcriber := &MockTranscriber{
		Transcript: service.BatchTranscript{
			Language: "en",
			Words: transcriptWords(
				phrase{speaker: "agent", text: "thanks for calling today"},
				phrase{speaker: "caller", text: "here is my ssn number"},
				phrase{speaker: "agent", text: "you should not share that"},
			),
		},
	}

	reconciler := NewReconciler(store, transcriber, artifacts, rules.NewLoader(store))
	require.NoError(t, reconciler.Reconcile(ctx, "session-1"))

	// The realtime generation is gone; only batch segments remain.
	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, segments, 3)
	for _, segment := range segments {
		assert.Equal(t, model.SourceBatch, segment.Source)
	}
	assert.Equal(t, "caller", segments[1].SpeakerID)
	assert.True(t, segments[1].HasAlert)

	// The realtime card alert was replaced by the batch pii alert.
	alerts, err := store.ListAlerts(ctx, service.AlertFilter{SessionID: "session-1"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "PII-001", alerts[0].RuleCode)

	session, err := store.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.True(t, session.BatchProcessed)
	assert.Equal(t, 3, session.TotalSegments)
	assert.Equal(t, 14, session.TotalWords)
	assert.Equal(t, 1, session.TotalAlerts)
	assert.Equal(t, 40, session.RiskScore)
	// Reconciliation recomputes severity from batch segments; the realtime
	// critical no longer exists, so the rollup may drop.
	assert.Equal(t, model.SeverityHigh, session.MaxSeverity)
	assert.InDelta(t, transcriber.Transcript.Words[13].End, session.DurationSeconds, 0.001)

	assert.True(t, artifacts.Exists("owner-1", "session-1"))
	assert.Equal(t, 1, transcriber.Calls)
}

func TestReconcileEmptyTranscript(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionProcessing)
	createTestRule(t, store, piiRule())
	seedRealtimeGeneration(t, store, "session-1")

	artifacts := NewMockArtifactStore()
	_, err := artifacts.Put(ctx, "owner-1", "session-1", strings.NewReader("audio"), "audio/webm")
	require.NoError(t, err)

	transcriber := &MockTranscriber{Transcript: service.BatchTranscript{}}
	reconciler := NewReconciler(store, transcriber, artifacts, rules.NewLoader(store))

	err = reconciler.Reconcile(ctx, "session-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTranscriptionEmpty))

	var userErr *common.UserError
	assert.True(t, errors.As(err, &userErr))

	// Compensating delete: session, segments, alerts and audio all gone.
	_, err = store.GetSession(ctx, "session-1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	assert.Empty(t, segments)

	alerts, err := store.ListAlerts(ctx, service.AlertFilter{SessionID: "session-1"})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	assert.False(t, artifacts.Exists("owner-1", "session-1"))
}

func TestReconcileTooShortTranscript(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionProcessing)

	transcriber := &MockTranscriber{
		Transcript: service.BatchTranscript{
			Words: []model.Word{{Text: "uh", SpeakerID: "caller", Start: 0, End: 0.3}},
		},
	}
	reconciler := NewReconciler(store, transcriber, NewMockArtifactStore(), rules.NewLoader(store))

	err := reconciler.Reconcile(ctx, "session-1")
	assert.ErrorIs(t, err, common.ErrTranscriptionEmpty)

	_, err = store.GetSession(ctx, "session-1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestReconcileCompletedSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionCompleted)

	transcriber := &MockTranscriber{}
	reconciler := NewReconciler(store, transcriber, NewMockArtifactStore(), rules.NewLoader(store))

	require.NoError(t, reconciler.Reconcile(ctx, "session-1"))
	assert.Zero(t, transcriber.Calls)
}

func TestReconcileFlaggedSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionFlagged)

	reconciler := NewReconciler(store, &MockTranscriber{}, NewMockArtifactStore(), rules.NewLoader(store))

	err := reconciler.Reconcile(ctx, "session-1")
	assert.ErrorIs(t, err, common.ErrSessionNotReconcilable)
}

func TestReconcileTranscriberFailureLeavesSessionProcessing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createTestSession(t, store, "session-1", "owner-1", model.SessionProcessing)
	seedRealtimeGeneration(t, store, "session-1")

	transcriber := &MockTranscriber{Err: errors.New("stt unavailable")}
	reconciler := NewReconciler(store, transcriber, NewMockArtifactStore(), rules.NewLoader(store))

	err := reconciler.Reconcile(ctx, "session-1")
	require.Error(t, err)

	// Nothing was torn down; the session stays eligible for a retry.
	session, err := store.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionProcessing, session.Status)

	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}
