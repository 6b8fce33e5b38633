package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
)

func newSegment(sessionID string, index int, source model.SegmentSource) *model.TranscriptSegment {
	return &model.TranscriptSegment{
		SessionID:    sessionID,
		SegmentIndex: index,
		Text:         "hello there",
		StartTime:    float64(index),
		EndTime:      float64(index) + 0.9,
		Words: []model.Word{
			{Text: "hello", SpeakerID: "caller", Start: float64(index), End: float64(index) + 0.4},
			{Text: "there", SpeakerID: "caller", Start: float64(index) + 0.5, End: float64(index) + 0.9},
		},
		SpeakerID: "caller",
		Source:    source,
	}
}

func TestSaveAndGetSegments(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.CreateSession(ctx, newSession("session-1")))

	// Saved out of order; read back in index order.
	second := newSegment("session-1", 1, model.SourceRealtime)
	require.NoError(t, store.SaveSegment(ctx, second))
	assert.NotZero(t, second.ID)

	first := newSegment("session-1", 0, model.SourceRealtime)
	require.NoError(t, store.SaveSegment(ctx, first))

	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 0, segments[0].SegmentIndex)
	assert.Equal(t, 1, segments[1].SegmentIndex)
	assert.Equal(t, "caller", segments[0].SpeakerID)
	assert.Len(t, segments[0].Words, 2)
	assert.Equal(t, model.SourceRealtime, segments[0].Source)
	assert.False(t, segments[0].HasAlert)
}

func TestSaveSegmentValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	segment := newSegment("", 0, model.SourceRealtime)
	assert.ErrorIs(t, store.SaveSegment(ctx, segment), ErrInvalidSegment)

	segment = newSegment("session-1", 0, "bogus")
	assert.ErrorIs(t, store.SaveSegment(ctx, segment), ErrInvalidSegment)

	segment = newSegment("session-1", 0, model.SourceRealtime)
	segment.EndTime = segment.StartTime - 1
	assert.ErrorIs(t, store.SaveSegment(ctx, segment), ErrInvalidSegment)
}

func TestSaveSegmentDuplicateIndexSameSource(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.CreateSession(ctx, newSession("session-1")))

	require.NoError(t, store.SaveSegment(ctx, newSegment("session-1", 0, model.SourceRealtime)))

	// Same (session, index, source) violates the uniqueness constraint.
	assert.Error(t, store.SaveSegment(ctx, newSegment("session-1", 0, model.SourceRealtime)))

	// The batch generation may reuse the index.
	assert.NoError(t, store.SaveSegment(ctx, newSegment("session-1", 0, model.SourceBatch)))
}

func TestDeleteSegments(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.CreateSession(ctx, newSession("session-1")))

	require.NoError(t, store.SaveSegment(ctx, newSegment("session-1", 0, model.SourceRealtime)))
	require.NoError(t, store.SaveSegment(ctx, newSegment("session-1", 1, model.SourceRealtime)))

	count, err := store.DeleteSegments(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	assert.Empty(t, segments)

	// Idempotent.
	count, err = store.DeleteSegments(ctx, "session-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkSegmentAlerted(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.CreateSession(ctx, newSession("session-1")))

	segment := newSegment("session-1", 0, model.SourceRealtime)
	require.NoError(t, store.SaveSegment(ctx, segment))

	require.NoError(t, store.MarkSegmentAlerted(ctx, segment.ID, []string{"alert-1"}))
	require.NoError(t, store.MarkSegmentAlerted(ctx, segment.ID, []string{"alert-2", "alert-3"}))

	segments, err := store.GetSegments(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.True(t, segments[0].HasAlert)
	assert.Equal(t, []string{"alert-1", "alert-2", "alert-3"}, segments[0].AlertIDs)

	assert.ErrorIs(t, store.MarkSegmentAlerted(ctx, 9999, []string{"alert-4"}), ErrSegmentNotFound)

	// Empty id list is a no-op.
	assert.NoError(t, store.MarkSegmentAlerted(ctx, segment.ID, nil))
}
