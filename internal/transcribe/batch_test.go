package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
)

func newTestClient(endpoint string) *BatchClient {
	return NewBatchClient(BatchConfig{
		Endpoint:     endpoint,
		APIKey:       "test-key",
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	})
}

func TestBatchTranscribe(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "https://audio.example/session-1", body["audio_url"])

			_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "queued"})
		case http.MethodGet:
			assert.Equal(t, "/job-1", r.URL.Path)
			polls++
			if polls < 2 {
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":       "job-1",
				"status":   "completed",
				"language": "en",
				"words": []map[string]any{
					{"text": "hello", "type": "word", "speaker_id": "agent", "start": 0.0, "end": 0.4},
					{"text": " ", "type": "spacing", "start": 0.4, "end": 0.5},
					{"text": "there", "type": "word", "speaker_id": "agent", "start": 0.5, "end": 0.9},
				},
			})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	transcript, err := client.Transcribe(context.Background(), "https://audio.example/session-1")
	require.NoError(t, err)

	assert.Equal(t, "en", transcript.Language)
	require.Len(t, transcript.Words, 2)
	assert.Equal(t, "hello", transcript.Words[0].Text)
	assert.Equal(t, "there", transcript.Words[1].Text)
	assert.Equal(t, "agent", transcript.Words[0].SpeakerID)
	assert.InDelta(t, 0.9, transcript.DurationSeconds(), 0.001)
	assert.Equal(t, 2, polls)
}

func TestBatchTranscribeImmediateCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"status": "completed",
			"words": []map[string]any{
				{"text": "hi", "speaker_id": "caller", "start": 0.0, "end": 0.3},
			},
		})
	}))
	defer server.Close()

	transcript, err := newTestClient(server.URL).Transcribe(context.Background(), "https://audio.example/s")
	require.NoError(t, err)
	assert.Len(t, transcript.Words, 1)
}

func TestBatchTranscribeJobFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"status": "error",
			"error":  "audio format not supported",
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), "https://audio.example/s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio format not supported")
}

func TestBatchTranscribeRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"status": "completed",
			"words": []map[string]any{
				{"text": "hi", "speaker_id": "caller", "start": 0.0, "end": 0.6},
			},
		})
	}))
	defer server.Close()

	transcript, err := newTestClient(server.URL).Transcribe(context.Background(), "https://audio.example/s")
	require.NoError(t, err)
	assert.Len(t, transcript.Words, 1)
	assert.Equal(t, 2, attempts)
}

func TestBatchTranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), "https://audio.example/s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBatchTranscribeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Never completes; the caller has to give up.
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "processing"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Transcribe(ctx, "https://audio.example/s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSegmentAccessors(t *testing.T) {
	draft := Segment{ID: "a", Index: 0, Text: "hello there"}
	assert.False(t, draft.Timed())
	assert.Zero(t, draft.Start())
	assert.Empty(t, draft.SpeakerID())

	timed := Segment{
		ID:    "a",
		Index: 0,
		Text:  "hello there",
		Words: []model.Word{
			{Text: "hello", SpeakerID: "caller", Start: 1.0, End: 1.4},
			{Text: "there", SpeakerID: "caller", Start: 1.5, End: 1.9},
		},
	}
	assert.True(t, timed.Timed())
	assert.InDelta(t, 1.0, timed.Start(), 0.001)
	assert.InDelta(t, 1.9, timed.End(), 0.001)
	assert.Equal(t, "caller", timed.SpeakerID())
}
