// Package transcribe defines the payloads delivered by transcription
// collaborators and a client for the batch re-transcription API.
package transcribe

import (
	"time"

	"github.com/callwarden/callwarden/internal/model"
)

// Segment is one realtime transcription payload. The streaming source
// delivers each logical utterance twice: first text-only (a draft), then
// again with word-level timing. Only the timed delivery is evaluated and
// persisted; drafts are ignored.
type Segment struct {
	Timestamp  time.Time    `json:"timestamp"`
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Language   string       `json:"language,omitempty"`
	Words      []model.Word `json:"words,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Index      int          `json:"index"`
}

// Timed reports whether the payload carries word-level timing, i.e. whether
// it has reached the evaluable phase of its two-state lifecycle.
func (s Segment) Timed() bool {
	return len(s.Words) > 0
}

// Start returns the first word's start offset in seconds.
func (s Segment) Start() float64 {
	if len(s.Words) == 0 {
		return 0
	}
	return s.Words[0].Start
}

// End returns the last word's end offset in seconds.
func (s Segment) End() float64 {
	if len(s.Words) == 0 {
		return 0
	}
	return s.Words[len(s.Words)-1].End
}

// SpeakerID returns the speaker of the first word; realtime utterances
// carry a single speaker.
func (s Segment) SpeakerID() string {
	if len(s.Words) == 0 {
		return ""
	}
	return s.Words[0].SpeakerID
}
