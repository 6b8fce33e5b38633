package model

import (
	"fmt"
	"strings"
	"time"
)

// SegmentSource distinguishes the two generations a segment can belong to.
// Within one session exactly one generation is authoritative at a time:
// realtime segments exist alone until a successful batch reconciliation
// replaces them all with batch segments in one logical operation.
type SegmentSource string

// Segment sources.
const (
	SourceRealtime SegmentSource = "realtime"
	SourceBatch    SegmentSource = "batch"
)

// Word is one spoken word with timing, relative to session start.
type Word struct {
	Text      string  `json:"text"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// TranscriptSegment is one unit of spoken text with word-level timing.
type TranscriptSegment struct {
	CreatedAt    time.Time     `json:"created_at"`
	SessionID    string        `json:"session_id"`
	Text         string        `json:"text"`
	SpeakerID    string        `json:"speaker_id,omitempty"`
	Source       SegmentSource `json:"source"`
	Words        []Word        `json:"words"`
	AlertIDs     []string      `json:"alert_ids,omitempty"`
	StartTime    float64       `json:"start_time"`
	EndTime      float64       `json:"end_time"`
	ID           int64         `json:"id"`
	SegmentIndex int           `json:"segment_index"`
	HasAlert     bool          `json:"has_alert"`
}

// WordCount returns the number of timed words in the segment.
func (t *TranscriptSegment) WordCount() int {
	return len(t.Words)
}

// CharCount returns the length of the segment text.
func (t *TranscriptSegment) CharCount() int {
	return len(t.Text)
}

// Validate ensures the segment has usable data.
func (t *TranscriptSegment) Validate() error {
	if t.SessionID == "" {
		return fmt.Errorf("segment session id is required")
	}
	if t.SegmentIndex < 0 {
		return fmt.Errorf("segment index must be non-negative")
	}
	if t.Source != SourceRealtime && t.Source != SourceBatch {
		return fmt.Errorf("segment %d: unknown source %q", t.SegmentIndex, t.Source)
	}
	if t.EndTime < t.StartTime {
		return fmt.Errorf("segment %d: end time before start time", t.SegmentIndex)
	}
	return nil
}

// SegmentsFromWords groups a flat, time-ordered word list into segments by
// contiguous speaker runs: a new segment begins whenever the speaker changes
// from the previous word. Used by batch reconciliation to re-segment the
// batch transcript.
func SegmentsFromWords(sessionID string, words []Word) []TranscriptSegment {
	if len(words) == 0 {
		return nil
	}

	var segments []TranscriptSegment
	start := 0
	for i := 1; i <= len(words); i++ {
		if i < len(words) && words[i].SpeakerID == words[start].SpeakerID {
			continue
		}
		run := words[start:i]
		texts := make([]string, len(run))
		for j, w := range run {
			texts[j] = w.Text
		}
		segments = append(segments, TranscriptSegment{
			SessionID:    sessionID,
			SegmentIndex: len(segments),
			Text:         strings.Join(texts, " "),
			StartTime:    run[0].Start,
			EndTime:      run[len(run)-1].End,
			Words:        run,
			SpeakerID:    run[0].SpeakerID,
			Source:       SourceBatch,
		})
		start = i
	}
	return segments
}
