// Package caption turns a revisable stream of recognition hypotheses into
// immutable captions. It owns the recognition session lifecycle, detects the
// stable prefix of each hypothesis, and finalizes residual text on silence.
//
// The Segmenter splits each hypothesis into finalized spans and a residual
// that together reproduce it byte for byte. The Engine publishes trimmed
// forms: captions without surrounding whitespace and the residual without
// leading whitespace. Only the whitespace between captions is lost.
package caption

import (
	"context"
	"time"
)

// Segment is a backend-defined sub-span of a hypothesis, typically one word.
// Start and End are byte offsets into Hypothesis.Text.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Hypothesis is the backend's current best guess for the whole utterance.
// Segments are ordered by position.
type Hypothesis struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// normalized returns a copy whose segment ranges lie within the text and are
// non-decreasing.
func (h Hypothesis) normalized() Hypothesis {
	if len(h.Segments) == 0 {
		return h
	}
	out := Hypothesis{Text: h.Text, Segments: make([]Segment, 0, len(h.Segments))}
	floor := 0
	for _, s := range h.Segments {
		start := clamp(s.Start, floor, len(h.Text))
		end := clamp(s.End, start, len(h.Text))
		out.Segments = append(out.Segments, Segment{Start: start, End: end})
		floor = start
	}
	return out
}

// FinalizedSentence is an immutable caption. ID is the join key for its
// translation and persistence.
type FinalizedSentence struct {
	ID        string
	Text      string
	Sequence  int
	Timestamp time.Time
}

// Session is one recognition request to the backend. Exactly one session is
// current while the engine is active.
type Session struct {
	ID        string
	StartedAt time.Time
	Active    bool
}

// Callbacks receive results for a single recognition session. They may be
// invoked from any goroutine.
type Callbacks struct {
	OnHypothesis func(Hypothesis)
	OnFinal      func()
	OnError      func(error)
}

// Recognizer opens recognition sessions on the speech backend.
//
// Open may block while the backend connects; the engine keeps processing
// VAD frames meanwhile. Open must not invoke cb before returning.
type Recognizer interface {
	Open(ctx context.Context, sessionID string, cb Callbacks) (RecognitionTask, error)
}

// RecognitionTask controls one open recognition session.
type RecognitionTask interface {
	// Cancel abandons the session. Results still in flight are discarded by
	// the engine.
	Cancel()
	// EndAudio signals that no further audio will be sent.
	EndAudio()
}

// TranscriptListener is notified of residual text changes and finalized
// sentences, in the order they happen.
type TranscriptListener interface {
	OnTranscriptionUpdate(text string)
	OnSentenceFinalized(text, captionID string)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
