// Package events defines the notifications the caption pipeline emits to its
// consumers (socket subscribers, persistence) and the sinks that carry them.
package events

import "time"

// Kind identifies the type of an Event.
type Kind string

const (
	TranscriptionUpdate          Kind = "transcription_update"
	SentenceFinalized            Kind = "sentence_finalized"
	StatusChanged                Kind = "status_changed"
	Error                        Kind = "error"
	RealtimeTranslationComplete  Kind = "realtime_translation_complete"
	FinalizedTranslationComplete Kind = "finalized_translation_complete"
)

// Event is a single outbound notification. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind Kind

	// Text is the residual text, finalized caption, status message, error
	// message, or translation depending on Kind.
	Text string

	// CaptionID joins a finalized sentence with its translation.
	CaptionID string

	// Original is the source text a translation was produced from.
	Original string

	// ErrorKind classifies Error events.
	ErrorKind string

	// Recording reports whether recognition is running, set on StatusChanged.
	Recording *bool

	// SessionID is the recording session the event belongs to, when known.
	SessionID string

	// Sequence numbers finalized sentences within a recording session.
	Sequence int

	Time time.Time
}

// Sink consumes events. Emit is called while the emitter holds its state
// lock, so implementations must not block and must not call back into the
// emitter.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
