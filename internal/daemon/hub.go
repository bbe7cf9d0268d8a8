package daemon

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/w93163red/LivCap-Translate/internal/caption"
	"github.com/w93163red/LivCap-Translate/internal/events"
)

// FromEvent converts a pipeline event to its wire form. ok is false for
// events that are not sent to clients.
func FromEvent(ev events.Event) (Event, bool) {
	out := Event{SessionID: ev.SessionID}
	switch ev.Kind {
	case events.TranscriptionUpdate:
		out.Event = EventPartial
		out.Text = ev.Text
	case events.SentenceFinalized:
		out.Event = EventSegment
		out.Text = ev.Text
		out.CaptionID = ev.CaptionID
		out.SequenceNumber = IntPtr(ev.Sequence)
	case events.StatusChanged:
		out.Event = EventStatus
		out.Message = ev.Text
		out.Recording = ev.Recording
	case events.Error:
		out.Event = EventError
		out.Message = ev.Text
		out.Kind = ev.ErrorKind
		out.Transient = BoolPtr(transientKind(ev.ErrorKind))
	case events.RealtimeTranslationComplete:
		out.Event = EventTranslationPartial
		out.Text = ev.Text
		out.Original = ev.Original
	case events.FinalizedTranslationComplete:
		out.Event = EventTranslation
		out.Text = ev.Text
		out.Original = ev.Original
		out.CaptionID = ev.CaptionID
	default:
		return Event{}, false
	}
	return out, true
}

// transientKind reports whether the engine recovers from an error on its
// own, so clients can clear it after a while.
func transientKind(kind string) bool {
	switch kind {
	case caption.KindNoSpeech, caption.KindTransport:
		return true
	}
	return false
}

// subscriber is a connection receiving events.
type subscriber interface {
	// offer queues a line without blocking and reports whether it fit.
	offer(line []byte) bool
	// drop disconnects the subscriber.
	drop(reason string)
	wants(event string) bool
}

// Hub broadcasts pipeline events to subscribed connections. A subscriber
// whose buffer is full is disconnected rather than slowing the others.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[subscriber]struct{}
}

var _ events.Sink = (*Hub)(nil)

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:  logger.With("component", "daemon.Hub"),
		subs: make(map[subscriber]struct{}),
	}
}

func (h *Hub) add(s subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Subscribers returns the number of subscribed connections.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit implements events.Sink.
func (h *Hub) Emit(ev events.Event) {
	wire, ok := FromEvent(ev)
	if !ok {
		return
	}
	line, err := json.Marshal(wire)
	if err != nil {
		h.log.Error("marshal event", "event", wire.Event, "error", err)
		return
	}
	line = append(line, '\n')

	h.mu.Lock()
	var slow []subscriber
	for s := range h.subs {
		if !s.wants(wire.Event) {
			continue
		}
		if !s.offer(line) {
			slow = append(slow, s)
			delete(h.subs, s)
		}
	}
	h.mu.Unlock()

	for _, s := range slow {
		h.log.Warn("disconnecting slow subscriber")
		s.drop("slow subscriber")
	}
}
