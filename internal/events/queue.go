package events

import (
	"log/slog"
	"sync"
)

// DefaultQueueSize is the buffer used when NewQueue is given a non-positive size.
const DefaultQueueSize = 1024

// Queue decouples a slow sink from the emitter. Events are delivered to the
// wrapped sink on a dedicated goroutine in emission order. When the buffer is
// full the event is dropped and logged rather than blocking the caller.
type Queue struct {
	next Sink
	log  *slog.Logger

	mu     sync.Mutex
	ch     chan Event
	closed bool
	done   chan struct{}
}

// NewQueue starts a Queue in front of next.
func NewQueue(next Sink, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		next: next,
		log:  logger.With("component", "events.Queue"),
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Emit implements Sink.
func (q *Queue) Emit(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.log.Warn("event queue full, dropping event", "kind", ev.Kind, "caption_id", ev.CaptionID)
	}
}

// Close stops accepting events and waits until buffered events are delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.ch {
		q.next.Emit(ev)
	}
}
