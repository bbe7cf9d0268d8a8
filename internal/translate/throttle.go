package translate

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces requests to the wrapped backend at least interval apart.
// Callers queue for a slot in arrival order; a caller whose context ends
// while waiting leaves the queue without using a slot, so the callers
// behind it are not delayed.
type Throttle struct {
	next     Backend
	interval time.Duration

	mu    sync.Mutex
	last  time.Time
	queue []*waiter
}

// waiter is one queued caller. turn is closed when it reaches the head of
// the queue; only the head waits for the interval to elapse.
type waiter struct {
	turn chan struct{}
}

var _ Backend = (*Throttle)(nil)

// NewThrottle wraps next. A non-positive interval disables throttling.
func NewThrottle(next Backend, interval time.Duration) *Throttle {
	return &Throttle{next: next, interval: interval}
}

// Translate implements Backend.
func (t *Throttle) Translate(ctx context.Context, text, history string) (string, error) {
	if err := t.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Translate(ctx, text, history)
}

// Wait blocks until the next request slot.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := &waiter{turn: make(chan struct{})}
	t.mu.Lock()
	t.queue = append(t.queue, w)
	if len(t.queue) == 1 {
		close(w.turn)
	}
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		t.leave(w)
		return ctx.Err()
	case <-w.turn:
	}

	for {
		t.mu.Lock()
		d := time.Until(t.last.Add(t.interval))
		if d <= 0 {
			t.last = time.Now()
			t.leaveLocked(w)
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.leave(w)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Throttle) leave(w *waiter) {
	t.mu.Lock()
	t.leaveLocked(w)
	t.mu.Unlock()
}

// leaveLocked removes w and hands the turn to the next caller if w held it.
func (t *Throttle) leaveLocked(w *waiter) {
	for i, q := range t.queue {
		if q != w {
			continue
		}
		t.queue = append(t.queue[:i], t.queue[i+1:]...)
		if i == 0 && len(t.queue) > 0 {
			close(t.queue[0].turn)
		}
		return
	}
}
