package translate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/w93163red/LivCap-Translate/internal/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type result struct {
	out string
	err error
}

type call struct {
	ctx     context.Context
	text    string
	history string
	reply   chan result
}

// scriptedBackend blocks every request until the test replies to it.
type scriptedBackend struct {
	calls chan *call
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{calls: make(chan *call, 16)}
}

func (b *scriptedBackend) Translate(ctx context.Context, text, history string) (string, error) {
	c := &call{ctx: ctx, text: text, history: history, reply: make(chan result, 1)}
	b.calls <- c
	select {
	case r := <-c.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *scriptedBackend) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for translation request")
		return nil
	}
}

type chanSink chan events.Event

func (s chanSink) Emit(ev events.Event) { s <- ev }

func (s chanSink) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-s:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, clock *fakeClock) (*Controller, *scriptedBackend, chanSink) {
	t.Helper()
	backend := newScriptedBackend()
	sink := make(chanSink, 16)
	c := NewController(Config{
		MinLength:     20,
		BurstUpdates:  3,
		IdleThreshold: time.Second,
		ContextWindow: 3,
	}, backend, WithSink(sink), WithLogger(testLogger()), WithClock(clock.Now))
	t.Cleanup(c.Stop)
	return c, backend, sink
}

func TestControllerBurstFiresOnce(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnTranscriptionUpdate("this is the first long update")
	c.OnTranscriptionUpdate("this is the first long update, more")
	if c.Pending() != 0 {
		t.Fatal("fired before burst threshold")
	}
	c.OnTranscriptionUpdate("this is the first long update, more text")
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d after three updates, want 1", c.Pending())
	}
	c.OnTranscriptionUpdate("this is the first long update, more text again")
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, fourth update must not fire while in flight", c.Pending())
	}

	req := backend.next(t)
	if req.text != "this is the first long update, more text" {
		t.Fatalf("translated %q", req.text)
	}
	req.reply <- result{out: "traduccion"}
	ev := sink.next(t)
	if ev.Kind != events.RealtimeTranslationComplete || ev.Text != "traduccion" || ev.CaptionID != "" {
		t.Fatalf("event = %+v", ev)
	}

	c.OnTranscriptionUpdate("this is the first long update, more text again and")
	if c.Pending() != 0 {
		t.Fatal("fired before burst threshold was reached again")
	}
	c.OnTranscriptionUpdate("this is the first long update, more text again and again")
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want a second realtime translation", c.Pending())
	}
}

func TestControllerIgnoresShortText(t *testing.T) {
	clock := newFakeClock()
	c, _, _ := newTestController(t, clock)
	for _, text := range []string{"short", "short one", "short one two", "short one two 3"} {
		c.OnTranscriptionUpdate(text)
	}
	clock.Advance(5 * time.Second)
	c.checkIdle()
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d for text under the minimum length", c.Pending())
	}
}

func TestControllerIdleFiresOnce(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnTranscriptionUpdate("a sentence that keeps going")
	clock.Advance(500 * time.Millisecond)
	c.checkIdle()
	if c.Pending() != 0 {
		t.Fatal("fired before idle threshold")
	}

	clock.Advance(500 * time.Millisecond)
	c.checkIdle()
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d after idle threshold, want 1", c.Pending())
	}
	c.checkIdle()
	if c.Pending() != 1 {
		t.Fatal("idle check fired again while in flight")
	}

	backend.next(t).reply <- result{out: "una frase"}
	sink.next(t)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		c.checkIdle()
	}
	if c.Pending() != 0 {
		t.Fatal("unchanged text was translated again")
	}
}

func TestControllerIdleGapOnUpdate(t *testing.T) {
	clock := newFakeClock()
	c, _, _ := newTestController(t, clock)

	c.OnTranscriptionUpdate("the speaker paused right here")
	clock.Advance(1500 * time.Millisecond)
	c.OnTranscriptionUpdate("the speaker paused right here and")
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, an update after an idle gap should fire", c.Pending())
	}
}

func TestControllerIdleLoopUsesTicker(t *testing.T) {
	backend := newScriptedBackend()
	c := NewController(Config{
		MinLength:     5,
		IdleThreshold: 20 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}, backend, WithLogger(testLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	c.OnTranscriptionUpdate("hello there")
	req := backend.next(t)
	if req.text != "hello there" {
		t.Fatalf("translated %q", req.text)
	}
}

func TestControllerFinalizedTranslation(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnSentenceFinalized("Good morning.", "cap-1")
	req := backend.next(t)
	if req.text != "Good morning." || req.history != "" {
		t.Fatalf("request = %+v", req)
	}
	req.reply <- result{out: "  \"Buenos dias.\" "}

	ev := sink.next(t)
	if ev.Kind != events.FinalizedTranslationComplete || ev.CaptionID != "cap-1" || ev.Text != "Buenos dias." {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Original != "Good morning." {
		t.Fatalf("Original = %q", ev.Original)
	}

	c.OnSentenceFinalized("How are you?", "cap-2")
	req = backend.next(t)
	if req.history != "Good morning. -> Buenos dias." {
		t.Fatalf("history = %q", req.history)
	}
}

func TestControllerFinalizeCancelsRealtime(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnTranscriptionUpdate("we are going to talk")
	c.OnTranscriptionUpdate("we are going to talk about")
	c.OnTranscriptionUpdate("we are going to talk about it")
	realtime := backend.next(t)

	c.OnSentenceFinalized("We are going to talk about it.", "cap-1")
	select {
	case <-realtime.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("realtime request was not canceled")
	}
	realtime.reply <- result{out: "late realtime"}

	final := backend.next(t)
	final.reply <- result{out: "Vamos a hablar de ello."}
	ev := sink.next(t)
	if ev.Kind != events.FinalizedTranslationComplete {
		t.Fatalf("event = %+v", ev)
	}

	if err := c.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-sink:
		t.Fatalf("unexpected event after finalization: %+v", ev)
	default:
	}
}

func TestControllerDuplicateCaptionKeepsOneResult(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnSentenceFinalized("Hello.", "C")
	first := backend.next(t)
	c.OnSentenceFinalized("Hello.", "C")
	second := backend.next(t)
	if c.Pending() != 2 {
		t.Fatalf("Pending = %d", c.Pending())
	}

	second.reply <- result{out: "Hola."}
	ev := sink.next(t)
	if ev.CaptionID != "C" || ev.Text != "Hola." {
		t.Fatalf("event = %+v", ev)
	}
	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate task for C was not canceled")
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d after completion", c.Pending())
	}

	var matches []Entry
	for _, e := range c.Context() {
		if e.CaptionID == "C" {
			matches = append(matches, e)
		}
	}
	if len(matches) != 1 || matches[0].Translation != "Hola." {
		t.Fatalf("context entries for C = %+v", matches)
	}
}

func TestControllerSwallowsFailures(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnSentenceFinalized("Broken.", "cap-1")
	backend.next(t).reply <- result{err: errors.New("upstream 502")}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-sink:
		t.Fatalf("failure emitted %+v", ev)
	default:
	}
	if c.Pending() != 0 {
		t.Fatal("failed task was not cleared")
	}

	c.OnSentenceFinalized("Next.", "cap-2")
	req := backend.next(t)
	if req.history != "" {
		t.Fatalf("untranslated entries must be skipped, history = %q", req.history)
	}
	req.reply <- result{out: ""}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-sink:
		t.Fatalf("empty translation emitted %+v", ev)
	default:
	}
}

func TestControllerStopCancelsEverything(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnSentenceFinalized("One.", "cap-1")
	c.OnSentenceFinalized("Two.", "cap-2")
	a, b := backend.next(t), backend.next(t)

	c.Stop()
	if a.ctx.Err() == nil || b.ctx.Err() == nil {
		t.Fatal("Stop must cancel pending translations")
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d after Stop", c.Pending())
	}
	select {
	case ev := <-sink:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	c.OnSentenceFinalized("Three.", "cap-3")
	if c.Pending() != 0 {
		t.Fatal("stopped controller accepted work")
	}
}

func TestControllerResetClearsHistory(t *testing.T) {
	clock := newFakeClock()
	c, backend, sink := newTestController(t, clock)

	c.OnSentenceFinalized("Good morning.", "cap-1")
	backend.next(t).reply <- result{out: "Buenos dias."}
	sink.next(t)
	if len(c.Context()) != 1 {
		t.Fatalf("context = %+v", c.Context())
	}

	c.OnTranscriptionUpdate("a residual long enough to translate")
	c.OnTranscriptionUpdate("a residual long enough to translate now")
	c.OnTranscriptionUpdate("a residual long enough to translate now!")
	realtime := backend.next(t)

	c.Reset()
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d after Reset", c.Pending())
	}
	if err := realtime.ctx.Err(); err == nil {
		t.Fatal("realtime request not canceled by Reset")
	}
	if len(c.Context()) != 0 {
		t.Fatalf("context not cleared: %+v", c.Context())
	}

	c.OnSentenceFinalized("New recording.", "cap-9")
	if req := backend.next(t); req.history != "" {
		t.Fatalf("history = %q, want empty after Reset", req.history)
	}
}
