package translate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/w93163red/LivCap-Translate/internal/events"
	"github.com/w93163red/LivCap-Translate/internal/telemetry"
)

// Defaults applied by NewController to zero Config fields.
const (
	DefaultMinLength     = 20
	DefaultBurstUpdates  = 3
	DefaultIdleThreshold = time.Second
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultContextWindow = 5
	DefaultTimeout       = 15 * time.Second
)

// Config tunes when realtime translations fire.
type Config struct {
	// MinLength is the minimum residual length, in characters, worth a
	// realtime translation.
	MinLength int
	// BurstUpdates fires a realtime translation after this many residual
	// changes since the last one.
	BurstUpdates int
	// IdleThreshold fires a realtime translation once the residual has not
	// changed for this long.
	IdleThreshold time.Duration
	// PollInterval is how often the idle condition is checked.
	PollInterval time.Duration
	// ContextWindow is the number of finalized captions kept as context.
	// Negative disables context.
	ContextWindow int
	// Timeout bounds a single translation request.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.BurstUpdates <= 0 {
		c.BurstUpdates = DefaultBurstUpdates
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = DefaultIdleThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = DefaultContextWindow
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink sets the event sink. Emit is called with the controller lock held.
func WithSink(s events.Sink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// task is one in-flight translation. A realtime task has no caption id.
type task struct {
	id        uint64
	captionID string
	text      string
	cancel    context.CancelFunc
}

func (t *task) realtime() bool { return t.captionID == "" }

// Controller decides when to translate. Residual text is translated
// speculatively (realtime) when enough has changed or it has gone idle;
// every finalized sentence is translated once. It implements
// caption.TranscriptListener.
type Controller struct {
	cfg     Config
	backend Backend
	sink    events.Sink
	log     *slog.Logger
	metrics *telemetry.Recorder
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	loop   chan struct{}

	mu               sync.Mutex
	stopped          bool
	lastText         string
	lastRealtimeText string
	updateCount      int
	lastUpdate       time.Time
	inFlight         bool
	nextID           uint64
	tasks            map[uint64]*task
	window           *Window
}

// NewController returns a Controller sending requests to backend.
func NewController(cfg Config, backend Backend, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     cfg,
		backend: backend,
		sink:    events.Discard,
		log:     slog.Default(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[uint64]*task),
		window:  NewWindow(cfg.ContextWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "translate.Controller")
	return c
}

// Start runs the idle check loop until ctx is done or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.loop != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.loop = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.checkIdle()
			}
		}
	}()
}

// Stop cancels the idle loop and every pending translation. Results that
// arrive afterwards are discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for id, t := range c.tasks {
		t.cancel()
		delete(c.tasks, id)
	}
	c.inFlight = false
	loop := c.loop
	c.mu.Unlock()

	c.cancel()
	if loop != nil {
		<-loop
	}
	c.wg.Wait()
}

// Wait blocks until every in-flight translation has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of in-flight translations.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Context returns a copy of the context window.
func (c *Controller) Context() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Entries()
}

// Reset forgets the residual state and the context window so a new
// recording starts without history. Finalized translations still in flight
// are left to complete.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastText = ""
	c.lastRealtimeText = ""
	c.updateCount = 0
	c.lastUpdate = time.Time{}
	for id, t := range c.tasks {
		if t.realtime() {
			t.cancel()
			delete(c.tasks, id)
		}
	}
	c.inFlight = false
	c.window.Reset()
}

// OnTranscriptionUpdate is called on every residual text change.
func (c *Controller) OnTranscriptionUpdate(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || text == c.lastText {
		return
	}
	now := c.now()
	idle := !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) >= c.cfg.IdleThreshold
	c.lastText = text
	c.lastUpdate = now
	c.updateCount++

	if !c.eligibleLocked() {
		return
	}
	if c.updateCount >= c.cfg.BurstUpdates || idle {
		c.fireRealtimeLocked()
	}
}

// checkIdle fires a realtime translation for residual text that has stopped
// changing. Each residual text is translated at most once this way.
func (c *Controller) checkIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.lastText == c.lastRealtimeText || !c.eligibleLocked() {
		return
	}
	if c.now().Sub(c.lastUpdate) < c.cfg.IdleThreshold {
		return
	}
	c.fireRealtimeLocked()
}

func (c *Controller) eligibleLocked() bool {
	if c.inFlight {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(c.lastText)) >= c.cfg.MinLength
}

func (c *Controller) fireRealtimeLocked() {
	c.updateCount = 0
	c.inFlight = true
	c.lastRealtimeText = c.lastText
	c.launchLocked("", strings.TrimSpace(c.lastText), c.window.String())
}

// OnSentenceFinalized translates a finalized sentence. Realtime state is
// reset and any realtime translation still running is discarded.
func (c *Controller) OnSentenceFinalized(text, captionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.lastText = ""
	c.lastRealtimeText = ""
	c.updateCount = 0
	c.inFlight = false
	for id, t := range c.tasks {
		if t.realtime() {
			t.cancel()
			delete(c.tasks, id)
			c.metrics.TranslationCanceled()
		}
	}

	history := c.window.String()
	c.window.Add(captionID, text)
	c.launchLocked(captionID, text, history)
}

func (c *Controller) launchLocked(captionID, text, history string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	c.nextID++
	t := &task{id: c.nextID, captionID: captionID, text: text, cancel: cancel}
	c.tasks[t.id] = t

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		started := time.Now()
		out, err := c.backend.Translate(ctx, text, history)
		if err == nil {
			out = cleanTranslation(out)
			if out == "" {
				err = ErrEmptyTranslation
			}
		}
		c.complete(t, out, err, time.Since(started))
	}()
}

func (c *Controller) complete(t *task, out string, err error, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tasks[t.id]; !ok {
		// Superseded or stopped.
		return
	}
	delete(c.tasks, t.id)
	if t.realtime() {
		c.inFlight = false
	}

	if err != nil {
		c.metrics.TranslationFailed(t.realtime(), err)
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("translation failed", "caption_id", t.captionID, "realtime", t.realtime(), "error", err)
		}
		return
	}
	c.metrics.TranslationCompleted(t.realtime(), latency)

	if t.realtime() {
		c.sink.Emit(events.Event{
			Kind:     events.RealtimeTranslationComplete,
			Text:     out,
			Original: t.text,
			Time:     c.now(),
		})
		return
	}

	for id, other := range c.tasks {
		if other.captionID == t.captionID {
			other.cancel()
			delete(c.tasks, id)
			c.metrics.TranslationCanceled()
		}
	}
	c.window.SetTranslation(t.captionID, out)
	c.sink.Emit(events.Event{
		Kind:      events.FinalizedTranslationComplete,
		Text:      out,
		CaptionID: t.captionID,
		Original:  t.text,
		Time:      c.now(),
	})
}
