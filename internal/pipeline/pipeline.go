// Package pipeline assembles the caption engine, the translation controller
// and persistence into one recording pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/w93163red/LivCap-Translate/internal/caption"
	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/events"
	"github.com/w93163red/LivCap-Translate/internal/telemetry"
	"github.com/w93163red/LivCap-Translate/internal/translate"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("pipeline closed")

// Store persists recording sessions and captions. *db.Store implements it.
type Store interface {
	CreateSession(id, locale string) (*db.Session, error)
	EndSession(id string) error
	InsertCaption(c db.Caption) error
	SetTranslation(captionID, translation string) error
}

// Config configures a Pipeline.
type Config struct {
	Engine     caption.Config
	Controller translate.Config
	Locale     string
	QueueSize  int
}

// Status is a snapshot of the pipeline.
type Status struct {
	Recording           bool
	SessionID           string
	StartedAt           time.Time
	Captions            int
	Residual            string
	PendingTranslations int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRecorder sets the telemetry recorder shared by the engine and the
// controller.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(p *Pipeline) { p.metrics = r }
}

// WithStore persists sessions, captions and finalized translations.
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithSubscriber adds a consumer of every event, typically the socket hub.
// Each subscriber gets its own queue.
func WithSubscriber(s events.Sink) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.subscribers = append(p.subscribers, s)
		}
	}
}

// WithEngineOptions passes extra options to the caption engine.
func WithEngineOptions(opts ...caption.Option) Option {
	return func(p *Pipeline) { p.engineOpts = append(p.engineOpts, opts...) }
}

// WithControllerOptions passes extra options to the translation controller.
func WithControllerOptions(opts ...translate.Option) Option {
	return func(p *Pipeline) { p.controllerOpts = append(p.controllerOpts, opts...) }
}

// Pipeline owns one engine and, when a translation backend is configured,
// one controller. Events from both are stamped with the recording session
// id and fanned out to queued sinks so neither producer blocks on a slow
// consumer.
type Pipeline struct {
	cfg            Config
	log            *slog.Logger
	metrics        *telemetry.Recorder
	store          Store
	subscribers    []events.Sink
	engineOpts     []caption.Option
	controllerOpts []translate.Option

	engine     *caption.Engine
	controller *translate.Controller
	queues     []*events.Queue
	stamp      *stamper

	mu        sync.Mutex
	recording string
	closed    bool
	closeOnce sync.Once
}

// New builds a pipeline. backend may be nil to run without translation.
func New(cfg Config, recognizer caption.Recognizer, backend translate.Backend, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "pipeline")

	var sinks events.Fanout
	if p.store != nil {
		q := events.NewQueue(&persister{store: p.store, log: p.log}, cfg.QueueSize, p.log)
		p.queues = append(p.queues, q)
		sinks = append(sinks, q)
	}
	for _, s := range p.subscribers {
		q := events.NewQueue(s, cfg.QueueSize, p.log)
		p.queues = append(p.queues, q)
		sinks = append(sinks, q)
	}
	p.stamp = &stamper{next: sinks}

	engineOpts := []caption.Option{
		caption.WithSink(p.stamp),
		caption.WithLogger(p.log),
		caption.WithRecorder(p.metrics),
	}
	if backend != nil {
		p.controller = translate.NewController(cfg.Controller, backend, append([]translate.Option{
			translate.WithSink(p.stamp),
			translate.WithLogger(p.log),
			translate.WithRecorder(p.metrics),
		}, p.controllerOpts...)...)
		engineOpts = append(engineOpts, caption.WithListener(p.controller))
	}
	p.engine = caption.NewEngine(cfg.Engine, recognizer, append(engineOpts, p.engineOpts...)...)
	return p
}

// Start runs the translation idle loop until ctx is done or Close.
func (p *Pipeline) Start(ctx context.Context) {
	if p.controller != nil {
		p.controller.Start(ctx)
	}
}

// StartRecording creates a recording session and starts recognition.
func (p *Pipeline) StartRecording(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	if p.engine.Running() {
		return "", caption.ErrAlreadyRunning
	}

	id := uuid.NewString()
	if p.store != nil {
		if _, err := p.store.CreateSession(id, p.cfg.Locale); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	if p.controller != nil {
		p.controller.Reset()
	}
	p.recording = id
	p.stamp.set(id)

	if err := p.engine.Start(ctx); err != nil {
		p.recording = ""
		p.stamp.set("")
		if p.store != nil {
			if endErr := p.store.EndSession(id); endErr != nil {
				p.log.Warn("end failed session", "session_id", id, "error", endErr)
			}
		}
		return "", err
	}
	p.log.Info("recording started", "session_id", id)
	return id, nil
}

// StopRecording stops recognition. The residual is finalized and its
// translations still complete. It returns the stopped session id, or ""
// when nothing was recording.
func (p *Pipeline) StopRecording() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.recording
	if !p.engine.Running() {
		return ""
	}
	// The engine's idle status event ends the session in the store.
	p.engine.Stop()
	p.log.Info("recording stopped", "session_id", id)
	return id
}

// Frame forwards a VAD frame to the engine.
func (p *Pipeline) Frame(isSpeech bool, index int) {
	p.engine.Frame(isSpeech, index)
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	id := p.recording
	p.mu.Unlock()

	es := p.engine.Status()
	st := Status{
		Recording: es.Recording,
		StartedAt: es.StartedAt,
		Captions:  es.Captions,
		Residual:  es.Residual,
	}
	if es.Recording {
		st.SessionID = id
	}
	if p.controller != nil {
		st.PendingTranslations = p.controller.Pending()
	}
	return st
}

// SessionID returns the current or most recent recording session id.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// Close stops recognition, cancels every translation and drains the queues.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.engine.Stop()
		if p.controller != nil {
			p.controller.Stop()
		}
		for _, q := range p.queues {
			q.Close()
		}
	})
}

// Shutdown stops recording, waits for pending translations until ctx is done
// and then closes the pipeline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.StopRecording()
	var err error
	if p.controller != nil {
		err = p.controller.Wait(ctx)
	}
	p.Close()
	return err
}

// stamper tags events with the recording session id. A finalized
// translation can land after the next recording has started, so it is
// tagged with the session its caption was finalized in, not the current one.
type stamper struct {
	next events.Sink

	mu       sync.Mutex
	id       string
	captions map[string]string // caption id -> session id
}

// set switches to a new recording. Captions of recordings before the one
// being replaced are forgotten; their translations have long been canceled.
func (s *stamper) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, sess := range s.captions {
		if sess != s.id {
			delete(s.captions, c)
		}
	}
	s.id = id
}

func (s *stamper) Emit(ev events.Event) {
	s.mu.Lock()
	switch {
	case ev.SessionID != "":
	case ev.Kind == events.FinalizedTranslationComplete && s.captions[ev.CaptionID] != "":
		ev.SessionID = s.captions[ev.CaptionID]
		delete(s.captions, ev.CaptionID)
	default:
		ev.SessionID = s.id
	}
	if ev.Kind == events.SentenceFinalized && ev.CaptionID != "" {
		if s.captions == nil {
			s.captions = make(map[string]string)
		}
		s.captions[ev.CaptionID] = ev.SessionID
	}
	s.mu.Unlock()
	s.next.Emit(ev)
}
