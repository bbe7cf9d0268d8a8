package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/w93163red/LivCap-Translate/internal/events"
	"github.com/w93163red/LivCap-Translate/internal/telemetry"
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateIdle State = iota
	StateActive
	StateRotating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateRotating:
		return "rotating"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RotateReason records why a recognition session was replaced.
type RotateReason string

const (
	RotateResultFinal   RotateReason = "result-final"
	RotateNoSpeech      RotateReason = "no-speech"
	RotateErrorRecovery RotateReason = "error-recovery"
	RotateMaxDuration   RotateReason = "max-duration"
)

// Status messages carried by StatusChanged events.
const (
	StatusRecording  = "Recording"
	StatusRecovering = "Recovering recognition session"
	StatusIdle       = "Idle"
)

// DefaultWatchdogInterval is how often session age is checked when
// Config.MaxSessionDuration is set.
const DefaultWatchdogInterval = time.Second

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	Strategy          Strategy
	Terminators       string
	Abbreviations     []string
	SplitLongCaptions int

	// SilenceFrames is the number of consecutive silence frames after which
	// the residual is finalized.
	SilenceFrames int

	// MaxSessionDuration caps the wall-clock age of one recognition session.
	// Zero disables the watchdog.
	MaxSessionDuration time.Duration
	WatchdogInterval   time.Duration

	// MaxNoSpeechRotations surfaces a no_speech Error event after this many
	// consecutive sessions end without speech. Zero never surfaces it.
	MaxNoSpeechRotations int
}

// EngineStatus is a point-in-time view of the engine.
type EngineStatus struct {
	State     State
	Recording bool
	SessionID string
	StartedAt time.Time
	Captions  int
	Residual  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the event sink. Emit is called with the engine lock held.
func WithSink(s events.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithListener sets the transcript listener, typically the translation
// controller.
func WithListener(l TranscriptListener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides how session and caption ids are allocated.
func WithIDGenerator(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newID = next
		}
	}
}

// Engine owns exactly one live recognition session at a time and turns its
// hypotheses into finalized sentences. All state is guarded by mu; backend
// callbacks, VAD frames, the watchdog and the public API serialize on it.
// mu is not held while the backend opens a session; callbacks arriving
// during that window are treated as stale.
type Engine struct {
	cfg      Config
	backend  Recognizer
	sink     events.Sink
	listener TranscriptListener
	log      *slog.Logger
	metrics  *telemetry.Recorder
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	state    State
	ctx      context.Context
	cancel   context.CancelFunc
	session  *Session
	task     RecognitionTask
	seg      *Segmenter
	silence  *SilenceTracker
	sequence int
	noSpeech int
	// gen changes whenever the engine starts or tears down, so an open
	// that raced with Stop can tell its result is unwanted.
	gen uint64
}

// NewEngine returns an idle Engine that opens sessions on backend.
func NewEngine(cfg Config, backend Recognizer, opts ...Option) *Engine {
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = DefaultWatchdogInterval
	}
	e := &Engine{
		cfg:     cfg,
		backend: backend,
		sink:    events.Discard,
		log:     slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "caption.Engine")
	tok := NewTokenizer(cfg.Terminators, cfg.Abbreviations)
	e.seg = NewSegmenter(tok, cfg.Strategy, cfg.SplitLongCaptions)
	e.silence = NewSilenceTracker(cfg.SilenceFrames)
	return e
}

// Start opens the first recognition session. Backend unavailability and
// authorization failures are returned as-is and not retried.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.gen++
	e.ctx, e.cancel = runCtx, cancel
	e.state = StateRotating
	if err := e.openLocked(runCtx); err != nil {
		if !errors.Is(err, errSuperseded) {
			e.teardownLocked()
		}
		return err
	}
	e.state = StateActive
	e.sequence = 0
	e.noSpeech = 0
	e.log.Info("recognition started", "session_id", e.session.ID)
	e.emitStatusLocked(StatusRecording, true)

	if e.cfg.MaxSessionDuration > 0 {
		go e.watchdog(runCtx)
	}
	return nil
}

// Stop ends the audio feed, finalizes any residual text and returns to idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return
	}
	if e.task != nil {
		e.task.Cancel()
		e.task.EndAudio()
	}
	e.finalizeResidualLocked()
	e.teardownLocked()
	e.log.Info("recognition stopped", "captions", e.sequence)
	e.emitStatusLocked(StatusIdle, false)
}

// Running reports whether a session is open.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != StateIdle
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := EngineStatus{
		State:     e.state,
		Recording: e.state != StateIdle,
		Captions:  e.sequence,
		Residual:  displayText(e.seg.Residual()),
	}
	if e.session != nil {
		st.SessionID = e.session.ID
		st.StartedAt = e.session.StartedAt
	}
	return st
}

// ForceFinalize commits the current residual text as one or more captions.
func (e *Engine) ForceFinalize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	e.finalizeResidualLocked()
}

// Frame records one VAD frame. Reaching the silence threshold finalizes the
// residual if there is one. index is the source's frame counter and is only
// used for logging.
func (e *Engine) Frame(isSpeech bool, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	if !e.silence.Observe(isSpeech) {
		return
	}
	if strings.TrimSpace(e.seg.Residual()) == "" {
		return
	}
	e.log.Debug("silence threshold reached, finalizing residual", "frame", index)
	e.finalizeResidualLocked()
}

// HandleHypothesis applies a hypothesis from the session identified by
// sessionID. Results from any other session are dropped.
func (e *Engine) HandleHypothesis(sessionID string, h Hypothesis) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return
	}
	if strings.TrimSpace(h.Text) != "" {
		e.noSpeech = 0
	}

	res := e.seg.Apply(h)
	for _, span := range res.Finalized {
		e.emitSentenceLocked(span)
	}
	if res.Changed {
		e.emitUpdateLocked(displayText(res.Residual))
	}
}

// HandleFinal rotates after the backend completes an utterance.
func (e *Engine) HandleFinal(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return
	}
	e.rotateLocked(RotateResultFinal, true)
}

// HandleError reacts to a backend failure on sessionID. No-speech errors
// rotate silently; anything else is surfaced and recovered from.
func (e *Engine) HandleError(sessionID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(sessionID) {
		return
	}

	if errors.Is(err, ErrNoSpeechDetected) {
		e.noSpeech++
		e.log.Debug("no speech detected", "session_id", sessionID, "streak", e.noSpeech)
		if e.cfg.MaxNoSpeechRotations > 0 && e.noSpeech >= e.cfg.MaxNoSpeechRotations {
			e.emitErrorLocked(fmt.Errorf("%w in %d consecutive sessions", ErrNoSpeechDetected, e.noSpeech))
			e.noSpeech = 0
		}
		e.rotateLocked(RotateNoSpeech, false)
		return
	}

	e.log.Warn("recognition error", "session_id", sessionID, "error", err)
	e.emitErrorLocked(err)
	e.emitStatusLocked(StatusRecovering, true)
	e.rotateLocked(RotateErrorRecovery, true)
}

func (e *Engine) currentLocked(sessionID string) bool {
	if e.state != StateActive || e.session == nil || e.session.ID != sessionID {
		e.metrics.StaleCallback()
		return false
	}
	return true
}

// errSuperseded reports that the engine was stopped or restarted while a
// session was being opened.
var errSuperseded = fmt.Errorf("open recognition session: %w", context.Canceled)

// openLocked allocates a session id and opens it on the backend. Callbacks
// capture the id so that results from a superseded session are discarded.
//
// e.mu is released while the backend opens so that VAD frames and status
// reads are not held up by a slow dial. The caller must have moved the
// engine out of StateActive first.
func (e *Engine) openLocked(ctx context.Context) error {
	id := e.newID()
	gen := e.gen
	cb := Callbacks{
		OnHypothesis: func(h Hypothesis) { e.HandleHypothesis(id, h) },
		OnFinal:      func() { e.HandleFinal(id) },
		OnError:      func(err error) { e.HandleError(id, err) },
	}

	e.mu.Unlock()
	task, err := e.backend.Open(ctx, id, cb)
	e.mu.Lock()

	if e.gen != gen {
		if task != nil {
			task.Cancel()
		}
		return errSuperseded
	}
	if err != nil {
		return fmt.Errorf("open recognition session: %w", err)
	}
	e.session = &Session{ID: id, StartedAt: e.now(), Active: true}
	e.task = task
	e.metrics.SessionStarted(id)
	return nil
}

// rotateLocked replaces the current session. If the replacement cannot be
// opened the engine goes idle and reports the failure.
func (e *Engine) rotateLocked(reason RotateReason, finalize bool) {
	if e.state != StateActive {
		return
	}
	e.state = StateRotating
	if finalize {
		e.finalizeResidualLocked()
	}
	if e.task != nil {
		e.task.Cancel()
		e.task = nil
	}
	old := e.session.ID
	e.session.Active = false
	e.session = nil
	e.seg.Reset()
	e.silence.Reset()
	e.metrics.Rotated(string(reason))

	if err := e.openLocked(e.ctx); err != nil {
		if errors.Is(err, errSuperseded) {
			return
		}
		e.log.Error("reopen recognition session", "reason", reason, "error", err)
		e.emitErrorLocked(err)
		e.teardownLocked()
		e.emitStatusLocked(StatusIdle, false)
		return
	}
	e.state = StateActive
	if reason == RotateNoSpeech {
		e.log.Debug("session rotated", "reason", reason, "from", old, "to", e.session.ID)
	} else {
		e.log.Info("session rotated", "reason", reason, "from", old, "to", e.session.ID)
	}
}

func (e *Engine) teardownLocked() {
	e.gen++
	if e.session != nil {
		e.session.Active = false
	}
	e.session = nil
	e.task = nil
	e.seg.Reset()
	e.silence.Reset()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = StateIdle
}

func (e *Engine) finalizeResidualLocked() {
	had := e.seg.Residual() != ""
	for _, span := range e.seg.Flush() {
		e.emitSentenceLocked(span)
	}
	if had {
		e.emitUpdateLocked("")
	}
}

// displayText is the published form of a residual: the whitespace that
// separated it from the previous caption is dropped.
func displayText(residual string) string {
	return strings.TrimLeftFunc(residual, unicode.IsSpace)
}

func (e *Engine) emitSentenceLocked(span string) {
	text := strings.TrimSpace(span)
	if text == "" {
		return
	}
	e.sequence++
	s := FinalizedSentence{
		ID:        e.newID(),
		Text:      text,
		Sequence:  e.sequence,
		Timestamp: e.now(),
	}
	e.metrics.CaptionFinalized(s.Text)
	e.sink.Emit(events.Event{
		Kind:      events.SentenceFinalized,
		Text:      s.Text,
		CaptionID: s.ID,
		Sequence:  s.Sequence,
		Time:      s.Timestamp,
	})
	if e.listener != nil {
		e.listener.OnSentenceFinalized(s.Text, s.ID)
	}
}

func (e *Engine) emitUpdateLocked(text string) {
	e.sink.Emit(events.Event{Kind: events.TranscriptionUpdate, Text: text, Time: e.now()})
	if e.listener != nil {
		e.listener.OnTranscriptionUpdate(text)
	}
}

func (e *Engine) emitStatusLocked(msg string, recording bool) {
	e.sink.Emit(events.Event{
		Kind:      events.StatusChanged,
		Text:      msg,
		Recording: events.BoolPtr(recording),
		Time:      e.now(),
	})
}

func (e *Engine) emitErrorLocked(err error) {
	e.sink.Emit(events.Event{
		Kind:      events.Error,
		Text:      err.Error(),
		ErrorKind: KindOf(err),
		Time:      e.now(),
	})
}

func (e *Engine) watchdog(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkSessionAge()
		}
	}
}

// checkSessionAge rotates the session once it exceeds MaxSessionDuration.
func (e *Engine) checkSessionAge() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive || e.session == nil || e.cfg.MaxSessionDuration <= 0 {
		return
	}
	if e.now().Sub(e.session.StartedAt) < e.cfg.MaxSessionDuration {
		return
	}
	e.rotateLocked(RotateMaxDuration, true)
}
