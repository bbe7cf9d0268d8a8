// Package telemetry tracks pipeline counters that are logged when the daemon
// shuts down.
package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accumulates counters for recognition sessions, captions and
// translations. A nil *Recorder is valid and records nothing.
type Recorder struct {
	log     *slog.Logger
	started time.Time

	sessions             atomic.Uint64
	staleCallbacks       atomic.Uint64
	captions             atomic.Uint64
	captionBytes         atomic.Uint64
	realtimeTranslations atomic.Uint64
	finalTranslations    atomic.Uint64
	translationFailures  atomic.Uint64
	canceledTranslations atomic.Uint64

	mu        sync.Mutex
	rotations map[string]uint64
}

// Snapshot is an immutable view of the recorder totals.
type Snapshot struct {
	Sessions             uint64
	StaleCallbacks       uint64
	Captions             uint64
	CaptionBytes         uint64
	RealtimeTranslations uint64
	FinalTranslations    uint64
	TranslationFailures  uint64
	CanceledTranslations uint64
	Rotations            map[string]uint64
	Uptime               time.Duration
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log:       logger.With("component", "telemetry.Recorder"),
		started:   time.Now(),
		rotations: make(map[string]uint64),
	}
}

// SessionStarted counts a newly opened recognition session.
func (r *Recorder) SessionStarted(sessionID string) {
	if r == nil {
		return
	}
	r.sessions.Add(1)
	r.log.Debug("recognition session opened", "session_id", sessionID)
}

// Rotated counts a session rotation by reason.
func (r *Recorder) Rotated(reason string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.rotations[reason]++
	r.mu.Unlock()
}

// StaleCallback counts a backend callback dropped because its session was
// superseded.
func (r *Recorder) StaleCallback() {
	if r == nil {
		return
	}
	r.staleCallbacks.Add(1)
}

// CaptionFinalized counts a finalized caption.
func (r *Recorder) CaptionFinalized(text string) {
	if r == nil {
		return
	}
	r.captions.Add(1)
	r.captionBytes.Add(uint64(len(text)))
}

// TranslationCompleted counts a successful translation.
func (r *Recorder) TranslationCompleted(realtime bool, latency time.Duration) {
	if r == nil {
		return
	}
	if realtime {
		r.realtimeTranslations.Add(1)
	} else {
		r.finalTranslations.Add(1)
	}
	r.log.Debug("translation completed", "realtime", realtime, "latency_ms", latency.Milliseconds())
}

// TranslationFailed counts a failed translation request.
func (r *Recorder) TranslationFailed(realtime bool, err error) {
	if r == nil {
		return
	}
	r.translationFailures.Add(1)
	r.log.Debug("translation failed", "realtime", realtime, "error", err)
}

// TranslationCanceled counts a translation discarded before completion.
func (r *Recorder) TranslationCanceled() {
	if r == nil {
		return
	}
	r.canceledTranslations.Add(1)
}

// Snapshot returns the current totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	rotations := make(map[string]uint64, len(r.rotations))
	for k, v := range r.rotations {
		rotations[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		Sessions:             r.sessions.Load(),
		StaleCallbacks:       r.staleCallbacks.Load(),
		Captions:             r.captions.Load(),
		CaptionBytes:         r.captionBytes.Load(),
		RealtimeTranslations: r.realtimeTranslations.Load(),
		FinalTranslations:    r.finalTranslations.Load(),
		TranslationFailures:  r.translationFailures.Load(),
		CanceledTranslations: r.canceledTranslations.Load(),
		Rotations:            rotations,
		Uptime:               time.Since(r.started),
	}
}

// LogSummary writes the totals at info level.
func (r *Recorder) LogSummary() {
	if r == nil {
		return
	}
	s := r.Snapshot()
	r.log.Info("telemetry totals",
		"uptime", s.Uptime.Round(time.Second).String(),
		"sessions", s.Sessions,
		"rotations", s.Rotations,
		"stale_callbacks", s.StaleCallbacks,
		"captions", s.Captions,
		"caption_bytes", s.CaptionBytes,
		"realtime_translations", s.RealtimeTranslations,
		"final_translations", s.FinalTranslations,
		"translation_failures", s.TranslationFailures,
		"canceled_translations", s.CanceledTranslations,
	)
}
