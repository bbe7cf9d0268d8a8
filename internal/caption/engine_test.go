package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/w93163red/LivCap-Translate/internal/events"
	"github.com/w93163red/LivCap-Translate/internal/telemetry"
)

type fakeTask struct {
	canceled bool
	ended    bool
}

func (t *fakeTask) Cancel()   { t.canceled = true }
func (t *fakeTask) EndAudio() { t.ended = true }

type fakeRecognizer struct {
	mu       sync.Mutex
	ids      []string
	cbs      map[string]Callbacks
	tasks    map[string]*fakeTask
	err      error
	failFrom int

	// gate, when set, holds Open calls from gateFrom onwards until closed.
	gate     chan struct{}
	gateFrom int
	waiting  bool
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{cbs: map[string]Callbacks{}, tasks: map[string]*fakeTask{}}
}

func (r *fakeRecognizer) Open(_ context.Context, id string, cb Callbacks) (RecognitionTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil && len(r.ids) >= r.gateFrom {
		gate := r.gate
		r.waiting = true
		r.mu.Unlock()
		<-gate
		r.mu.Lock()
		r.waiting = false
	}
	if r.err != nil && len(r.ids) >= r.failFrom {
		return nil, r.err
	}
	r.ids = append(r.ids, id)
	r.cbs[id] = cb
	task := &fakeTask{}
	r.tasks[id] = task
	return task, nil
}

func (r *fakeRecognizer) session(i int) (string, Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids[i]
	return id, r.cbs[id]
}

func (r *fakeRecognizer) blocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

func (r *fakeRecognizer) opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(ev events.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) ofKind(k events.Kind) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) texts(k events.Kind) []string {
	var out []string
	for _, ev := range s.ofKind(k) {
		out = append(out, ev.Text)
	}
	return out
}

type recordingListener struct {
	updates   []string
	finalized []string
}

func (l *recordingListener) OnTranscriptionUpdate(text string) { l.updates = append(l.updates, text) }
func (l *recordingListener) OnSentenceFinalized(text, _ string) {
	l.finalized = append(l.finalized, text)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeRecognizer, *recordingSink, *recordingListener) {
	t.Helper()
	rec := newFakeRecognizer()
	sink := &recordingSink{}
	listener := &recordingListener{}
	e := NewEngine(cfg, rec,
		WithSink(sink),
		WithListener(listener),
		WithLogger(testLogger()),
		WithIDGenerator(sequentialIDs()),
	)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, rec, sink, listener
}

func TestEngineStartEmitsStatus(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{SilenceFrames: 10})
	if rec.opened() != 1 {
		t.Fatalf("opened %d sessions", rec.opened())
	}
	st := sink.ofKind(events.StatusChanged)
	if len(st) != 1 || st[0].Text != StatusRecording || !*st[0].Recording {
		t.Fatalf("status events = %+v", st)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v", err)
	}
	if s := e.Status(); !s.Recording || s.SessionID == "" || s.State != StateActive {
		t.Fatalf("Status = %+v", s)
	}
}

func TestEngineStartFailures(t *testing.T) {
	for _, want := range []error{ErrBackendUnavailable, ErrNotAuthorized} {
		rec := newFakeRecognizer()
		rec.err = want
		sink := &recordingSink{}
		e := NewEngine(Config{}, rec, WithSink(sink), WithLogger(testLogger()))
		err := e.Start(context.Background())
		if !errors.Is(err, want) {
			t.Fatalf("Start = %v, want %v", err, want)
		}
		if e.Running() {
			t.Fatal("engine must stay idle after failed start")
		}
		if len(sink.ofKind(events.StatusChanged)) != 0 {
			t.Fatal("failed start must not emit status")
		}
	}
}

func TestEngineHypothesisFlow(t *testing.T) {
	_, rec, sink, listener := newTestEngine(t, Config{SilenceFrames: 10})
	_, cb := rec.session(0)

	cb.OnHypothesis(words("Hello world. How"))
	cb.OnHypothesis(words("Hello world. How are"))

	finals := sink.ofKind(events.SentenceFinalized)
	if len(finals) != 1 || finals[0].Text != "Hello world." || finals[0].Sequence != 1 {
		t.Fatalf("finalized = %+v", finals)
	}
	if finals[0].CaptionID == "" {
		t.Fatal("finalized sentence needs a caption id")
	}
	if got := sink.texts(events.TranscriptionUpdate); len(got) != 2 || got[1] != "How are" {
		t.Fatalf("updates = %q", got)
	}
	if len(listener.finalized) != 1 || len(listener.updates) != 2 {
		t.Fatalf("listener = %+v", listener)
	}
}

func TestEngineIgnoresStaleCallbacks(t *testing.T) {
	rec := newFakeRecognizer()
	sink := &recordingSink{}
	metrics := telemetry.NewRecorder(testLogger())
	e := NewEngine(Config{}, rec, WithSink(sink), WithLogger(testLogger()), WithRecorder(metrics))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	oldID, old := rec.session(0)
	old.OnFinal()
	if rec.opened() != 2 {
		t.Fatalf("opened %d sessions, want rotation", rec.opened())
	}
	if !rec.tasks[oldID].canceled {
		t.Fatal("rotated task must be canceled")
	}

	before := len(sink.events)
	old.OnHypothesis(words("Ghost text. From the past"))
	old.OnError(errors.New("late failure"))
	old.OnFinal()
	if len(sink.events) != before {
		t.Fatalf("stale callbacks emitted %d events", len(sink.events)-before)
	}
	if rec.opened() != 2 {
		t.Fatal("stale final must not rotate")
	}
	if e.Status().Residual != "" {
		t.Fatal("stale hypothesis mutated state")
	}
	if metrics.Snapshot().StaleCallbacks != 3 {
		t.Fatalf("StaleCallbacks = %d", metrics.Snapshot().StaleCallbacks)
	}
}

func TestEngineResultFinalFinalizesResidual(t *testing.T) {
	_, rec, sink, _ := newTestEngine(t, Config{})
	_, cb := rec.session(0)
	cb.OnHypothesis(words("Thanks for coming"))
	cb.OnFinal()

	if got := sink.texts(events.SentenceFinalized); len(got) != 1 || got[0] != "Thanks for coming" {
		t.Fatalf("finalized = %q", got)
	}
	if updates := sink.texts(events.TranscriptionUpdate); updates[len(updates)-1] != "" {
		t.Fatalf("residual must be cleared, updates = %q", updates)
	}
}

func TestEngineNoSpeechRotatesSilently(t *testing.T) {
	_, rec, sink, _ := newTestEngine(t, Config{})
	_, cb := rec.session(0)
	cb.OnHypothesis(words("partial"))

	before := len(sink.events)
	cb.OnError(fmt.Errorf("backend: %w", ErrNoSpeechDetected))

	if rec.opened() != 2 {
		t.Fatalf("opened %d sessions", rec.opened())
	}
	if len(sink.events) != before {
		t.Fatalf("no-speech rotation emitted %+v", sink.events[before:])
	}
}

func TestEngineNoSpeechEscalation(t *testing.T) {
	_, rec, sink, _ := newTestEngine(t, Config{MaxNoSpeechRotations: 3})
	for i := 0; i < 3; i++ {
		_, cb := rec.session(i)
		cb.OnError(ErrNoSpeechDetected)
	}
	errs := sink.ofKind(events.Error)
	if len(errs) != 1 || errs[0].ErrorKind != KindNoSpeech {
		t.Fatalf("errors = %+v", errs)
	}
}

func TestEngineErrorRecovery(t *testing.T) {
	_, rec, sink, _ := newTestEngine(t, Config{})
	_, cb := rec.session(0)
	cb.OnHypothesis(words("We were saying"))
	cb.OnError(&TransportError{Code: "1006", Err: errors.New("connection reset")})

	if got := sink.texts(events.SentenceFinalized); len(got) != 1 || got[0] != "We were saying" {
		t.Fatalf("finalized = %q", got)
	}
	errs := sink.ofKind(events.Error)
	if len(errs) != 1 || errs[0].ErrorKind != KindTransport {
		t.Fatalf("errors = %+v", errs)
	}
	if rec.opened() != 2 {
		t.Fatalf("opened %d sessions", rec.opened())
	}
	_, next := rec.session(1)
	next.OnHypothesis(words("Again. now"))
	if got := sink.texts(events.SentenceFinalized); len(got) != 2 || got[1] != "Again." {
		t.Fatalf("finalized after recovery = %q", got)
	}
}

func TestEngineRotationFailureGoesIdle(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{})
	rec.mu.Lock()
	rec.err = ErrBackendUnavailable
	rec.failFrom = 1
	rec.mu.Unlock()

	_, cb := rec.session(0)
	cb.OnFinal()
	if e.Running() {
		t.Fatal("engine should be idle after failed reopen")
	}
	errs := sink.ofKind(events.Error)
	if len(errs) != 1 || errs[0].ErrorKind != KindBackendUnavailable {
		t.Fatalf("errors = %+v", errs)
	}
}

func TestEngineSilenceFinalizes(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{SilenceFrames: 10})
	_, cb := rec.session(0)

	// Silence with nothing to finalize is a no-op.
	for i := 0; i < 10; i++ {
		e.Frame(false, i)
	}
	if len(sink.ofKind(events.SentenceFinalized)) != 0 {
		t.Fatal("finalized with empty residual")
	}

	e.Frame(true, 10)
	cb.OnHypothesis(words("so that is the plan"))
	for i := 11; i < 20; i++ {
		e.Frame(false, i)
	}
	if len(sink.ofKind(events.SentenceFinalized)) != 0 {
		t.Fatal("finalized before threshold")
	}
	e.Frame(false, 20)
	if got := sink.texts(events.SentenceFinalized); len(got) != 1 || got[0] != "so that is the plan" {
		t.Fatalf("finalized = %q", got)
	}
	e.Frame(false, 21)
	if len(sink.ofKind(events.SentenceFinalized)) != 1 {
		t.Fatal("extra silence frame finalized again")
	}

	// The session keeps running and continues after the flushed text.
	cb.OnHypothesis(words("so that is the plan okay"))
	if updates := sink.texts(events.TranscriptionUpdate); updates[len(updates)-1] != "okay" {
		t.Fatalf("updates = %q", updates)
	}
}

func TestEngineStopFinalizesResidual(t *testing.T) {
	rec := newFakeRecognizer()
	sink := &recordingSink{}
	e := NewEngine(Config{}, rec, WithSink(sink), WithLogger(testLogger()))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	id, cb := rec.session(0)
	cb.OnHypothesis(words("last words"))
	e.Stop()

	if !rec.tasks[id].canceled || !rec.tasks[id].ended {
		t.Fatalf("task = %+v", rec.tasks[id])
	}
	if got := sink.texts(events.SentenceFinalized); len(got) != 1 || got[0] != "last words" {
		t.Fatalf("finalized = %q", got)
	}
	st := sink.ofKind(events.StatusChanged)
	if last := st[len(st)-1]; last.Text != StatusIdle || *last.Recording {
		t.Fatalf("last status = %+v", last)
	}
	cb.OnHypothesis(words("after stop. more"))
	if len(sink.ofKind(events.SentenceFinalized)) != 1 {
		t.Fatal("callback after stop was applied")
	}
	e.Stop()
}

func TestEngineMaxDurationWatchdog(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	rec := newFakeRecognizer()
	sink := &recordingSink{}
	e := NewEngine(Config{MaxSessionDuration: time.Minute, WatchdogInterval: time.Hour}, rec,
		WithSink(sink), WithLogger(testLogger()), WithClock(clock))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	_, cb := rec.session(0)
	cb.OnHypothesis(words("a long lecture"))

	advance(30 * time.Second)
	e.checkSessionAge()
	if rec.opened() != 1 {
		t.Fatal("rotated before max duration")
	}

	advance(31 * time.Second)
	e.checkSessionAge()
	if rec.opened() != 2 {
		t.Fatalf("opened %d sessions, want rotation", rec.opened())
	}
	if got := sink.texts(events.SentenceFinalized); len(got) != 1 || got[0] != "a long lecture" {
		t.Fatalf("finalized = %q", got)
	}
}

func TestEngineForceFinalizeSplitsLongResidual(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{SplitLongCaptions: 10})
	_, cb := rec.session(0)
	cb.OnHypothesis(Hypothesis{Text: "This is one. This is two"})
	e.ForceFinalize()
	got := sink.texts(events.SentenceFinalized)
	if len(got) != 2 || got[0] != "This is one." || got[1] != "This is two" {
		t.Fatalf("finalized = %q", got)
	}
	finals := sink.ofKind(events.SentenceFinalized)
	if finals[0].CaptionID == finals[1].CaptionID {
		t.Fatal("caption ids must be unique")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

// slowReopen makes the next Open block and triggers a rotation on session 0.
// It returns a func that releases Open and waits for the rotation to end.
func slowReopen(t *testing.T, rec *fakeRecognizer) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	rec.mu.Lock()
	rec.gate = gate
	rec.gateFrom = 1
	rec.mu.Unlock()

	_, cb := rec.session(0)
	done := make(chan struct{})
	go func() {
		cb.OnFinal()
		close(done)
	}()
	waitFor(t, rec.blocked)

	var once sync.Once
	release = func() {
		once.Do(func() { close(gate) })
		<-done
	}
	t.Cleanup(release)
	return release
}

func TestEngineFramesNotBlockedBySlowOpen(t *testing.T) {
	e, rec, _, _ := newTestEngine(t, Config{SilenceFrames: 3})
	release := slowReopen(t, rec)

	framed := make(chan EngineStatus, 1)
	go func() {
		for i := 0; i < 10; i++ {
			e.Frame(i%2 == 0, i)
		}
		framed <- e.Status()
	}()
	select {
	case st := <-framed:
		if !st.Recording || st.State != StateRotating {
			t.Fatalf("Status during open = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("VAD frames blocked while a session was opening")
	}

	release()
	if st := e.Status(); st.State != StateActive || st.SessionID == "" {
		t.Fatalf("Status after open = %+v", st)
	}
	if rec.opened() != 2 {
		t.Fatalf("opened %d sessions", rec.opened())
	}
}

func TestEngineStopDuringSlowOpen(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{})
	release := slowReopen(t, rec)

	e.Stop()
	if e.Running() {
		t.Fatal("engine still running after Stop")
	}
	release()

	if e.Running() {
		t.Fatal("late open revived the engine")
	}
	id, _ := rec.session(1)
	if !rec.tasks[id].canceled {
		t.Fatal("session opened after Stop must be canceled")
	}
	st := sink.ofKind(events.StatusChanged)
	if last := st[len(st)-1]; last.Text != StatusIdle {
		t.Fatalf("last status = %+v", last)
	}
}

// Published captions plus the published residual cover the whole hypothesis;
// only the whitespace between them is dropped.
func TestEngineCaptionsCoverHypothesis(t *testing.T) {
	full := "Good morning everyone. Today we talk about Go. It is fast, right? Yes it is! And the end"
	for _, tc := range []struct {
		name string
		hyp  func(string) Hypothesis
	}{
		{"punctuation inside segments", words},
		{"punctuation between segments", bare},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, rec, sink, _ := newTestEngine(t, Config{})
			_, cb := rec.session(0)
			fields := strings.Fields(full)
			for i := 1; i <= len(fields); i++ {
				cb.OnHypothesis(tc.hyp(strings.Join(fields[:i], " ")))
			}

			captions := sink.texts(events.SentenceFinalized)
			updates := sink.texts(events.TranscriptionUpdate)
			residual := updates[len(updates)-1]
			if residual != e.Status().Residual {
				t.Fatalf("last update %q, status residual %q", residual, e.Status().Residual)
			}
			if got := strings.Join(append(captions, residual), " "); got != full {
				t.Fatalf("captions %q + residual %q = %q", captions, residual, got)
			}
			if len(captions) != 4 {
				t.Fatalf("captions = %q", captions)
			}
		})
	}
}

func TestEngineCaptionsCoverCJKHypothesis(t *testing.T) {
	e, rec, sink, _ := newTestEngine(t, Config{})
	_, cb := rec.session(0)
	cb.OnHypothesis(Hypothesis{Text: "你好。世界", Segments: []Segment{{0, 6}, {9, 15}}})
	cb.OnHypothesis(Hypothesis{Text: "你好。世界很大。我们", Segments: []Segment{{0, 6}, {9, 15}, {15, 21}, {24, 30}}})

	captions := sink.texts(events.SentenceFinalized)
	if !reflect.DeepEqual(captions, []string{"你好。", "世界很大。"}) {
		t.Fatalf("captions = %q", captions)
	}
	if got := strings.Join(captions, "") + e.Status().Residual; got != "你好。世界很大。我们" {
		t.Fatalf("concatenation = %q", got)
	}
}
