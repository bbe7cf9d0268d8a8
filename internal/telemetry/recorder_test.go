package telemetry

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if snapshot := recorder.Snapshot(); snapshot.Sessions != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	recorder.SessionStarted("s-1")
	recorder.SessionStarted("s-2")
	recorder.Rotated("result-final")
	recorder.Rotated("no-speech")
	recorder.Rotated("no-speech")
	recorder.StaleCallback()
	recorder.CaptionFinalized("Hello there.")
	recorder.TranslationCompleted(true, 10*time.Millisecond)
	recorder.TranslationCompleted(false, 20*time.Millisecond)
	recorder.TranslationFailed(false, errors.New("boom"))
	recorder.TranslationCanceled()

	snapshot := recorder.Snapshot()
	if snapshot.Sessions != 2 {
		t.Fatalf("unexpected Sessions: %d", snapshot.Sessions)
	}
	if snapshot.Rotations["no-speech"] != 2 || snapshot.Rotations["result-final"] != 1 {
		t.Fatalf("unexpected Rotations: %v", snapshot.Rotations)
	}
	if snapshot.StaleCallbacks != 1 {
		t.Fatalf("unexpected StaleCallbacks: %d", snapshot.StaleCallbacks)
	}
	if snapshot.Captions != 1 || snapshot.CaptionBytes != uint64(len("Hello there.")) {
		t.Fatalf("unexpected captions: %d/%d", snapshot.Captions, snapshot.CaptionBytes)
	}
	if snapshot.RealtimeTranslations != 1 || snapshot.FinalTranslations != 1 {
		t.Fatalf("unexpected translations: %+v", snapshot)
	}
	if snapshot.TranslationFailures != 1 || snapshot.CanceledTranslations != 1 {
		t.Fatalf("unexpected failures: %+v", snapshot)
	}

	snapshot.Rotations["no-speech"] = 99
	if recorder.Snapshot().Rotations["no-speech"] != 2 {
		t.Fatal("snapshot rotations must be a copy")
	}
	recorder.LogSummary()
}

func TestNilRecorderIsNoop(t *testing.T) {
	var recorder *Recorder
	recorder.SessionStarted("s")
	recorder.Rotated("x")
	recorder.CaptionFinalized("x")
	recorder.TranslationFailed(true, nil)
	recorder.LogSummary()
	if s := recorder.Snapshot(); s.Sessions != 0 {
		t.Fatalf("nil recorder snapshot = %+v", s)
	}
}
