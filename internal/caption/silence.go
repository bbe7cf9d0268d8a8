package caption

import "time"

// SilenceFrames converts a silence timeout into a frame count for a VAD
// source delivering one frame per interval. The result is at least one.
func SilenceFrames(timeout, frameInterval time.Duration) int {
	if frameInterval <= 0 || timeout <= 0 {
		return 1
	}
	n := int((timeout + frameInterval - 1) / frameInterval)
	if n < 1 {
		n = 1
	}
	return n
}

// SilenceTracker counts consecutive non-speech VAD frames.
type SilenceTracker struct {
	threshold int
	silent    int
	speaking  bool
}

// NewSilenceTracker returns a tracker that fires after threshold consecutive
// silence frames.
func NewSilenceTracker(threshold int) *SilenceTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &SilenceTracker{threshold: threshold}
}

// Observe records one frame and reports whether the silence threshold was
// just reached. The counter restarts from zero after firing so that a long
// silence fires once per threshold span rather than on every frame.
func (t *SilenceTracker) Observe(isSpeech bool) bool {
	if isSpeech {
		t.speaking = true
		t.silent = 0
		return false
	}
	t.silent++
	if t.silent < t.threshold {
		return false
	}
	t.silent = 0
	t.speaking = false
	return true
}

// Speaking reports whether speech was heard since the last firing.
func (t *SilenceTracker) Speaking() bool { return t.speaking }

// SilentFrames returns the current consecutive silence count.
func (t *SilenceTracker) SilentFrames() int { return t.silent }

// Reset clears the tracker.
func (t *SilenceTracker) Reset() {
	t.silent = 0
	t.speaking = false
}
