package caption

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned by Start when the recognition backend
	// cannot be reached. It is not retried.
	ErrBackendUnavailable = errors.New("caption: recognition backend unavailable")

	// ErrNotAuthorized is returned by Start when the backend rejects the
	// credentials or speech recognition permission is missing.
	ErrNotAuthorized = errors.New("caption: recognition not authorized")

	// ErrNoSpeechDetected is reported by a backend when a session ended
	// without hearing speech. It is expected while idle.
	ErrNoSpeechDetected = errors.New("caption: no speech detected")

	// ErrAlreadyRunning is returned by Start when a session is already active.
	ErrAlreadyRunning = errors.New("caption: already running")
)

// TransportError wraps a recognition failure that is recovered by rotating
// the session.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("recognition transport (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("recognition transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Error kinds carried by Error events.
const (
	KindBackendUnavailable = "backend_unavailable"
	KindNotAuthorized      = "not_authorized"
	KindNoSpeech           = "no_speech"
	KindTransport          = "transport"
)

// KindOf classifies err into one of the error kinds. Unknown errors are
// treated as transport failures.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBackendUnavailable):
		return KindBackendUnavailable
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrNoSpeechDetected):
		return KindNoSpeech
	default:
		return KindTransport
	}
}
