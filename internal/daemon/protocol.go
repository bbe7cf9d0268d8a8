// Package daemon provides the NDJSON protocol spoken over the livcapd Unix
// socket, the client used by the TUI, and the daemon-side server.
package daemon

import "time"

// Commands.
const (
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdStatus    = "status"
	CmdSubscribe = "subscribe"
	CmdCaptions  = "captions"
)

// Event names.
const (
	EventPartial            = "partial"
	EventSegment            = "segment"
	EventStatus             = "status"
	EventError              = "error"
	EventTranslationPartial = "translation_partial"
	EventTranslation        = "translation"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd       string   `json:"cmd"`
	SessionID string   `json:"sessionId,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK                  bool          `json:"ok"`
	SessionID           string        `json:"sessionId,omitempty"`
	Recording           *bool         `json:"recording,omitempty"`
	Segments            *int          `json:"segments,omitempty"`
	PendingTranslations *int          `json:"pendingTranslations,omitempty"`
	Partial             string        `json:"partial,omitempty"`
	Error               string        `json:"error,omitempty"`
	Status              string        `json:"status,omitempty"`
	Captions            []CaptionLine `json:"captions,omitempty"`
}

// CaptionLine is a stored caption returned by the captions command.
type CaptionLine struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Translation    string    `json:"translation,omitempty"`
	SequenceNumber int       `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event          string `json:"event"`
	Text           string `json:"text,omitempty"`
	Original       string `json:"original,omitempty"`
	CaptionID      string `json:"captionId,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	SequenceNumber *int   `json:"sequenceNumber,omitempty"`
	Message        string `json:"message,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Transient      *bool  `json:"transient,omitempty"`
	Recording      *bool  `json:"recording,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building commands.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to an int value.
func IntPtr(n int) *int { return &n }
