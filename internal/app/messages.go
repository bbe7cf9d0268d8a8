package app

import (
	"time"

	"github.com/w93163red/LivCap-Translate/internal/daemon"
	"github.com/w93163red/LivCap-Translate/internal/db"
)

// DaemonConnectedMsg is sent when both daemon connections are established.
type DaemonConnectedMsg struct {
	Client   *daemon.Client // for commands (start, stop, status, captions)
	EvClient *daemon.Client // for event subscription
}

// DaemonConnectErrorMsg is sent when the daemon connection fails.
type DaemonConnectErrorMsg struct {
	Err error
}

// DaemonEventMsg wraps a streamed event from the daemon.
type DaemonEventMsg struct {
	Event daemon.Event
}

// DaemonEventErrorMsg is sent when the event stream encounters an error.
type DaemonEventErrorMsg struct {
	Err error
}

// StatusResponseMsg carries the response to a status command.
type StatusResponseMsg struct {
	Response daemon.Response
}

// StartResponseMsg carries the response to a start command.
type StartResponseMsg struct {
	Response daemon.Response
}

// StopResponseMsg carries the response to a stop command.
type StopResponseMsg struct {
	Response daemon.Response
}

// HistoryLoadedMsg carries stored captions for a session. Live is true when
// they belong to the session the daemon is recording (or last recorded),
// false when the user opened an older session from the sessions panel.
type HistoryLoadedMsg struct {
	SessionID string
	Entries   []TranscriptEntry
	Live      bool
}

// SessionsLoadedMsg carries recent sessions read from SQLite.
type SessionsLoadedMsg struct {
	Sessions []db.Session
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// ReconnectTickMsg triggers a reconnection attempt.
type ReconnectTickMsg struct{}

// StatusTickMsg triggers a status poll while recording.
type StatusTickMsg struct{}

type storeOpenedMsg struct{ store *db.Store }

func entriesFromLines(lines []daemon.CaptionLine) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(lines))
	for _, l := range lines {
		out = append(out, TranscriptEntry{
			CaptionID:   l.ID,
			Text:        l.Text,
			Translation: l.Translation,
			Timestamp:   l.CreatedAt.Local(),
			SeqNum:      l.SequenceNumber,
		})
	}
	return out
}

func entriesFromCaptions(captions []db.Caption) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(captions))
	for _, c := range captions {
		out = append(out, TranscriptEntry{
			CaptionID:   c.ID,
			Text:        c.Text,
			Translation: c.Translation,
			Timestamp:   c.CreatedAt.Local(),
			SeqNum:      c.SequenceNumber,
		})
	}
	return out
}

// shortTime formats a timestamp for the sessions panel.
func shortTime(t time.Time) string {
	return t.Local().Format("Jan 02 15:04")
}
