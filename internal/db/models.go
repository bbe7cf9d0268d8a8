// Package db stores recording sessions and their translated captions in
// SQLite.
package db

import "time"

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session represents a recording session.
type Session struct {
	ID        string
	Locale    string
	StartedAt time.Time
	EndedAt   *time.Time
	Title     string
	Status    string
	CreatedAt time.Time
}

// Caption is one finalized sentence and, once it lands, its translation.
type Caption struct {
	ID             string
	SessionID      string
	Text           string
	Translation    string
	SequenceNumber int
	CreatedAt      time.Time
	TranslatedAt   *time.Time
}
