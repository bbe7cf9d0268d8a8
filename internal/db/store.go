package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store provides access to the caption database. Stores opened with
// OpenReadOnly reject writes.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database for reading and writing, creating it and applying
// pending migrations as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenReadOnly opens an existing database in read-only mode.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts an active session.
func (s *Store) CreateSession(id, locale string) (*Session, error) {
	now := s.now()
	ts := unixFromTime(now)
	if _, err := s.db.Exec(`
		INSERT INTO sessions (id, locale, startedAt, status, createdAt)
		VALUES (?, ?, ?, ?, ?)
	`, id, locale, ts, StatusActive, ts); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &Session{ID: id, Locale: locale, StartedAt: now, Status: StatusActive, CreatedAt: now}, nil
}

// EndSession marks a session completed. Ending an ended session is a no-op.
func (s *Store) EndSession(id string) error {
	if _, err := s.db.Exec(`
		UPDATE sessions SET endedAt = ?, status = ?
		WHERE id = ? AND status = ?
	`, unixFromTime(s.now()), StatusCompleted, id, StatusActive); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// EndActiveSessions completes sessions left active by a daemon that did not
// shut down cleanly.
func (s *Store) EndActiveSessions() (int, error) {
	res, err := s.db.Exec(`
		UPDATE sessions SET endedAt = COALESCE(
			(SELECT MAX(createdAt) FROM captions WHERE captions.sessionId = sessions.id),
			startedAt), status = ?
		WHERE status = ?
	`, StatusCompleted, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("end active sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// InsertCaption stores a finalized caption.
func (s *Store) InsertCaption(c Caption) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := s.db.Exec(`
		INSERT INTO captions (id, sessionId, text, sequenceNumber, createdAt)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.SessionID, c.Text, c.SequenceNumber, unixFromTime(created)); err != nil {
		return fmt.Errorf("insert caption: %w", err)
	}
	return nil
}

// ErrCaptionNotFound is returned by SetTranslation for an unknown caption.
var ErrCaptionNotFound = errors.New("caption not found")

// SetTranslation records the finalized translation of a caption.
func (s *Store) SetTranslation(captionID, translation string) error {
	res, err := s.db.Exec(`
		UPDATE captions SET translation = ?, translatedAt = ?
		WHERE id = ?
	`, translation, unixFromTime(s.now()), captionID)
	if err != nil {
		return fmt.Errorf("set translation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set translation %s: %w", captionID, ErrCaptionNotFound)
	}
	return nil
}

const captionColumns = `id, sessionId, text, translation, sequenceNumber, createdAt, translatedAt`

// CaptionsForSession returns a session's captions in sequence order.
func (s *Store) CaptionsForSession(sessionID string) ([]Caption, error) {
	rows, err := s.db.Query(`
		SELECT `+captionColumns+`
		FROM captions
		WHERE sessionId = ?
		ORDER BY sequenceNumber ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query captions: %w", err)
	}
	return scanCaptions(rows)
}

// RecentCaptions returns the last limit captions of a session in sequence
// order.
func (s *Store) RecentCaptions(sessionID string, limit int) ([]Caption, error) {
	rows, err := s.db.Query(`
		SELECT `+captionColumns+` FROM (
			SELECT `+captionColumns+`
			FROM captions
			WHERE sessionId = ?
			ORDER BY sequenceNumber DESC
			LIMIT ?
		) ORDER BY sequenceNumber ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent captions: %w", err)
	}
	return scanCaptions(rows)
}

// SearchCaptions finds captions whose text or translation contains query,
// newest first.
func (s *Store) SearchCaptions(query string, limit int) ([]Caption, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.Query(`
		SELECT `+captionColumns+`
		FROM captions
		WHERE text LIKE ? ESCAPE '\' OR translation LIKE ? ESCAPE '\'
		ORDER BY createdAt DESC, sequenceNumber DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search captions: %w", err)
	}
	return scanCaptions(rows)
}

func scanCaptions(rows *sql.Rows) ([]Caption, error) {
	defer rows.Close()

	var captions []Caption
	for rows.Next() {
		var c Caption
		var createdAt float64
		var translation sql.NullString
		var translatedAt sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Text, &translation,
			&c.SequenceNumber, &createdAt, &translatedAt); err != nil {
			return nil, fmt.Errorf("scan caption: %w", err)
		}
		c.CreatedAt = timeFromUnix(createdAt)
		c.Translation = translation.String
		if translatedAt.Valid {
			t := timeFromUnix(translatedAt.Float64)
			c.TranslatedAt = &t
		}
		captions = append(captions, c)
	}
	return captions, rows.Err()
}

const sessionColumns = `id, locale, startedAt, endedAt, title, status, createdAt`

// ActiveSession returns the most recent active session, if any.
func (s *Store) ActiveSession() (*Session, error) {
	return s.scanSession(s.db.QueryRow(`
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'active'
		ORDER BY startedAt DESC
		LIMIT 1
	`))
}

// LatestSession returns the most recent session regardless of status.
func (s *Store) LatestSession() (*Session, error) {
	return s.scanSession(s.db.QueryRow(`
		SELECT ` + sessionColumns + `
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT 1
	`))
}

// GetSession returns a session by id, or nil when it does not exist.
func (s *Store) GetSession(id string) (*Session, error) {
	return s.scanSession(s.db.QueryRow(`
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = ?
	`, id))
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSession(row scanner) (*Session, error) {
	var sess Session
	var startedAt, createdAt float64
	var endedAt sql.NullFloat64
	var title sql.NullString

	if err := row.Scan(&sess.ID, &sess.Locale, &startedAt, &endedAt,
		&title, &sess.Status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.StartedAt = timeFromUnix(startedAt)
	sess.CreatedAt = timeFromUnix(createdAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	if title.Valid {
		sess.Title = title.String
	}

	return &sess, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
