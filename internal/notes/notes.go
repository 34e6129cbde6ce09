// Package notes keeps dictated notes and reminders in SQLite.
package notes

import (
	"context"
	"database/sql"
	"fmt"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"luna/internal/apperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reminders (
	id           TEXT PRIMARY KEY,
	text         TEXT NOT NULL,
	due_at       TEXT,
	created_at   TEXT NOT NULL,
	announced_at TEXT
);

CREATE INDEX IF NOT EXISTS reminders_pending ON reminders (announced_at, due_at);
`

type Note struct {
	ID        uuid.UUID
	Text      string
	CreatedAt time.Time
}

type Reminder struct {
	ID        uuid.UUID
	Text      string
	Due       time.Time // zero when undated
	CreatedAt time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Database(apperr.DatabaseLoad, "open notes db", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=2000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, apperr.Database(apperr.DatabaseLoad, "migrate notes db", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// stampLayout has fixed width so stored stamps order as text.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

func parseStamp(s string) time.Time {
	t, err := time.Parse(stampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) TakeNote(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", apperr.Invalid("empty note")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, text, created_at) VALUES (?, ?, ?)`,
		uuid.NewString(), text, stamp(s.now()))
	if err != nil {
		return "", apperr.Database(apperr.DatabaseSave, "save note", err)
	}
	log.Info("Note saved", "chars", len(text))
	return "Noted: " + text, nil
}

func (s *Store) CreateReminder(ctx context.Context, text string, due time.Time) (string, error) {
	if text == "" {
		return "", apperr.Invalid("empty reminder")
	}
	var dueAt any
	if !due.IsZero() {
		dueAt = stamp(due)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, text, due_at, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), text, dueAt, stamp(s.now()))
	if err != nil {
		return "", apperr.Database(apperr.DatabaseSave, "save reminder", err)
	}
	log.Info("Reminder saved", "due", due)
	if due.IsZero() {
		return "I'll remember to " + text, nil
	}
	return fmt.Sprintf("I'll remind you to %s at %s", text, due.Local().Format("15:04")), nil
}

// Notes returns the newest notes first.
func (s *Store) Notes(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at FROM notes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Database(apperr.DatabaseLoad, "list notes", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var id, text, created string
		if err := rows.Scan(&id, &text, &created); err != nil {
			return nil, apperr.Database(apperr.DatabaseCorrupted, "scan note", err)
		}
		out = append(out, Note{ID: uuid.MustParse(id), Text: text, CreatedAt: parseStamp(created)})
	}
	return out, rows.Err()
}

func (s *Store) reminders(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database(apperr.DatabaseLoad, "list reminders", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var id, text, created string
		var due sql.NullString
		if err := rows.Scan(&id, &text, &due, &created); err != nil {
			return nil, apperr.Database(apperr.DatabaseCorrupted, "scan reminder", err)
		}
		r := Reminder{ID: uuid.MustParse(id), Text: text, CreatedAt: parseStamp(created)}
		if due.Valid {
			r.Due = parseStamp(due.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Pending returns reminders not yet announced, dated ones first by due time.
func (s *Store) Pending(ctx context.Context) ([]Reminder, error) {
	return s.reminders(ctx,
		`SELECT id, text, due_at, created_at FROM reminders
		 WHERE announced_at IS NULL
		 ORDER BY due_at IS NULL, due_at, created_at`)
}

// Due returns unannounced reminders due at or before now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	return s.reminders(ctx,
		`SELECT id, text, due_at, created_at FROM reminders
		 WHERE announced_at IS NULL AND due_at IS NOT NULL AND due_at <= ?
		 ORDER BY due_at`, stamp(now))
}

func (s *Store) MarkAnnounced(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET announced_at = ? WHERE id = ?`, stamp(s.now()), id.String())
	if err != nil {
		return apperr.Database(apperr.DatabaseSave, "mark reminder", err)
	}
	return nil
}

// Poll announces due reminders every interval until ctx ends. A reminder
// is marked only after announce returns.
func (s *Store) Poll(ctx context.Context, interval time.Duration, announce func(Reminder)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.announceDue(ctx, announce)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Store) announceDue(ctx context.Context, announce func(Reminder)) {
	due, err := s.Due(ctx, s.now())
	if err != nil {
		log.Error("Reminder poll failed", "error", err)
		return
	}
	for _, r := range due {
		announce(r)
		if err := s.MarkAnnounced(ctx, r.ID); err != nil {
			log.Error("Reminder not marked", "id", r.ID, "error", err)
		}
	}
}
