// Package archive persists completed translations and audit events to
// SQLite, beyond the in-memory ring buffers.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/history"
)

// Store is a SQLite-backed archive.
type Store struct {
	db     *sql.DB
	sq     sq.StatementBuilderType
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and initialises the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %q: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, sq: sq.StatementBuilder, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS translations (
  id TEXT PRIMARY KEY,
  original TEXT NOT NULL,
  translated TEXT NOT NULL,
  language TEXT NOT NULL,
  channel TEXT NOT NULL DEFAULT '',
  author TEXT NOT NULL DEFAULT '',
  is_ocr INTEGER NOT NULL DEFAULT 0,
  created_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS translations_created ON translations (created_unix_ms);
CREATE INDEX IF NOT EXISTS translations_language ON translations (language);

CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  severity TEXT NOT NULL,
  kind TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  created_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_kind ON events (kind, created_unix_ms);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("archive: init schema: %w", err)
	}
	return nil
}

// AddTranslation stores a completed translation.
func (s *Store) AddTranslation(ctx context.Context, r history.Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	query, args, err := s.sq.Insert("translations").
		Columns("id", "original", "translated", "language", "channel", "author", "is_ocr", "created_unix_ms").
		Values(r.ID.String(), r.Original, r.Translated, r.Language, r.Channel, r.Author, boolToInt(r.OCR), r.Time.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("archive: build insert translation: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("archive: insert translation: %w", err)
	}
	return nil
}

// TranslationQuery filters Translations. Zero fields do not filter.
type TranslationQuery struct {
	Language string
	Channel  string
	Since    time.Time
	Limit    int
}

// Translations returns archived translations, newest first.
func (s *Store) Translations(ctx context.Context, q TranslationQuery) ([]history.Record, error) {
	b := s.sq.Select("id", "original", "translated", "language", "channel", "author", "is_ocr", "created_unix_ms").
		From("translations").
		OrderBy("created_unix_ms DESC", "rowid DESC")
	if q.Language != "" {
		b = b.Where(sq.Eq{"language": q.Language})
	}
	if q.Channel != "" {
		b = b.Where(sq.Eq{"channel": q.Channel})
	}
	if !q.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"created_unix_ms": q.Since.UnixMilli()})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("archive: build select translations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query translations: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var (
			r       history.Record
			id      string
			isOCR   int
			created int64
		)
		if err := rows.Scan(&id, &r.Original, &r.Translated, &r.Language, &r.Channel, &r.Author, &isOCR, &created); err != nil {
			return nil, fmt.Errorf("archive: scan translation: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.OCR = isOCR != 0
		r.Time = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LanguageCounts returns the number of archived translations per language.
func (s *Store) LanguageCounts(ctx context.Context) (map[string]int64, error) {
	query, args, err := s.sq.Select("language", "COUNT(*)").
		From("translations").
		GroupBy("language").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("archive: build language counts: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query language counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			lang string
			n    int64
		)
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, fmt.Errorf("archive: scan language count: %w", err)
		}
		out[lang] = n
	}
	return out, rows.Err()
}

// AddEvent stores an event log entry.
func (s *Store) AddEvent(ctx context.Context, e eventlog.Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	query, args, err := s.sq.Insert("events").
		Columns("severity", "kind", "message", "created_unix_ms").
		Values(string(e.Severity), string(e.Kind), e.Message, e.Time.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("archive: build insert event: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("archive: insert event: %w", err)
	}
	return nil
}

// Events returns archived events of the given kind, newest first. An empty
// kind returns all events.
func (s *Store) Events(ctx context.Context, kind eventlog.Kind, limit int) ([]eventlog.Entry, error) {
	b := s.sq.Select("severity", "kind", "message", "created_unix_ms").
		From("events").
		OrderBy("created_unix_ms DESC", "id DESC")
	if kind != "" {
		b = b.Where(sq.Eq{"kind": string(kind)})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("archive: build select events: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query events: %w", err)
	}
	defer rows.Close()

	var out []eventlog.Entry
	for rows.Next() {
		var (
			e        eventlog.Entry
			severity string
			k        string
			created  int64
		)
		if err := rows.Scan(&severity, &k, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("archive: scan event: %w", err)
		}
		e.Severity = eventlog.Severity(severity)
		e.Kind = eventlog.Kind(k)
		e.Type = severity
		if k != "" {
			e.Type = k
		}
		e.Time = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sink returns an event log sink archiving audit and error entries.
func (s *Store) Sink() eventlog.Sink {
	return eventlog.SinkFunc(func(e eventlog.Entry) {
		if e.Kind != eventlog.KindAudit && e.Severity != eventlog.SeverityError {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.AddEvent(ctx, e); err != nil {
			s.logger.Error("archive: failed to store event", "err", err)
		}
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
