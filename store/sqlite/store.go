// Package sqlite provides a SQLite-backed Store using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/envelope"
	relaystore "github.com/vyasoai/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store implements store.Store on a single relay_buffer table.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newStore(db *sql.DB, path string, opts []Option) *Store {
	s := &Store{db: db, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (creating if needed) the database at path, applies the
// durability pragmas and runs migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("relay/sqlite: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("relay/sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("relay/sqlite: open: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	s := newStore(db, path, opts)
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. The caller owns the pragmas; Migrate is run.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := newStore(db, "", opts)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database path, empty for stores built with New.
func (s *Store) Path() string { return s.path }

func (s *Store) init(ctx context.Context) error {
	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("relay/sqlite: set journal_mode=wal: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("relay/sqlite: journal_mode=%q, want wal", journalMode)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous=FULL;"); err != nil {
		return fmt.Errorf("relay/sqlite: set synchronous=full: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("relay/sqlite: set busy_timeout: %w", err)
	}
	return s.Migrate(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Put inserts or replaces the entry.
func (s *Store) Put(ctx context.Context, e *buffer.Entry) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	body, err := json.Marshal(e.Body)
	if err != nil {
		return fmt.Errorf("relay/sqlite: put: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO relay_buffer (id, body, attempts, last_attempt, next_due)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    body         = excluded.body,
    attempts     = excluded.attempts,
    last_attempt = excluded.last_attempt,
    next_due     = excluded.next_due`,
		e.ID, string(body), e.Attempts, e.LastAttempt, nullableDue(e.NextDue))
	if err != nil {
		return fmt.Errorf("relay/sqlite: put: %w", err)
	}
	return nil
}

// GetAll returns every entry. Rows whose body no longer decodes are logged
// and skipped so one bad row cannot stall the drain.
func (s *Store) GetAll(ctx context.Context) ([]*buffer.Entry, error) {
	if s.closed.Load() {
		return nil, relay.ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, body, attempts, last_attempt, next_due
FROM relay_buffer`)
	if err != nil {
		return nil, fmt.Errorf("relay/sqlite: get all: %w", err)
	}
	defer rows.Close()

	var out []*buffer.Entry
	for rows.Next() {
		var (
			e       buffer.Entry
			body    string
			nextDue sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &body, &e.Attempts, &e.LastAttempt, &nextDue); err != nil {
			return nil, fmt.Errorf("relay/sqlite: get all: scan: %w", err)
		}
		var env envelope.Envelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			s.logger.ErrorContext(ctx, "skipping undecodable buffer entry", "id", e.ID, "error", err)
			continue
		}
		e.Body = env
		if nextDue.Valid {
			e.NextDue = nextDue.Int64
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay/sqlite: get all: %w", err)
	}
	return out, nil
}

// Update replaces the retry fields of an existing entry. Absent ids match
// no row and are left absent.
func (s *Store) Update(ctx context.Context, e *buffer.Entry) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE relay_buffer
SET attempts = ?, last_attempt = ?, next_due = ?
WHERE id = ?`,
		e.Attempts, e.LastAttempt, nullableDue(e.NextDue), e.ID)
	if err != nil {
		return fmt.Errorf("relay/sqlite: update: %w", err)
	}
	return nil
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return relay.ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_buffer WHERE id = ?`, id); err != nil {
		return fmt.Errorf("relay/sqlite: delete: %w", err)
	}
	return nil
}

// nullableDue stores a zero next_due as NULL: due immediately.
func nullableDue(ms int64) sql.NullInt64 {
	return sql.NullInt64{Int64: ms, Valid: ms != 0}
}
