// Package bolt provides a bbolt-backed Store, the default backend for
// desktop and editor hosts. Every write is a single fsync'd transaction.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	relaystore "github.com/vyasoai/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

var bucketBuffer = []byte("buffer")

// Store implements store.Store using bbolt.
type Store struct {
	db     *bbolt.DB
	path   string
	logger *slog.Logger
	noSync bool
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

// WithNoSync disables fsync per transaction. Only for tests and benchmarks:
// buffered entries may be lost on crash.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// Open opens (creating if needed) the database at path and its bucket.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("relay/bolt: create dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("relay/bolt: open: %w", err)
	}
	s.db = db

	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Debug("opened buffer store", "path", path, "no_sync", s.noSync)
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Migrate creates the buffer bucket.
func (s *Store) Migrate(_ context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBuffer)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", relay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks that the database is open.
func (s *Store) Ping(_ context.Context) error {
	return s.translate(s.db.View(func(*bbolt.Tx) error { return nil }))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the entry.
func (s *Store) Put(_ context.Context, e *buffer.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("relay/bolt: put: encode: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuffer).Put([]byte(e.ID), data)
	})
	if err != nil {
		return fmt.Errorf("relay/bolt: put: %w", s.translate(err))
	}
	return nil
}

// GetAll returns every entry.
func (s *Store) GetAll(_ context.Context) ([]*buffer.Entry, error) {
	var out []*buffer.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuffer).ForEach(func(k, v []byte) error {
			var e buffer.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				// A corrupt record must not hide the rest of the buffer.
				s.logger.Error("skipping undecodable buffer entry", "id", string(k), "error", err)
				return nil
			}
			out = append(out, &e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("relay/bolt: get all: %w", s.translate(err))
	}
	return out, nil
}

// Update replaces the retry fields of an existing entry in one transaction.
func (s *Store) Update(_ context.Context, e *buffer.Entry) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBuffer)
		raw := b.Get([]byte(e.ID))
		if raw == nil {
			return nil
		}
		var existing buffer.Entry
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		existing.Attempts = e.Attempts
		existing.LastAttempt = e.LastAttempt
		existing.NextDue = e.NextDue

		data, err := json.Marshal(&existing)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return b.Put([]byte(e.ID), data)
	})
	if err != nil {
		return fmt.Errorf("relay/bolt: update: %w", s.translate(err))
	}
	return nil
}

// Delete removes the entry with id.
func (s *Store) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuffer).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("relay/bolt: delete: %w", s.translate(err))
	}
	return nil
}

func (s *Store) translate(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return relay.ErrStoreClosed
	}
	return err
}
