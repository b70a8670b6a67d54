package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/store"
	"github.com/vyasoai/relay/store/sqlite"
	"github.com/vyasoai/relay/store/storetest"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, storetest.Factory{
		Open: func(t *testing.T) store.Store {
			return openStore(t, filepath.Join(t.TempDir(), "relay.db"))
		},
		Reopen: func(t *testing.T, s store.Store) store.Store {
			path := s.(*sqlite.Store).Path()
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			return openStore(t, path)
		},
		Corrupt: func(t *testing.T, s store.Store, id string) store.Store {
			path := s.(*sqlite.Store).Path()
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			db, err := sql.Open("sqlite", path)
			if err != nil {
				t.Fatalf("raw open: %v", err)
			}
			_, err = db.Exec(`INSERT INTO relay_buffer (id, body, attempts, last_attempt, next_due) VALUES (?, ?, 0, 0, NULL)`,
				id, "{not json")
			if err != nil {
				t.Fatalf("raw insert: %v", err)
			}
			if err := db.Close(); err != nil {
				t.Fatalf("raw close: %v", err)
			}
			return openStore(t, path)
		},
	})
}

func TestSchemaVersion(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "relay.db"))
	defer s.Close()

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("expected schema version 2, got %d", v)
	}
}

func TestClosedStore(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "relay.db"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.Put(ctx, storetest.NewEntry("e1", 0)); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("Put: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("Ping: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
