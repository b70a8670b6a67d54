package bolt_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/store"
	"github.com/vyasoai/relay/store/bolt"
	"github.com/vyasoai/relay/store/storetest"
)

func openStore(t *testing.T, path string) *bolt.Store {
	t.Helper()
	s, err := bolt.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, storetest.Factory{
		Open: func(t *testing.T) store.Store {
			return openStore(t, filepath.Join(t.TempDir(), "buffer.db"))
		},
		Reopen: func(t *testing.T, s store.Store) store.Store {
			path := s.(*bolt.Store).Path()
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			return openStore(t, path)
		},
		Corrupt: func(t *testing.T, s store.Store, id string) store.Store {
			path := s.(*bolt.Store).Path()
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			db, err := bbolt.Open(path, 0o600, nil)
			if err != nil {
				t.Fatalf("raw open: %v", err)
			}
			err = db.Update(func(tx *bbolt.Tx) error {
				return tx.Bucket([]byte("buffer")).Put([]byte(id), []byte("{not json"))
			})
			if err != nil {
				t.Fatalf("raw put: %v", err)
			}
			if err := db.Close(); err != nil {
				t.Fatalf("raw close: %v", err)
			}
			return openStore(t, path)
		},
	})
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "buffer.db")
	s := openStore(t, path)
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "buffer.db"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.Put(ctx, storetest.NewEntry("e1", 0)); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("Put: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.GetAll(ctx); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("GetAll: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("Ping: expected ErrStoreClosed, got %v", err)
	}
}
