// Package storetest is a backend-agnostic conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/envelope"
	"github.com/vyasoai/relay/store"
)

// Factory opens stores for the suite.
type Factory struct {
	// Open returns an empty, migrated store.
	Open func(t *testing.T) store.Store

	// Reopen closes s and opens the same underlying storage again. Nil skips
	// the durability cases.
	Reopen func(t *testing.T, s store.Store) store.Store

	// Corrupt writes a record under id that the backend cannot decode and
	// returns the store to continue with. Nil skips the case.
	Corrupt func(t *testing.T, s store.Store, id string) store.Store
}

// NewEntry returns a buffered entry for id with a fixed envelope body.
func NewEntry(id string, attempts int) *buffer.Entry {
	env := envelope.Envelope{
		EventID:        id,
		Timestamp:      "2025-03-04T05:06:07.008Z",
		Source:         "browser-extension",
		App:            "chrome",
		ContentPointer: "https://example.com/page",
		ContentHash:    "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		SizeBytes:      11,
		Tags:           []string{"title:Example"},
		PrivacyFlag:    envelope.PrivacyDefault,
	}
	return &buffer.Entry{
		ID:          id,
		Body:        env,
		Attempts:    attempts,
		LastAttempt: 1_700_000_000_000,
		NextDue:     1_700_000_001_000,
	}
}

// Run executes the conformance suite against f.
func Run(t *testing.T, f Factory) {
	t.Helper()

	open := func(t *testing.T) store.Store {
		t.Helper()
		s := f.Open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("PutThenGetAll", func(t *testing.T) { testPutThenGetAll(t, open(t)) })
	t.Run("PutReplaces", func(t *testing.T) { testPutReplaces(t, open(t)) })
	t.Run("UpdateRetryFields", func(t *testing.T) { testUpdateRetryFields(t, open(t)) })
	t.Run("UpdateAbsentIsNoop", func(t *testing.T) { testUpdateAbsentIsNoop(t, open(t)) })
	t.Run("DeleteRemoves", func(t *testing.T) { testDeleteRemoves(t, open(t)) })
	t.Run("DeleteAbsentIsNoop", func(t *testing.T) { testDeleteAbsentIsNoop(t, open(t)) })
	t.Run("ZeroNextDue", func(t *testing.T) { testZeroNextDue(t, open(t)) })
	t.Run("ConcurrentPuts", func(t *testing.T) { testConcurrentPuts(t, open(t)) })
	t.Run("MigrateIsRepeatable", func(t *testing.T) { testMigrateIsRepeatable(t, open(t)) })

	if f.Reopen != nil {
		t.Run("SurvivesReopen", func(t *testing.T) {
			s := f.Open(t)
			testSurvivesReopen(t, s, func(s store.Store) store.Store {
				r := f.Reopen(t, s)
				t.Cleanup(func() { _ = r.Close() })
				return r
			})
		})
	}

	if f.Corrupt != nil {
		t.Run("SkipsUndecodable", func(t *testing.T) {
			s := f.Open(t)
			if err := s.Put(ctx(), NewEntry("e1", 0)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			r := f.Corrupt(t, s, "bad")
			t.Cleanup(func() { _ = r.Close() })
			testSkipsUndecodable(t, r, "bad")
		})
	}
}

func ctx() context.Context { return context.Background() }

func getAll(t *testing.T, s store.Store) map[string]*buffer.Entry {
	t.Helper()
	entries, err := s.GetAll(ctx())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	out := make(map[string]*buffer.Entry, len(entries))
	for _, e := range entries {
		if _, dup := out[e.ID]; dup {
			t.Fatalf("GetAll returned %q twice", e.ID)
		}
		out[e.ID] = e
	}
	return out
}

func testPutThenGetAll(t *testing.T, s store.Store) {
	want := NewEntry("e1", 0)
	if err := s.Put(ctx(), want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx(), NewEntry("e2", 3)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got := getAll(t, s)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	e1 := got["e1"]
	if e1 == nil {
		t.Fatal("e1 missing")
	}
	if e1.Attempts != 0 || e1.LastAttempt != want.LastAttempt || e1.NextDue != want.NextDue {
		t.Fatalf("retry fields mismatch: %+v", e1)
	}
	if e1.Body.ContentHash != want.Body.ContentHash || e1.Body.Source != want.Body.Source {
		t.Fatalf("body mismatch: %+v", e1.Body)
	}
	if len(e1.Body.Tags) != 1 || e1.Body.Tags[0] != "title:Example" {
		t.Fatalf("tags mismatch: %v", e1.Body.Tags)
	}
	if got["e2"].Attempts != 3 {
		t.Fatalf("e2 attempts: expected 3, got %d", got["e2"].Attempts)
	}
}

func testPutReplaces(t *testing.T, s store.Store) {
	if err := s.Put(ctx(), NewEntry("e1", 4)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	replacement := NewEntry("e1", 0)
	replacement.Body.App = "vscode"
	if err := s.Put(ctx(), replacement); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got := getAll(t, s)
	if len(got) != 1 {
		t.Fatalf("expected exactly one entry per id, got %d", len(got))
	}
	if got["e1"].Attempts != 0 || got["e1"].Body.App != "vscode" {
		t.Fatalf("put did not replace: %+v", got["e1"])
	}
}

func testUpdateRetryFields(t *testing.T, s store.Store) {
	if err := s.Put(ctx(), NewEntry("e1", 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	upd := NewEntry("e1", 2)
	upd.LastAttempt = 1_700_000_005_000
	upd.NextDue = 1_700_000_009_000
	if err := s.Update(ctx(), upd); err != nil {
		t.Fatalf("Update: %v", err)
	}

	e := getAll(t, s)["e1"]
	if e.Attempts != 2 || e.LastAttempt != upd.LastAttempt || e.NextDue != upd.NextDue {
		t.Fatalf("update not applied: %+v", e)
	}
	if e.Body.EventID != "e1" {
		t.Fatalf("body lost on update: %+v", e.Body)
	}
}

func testUpdateAbsentIsNoop(t *testing.T, s store.Store) {
	if err := s.Update(ctx(), NewEntry("ghost", 1)); err != nil {
		t.Fatalf("Update of absent entry should be a no-op, got %v", err)
	}
	if got := getAll(t, s); len(got) != 0 {
		t.Fatalf("Update resurrected an entry: %v", got)
	}
}

func testDeleteRemoves(t *testing.T, s store.Store) {
	for _, id := range []string{"e1", "e2"} {
		if err := s.Put(ctx(), NewEntry(id, 0)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := s.Delete(ctx(), "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := getAll(t, s)
	if _, ok := got["e1"]; ok {
		t.Fatal("e1 should be deleted")
	}
	if _, ok := got["e2"]; !ok {
		t.Fatal("e2 should remain")
	}
}

func testDeleteAbsentIsNoop(t *testing.T, s store.Store) {
	if err := s.Delete(ctx(), "ghost"); err != nil {
		t.Fatalf("Delete of absent id should be a no-op, got %v", err)
	}
}

func testZeroNextDue(t *testing.T, s store.Store) {
	e := NewEntry("e1", 0)
	e.NextDue = 0
	if err := s.Put(ctx(), e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got := getAll(t, s)["e1"]
	if got.NextDue != 0 {
		t.Fatalf("expected NextDue 0, got %d", got.NextDue)
	}
	if !got.Due(time.UnixMilli(0)) {
		t.Fatal("entry without next_due should be due immediately")
	}
}

func testConcurrentPuts(t *testing.T, s store.Store) {
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Put(ctx(), NewEntry(fmt.Sprintf("e%02d", i), 0))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put: %v", err)
		}
	}

	got := getAll(t, s)
	ids := make([]string, 0, len(got))
	for id := range got {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) != n {
		t.Fatalf("expected %d entries, got %d: %v", n, len(ids), ids)
	}
}

func testMigrateIsRepeatable(t *testing.T, s store.Store) {
	if err := s.Put(ctx(), NewEntry("e1", 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Migrate(ctx()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if len(getAll(t, s)) != 1 {
		t.Fatal("Migrate must not drop entries")
	}
}

func testSurvivesReopen(t *testing.T, s store.Store, reopen func(store.Store) store.Store) {
	if err := s.Put(ctx(), NewEntry("e1", 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx(), NewEntry("e2", 0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	upd := NewEntry("e2", 5)
	if err := s.Update(ctx(), upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Delete(ctx(), "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	r := reopen(s)
	got := getAll(t, r)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after reopen, got %d", len(got))
	}
	if got["e2"] == nil || got["e2"].Attempts != 5 {
		t.Fatalf("update lost across reopen: %+v", got["e2"])
	}
}

func testSkipsUndecodable(t *testing.T, s store.Store, badID string) {
	got := getAll(t, s)
	if len(got) != 1 || got["e1"] == nil {
		t.Fatalf("expected only e1 to survive a corrupt record, got %v", got)
	}
	if _, ok := got[badID]; ok {
		t.Fatalf("corrupt record %q should not be returned", badID)
	}

	if err := s.Put(ctx(), NewEntry("e2", 0)); err != nil {
		t.Fatalf("Put after corrupt record: %v", err)
	}
	if err := s.Delete(ctx(), badID); err != nil {
		t.Fatalf("Delete of corrupt record: %v", err)
	}
	if got := getAll(t, s); len(got) != 2 {
		t.Fatalf("expected e1 and e2, got %d entries", len(got))
	}
}
