package relay_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
	"github.com/vyasoai/relay/internal/daemontest"
	"github.com/vyasoai/relay/store/memory"
)

func ctx() context.Context { return context.Background() }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	relay  *relay.Relay
	store  *memory.Store
	daemon *daemontest.Daemon
	clock  *clock
}

func setup(t *testing.T, opts ...relay.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		daemon: daemontest.New(t),
		clock:  &clock{now: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)},
	}
	base := []relay.Option{
		relay.WithStore(f.store),
		relay.WithBaseURL(f.daemon.URL()),
		relay.WithChannel("vscode-extension"),
		relay.WithClock(f.clock.Now),
		relay.WithValidation(false),
		relay.WithRequestTimeout(2 * time.Second),
	}
	r, err := relay.New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	f.relay = r
	return f
}

func testEnvelope(id, hash string) envelope.Envelope {
	return envelope.Envelope{
		EventID:     id,
		Timestamp:   "2025-03-04T05:06:07.008Z",
		Source:      "vscode-extension",
		App:         "vscode",
		ContentHash: hash,
		SizeBytes:   5,
		PrivacyFlag: envelope.PrivacyDefault,
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := relay.New(); !errors.Is(err, relay.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  relay.Option
	}{
		{"base url", relay.WithBaseURL("localhost:8765")},
		{"tick interval", relay.WithTickInterval(0)},
		{"health cooldown", relay.WithHealthCooldown(-time.Second)},
		{"backoff", relay.WithBackoff(time.Minute, time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := relay.New(relay.WithStore(memory.New()), tt.opt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSubmitAccepted(t *testing.T) {
	f := setup(t)

	outcome, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != delivery.Accepted {
		t.Fatalf("expected accepted, got %v", outcome)
	}
	if f.store.Len() != 0 {
		t.Fatal("accepted envelope must not be buffered")
	}
	reqs := f.daemon.Received()
	if len(reqs) != 1 || reqs[0].Header.Get("X-Vyaso-Local-Client") != "vscode-extension" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
}

func TestSubmitDuplicateIsSuccess(t *testing.T) {
	f := setup(t)
	env := testEnvelope("e1", "h1")

	if _, err := f.relay.Submit(ctx(), env); err != nil {
		t.Fatal(err)
	}
	outcome, err := f.relay.Submit(ctx(), env)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != delivery.Duplicate {
		t.Fatalf("expected duplicate, got %v", outcome)
	}
	if f.store.Len() != 0 {
		t.Fatal("duplicate must not be buffered")
	}
}

func TestSubmitUnreachableBuffers(t *testing.T) {
	f := setup(t)
	f.daemon.SetEventStatus(http.StatusInternalServerError)

	outcome, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1"))
	if err != nil {
		t.Fatalf("buffered submit should succeed, got %v", err)
	}
	if outcome != delivery.Unreachable {
		t.Fatalf("expected unreachable, got %v", outcome)
	}

	entries, err := f.relay.Buffered(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 buffered entry, got %d", len(entries))
	}
	e := entries[0]
	now := f.clock.Now().UnixMilli()
	if e.ID != "e1" || e.Attempts != 0 || e.LastAttempt != now {
		t.Fatalf("unexpected entry: %+v", e)
	}
	// backoff(0) = 1s * [0.5, 1.5)
	if d := e.NextDue - now; d < 500 || d >= 1500 {
		t.Fatalf("expected next_due in [now+500, now+1500), got now+%d", d)
	}
	if e.Body.ContentHash != "h1" {
		t.Fatal("content hash must not change after enqueue")
	}
}

func TestSubmitSameEventTwiceKeepsOneEntry(t *testing.T) {
	f := setup(t)
	f.daemon.Close()

	env := testEnvelope("e1", "h1")
	for range 2 {
		if _, err := f.relay.Submit(ctx(), env); err != nil {
			t.Fatal(err)
		}
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected exactly one entry per event id, got %d", f.store.Len())
	}
}

func TestSubmitRejected(t *testing.T) {
	var hooked []string
	f := setup(t, relay.WithRejectionHook(func(_ context.Context, e dlq.Entry) {
		hooked = append(hooked, e.EventID)
	}))
	f.daemon.SetEventStatus(http.StatusUnprocessableEntity)

	outcome, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1"))
	if outcome != delivery.Rejected {
		t.Fatalf("expected rejected, got %v", outcome)
	}
	if !errors.Is(err, relay.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	var rej *relay.RejectionError
	if !errors.As(err, &rej) || rej.StatusCode != http.StatusUnprocessableEntity || rej.EventID != "e1" {
		t.Fatalf("expected RejectionError with status 422, got %#v", err)
	}
	if f.store.Len() != 0 {
		t.Fatal("rejected envelope must not be buffered")
	}

	rejections := f.relay.Rejections(0)
	if len(rejections) != 1 || rejections[0].Origin != delivery.OriginSubmit {
		t.Fatalf("expected one submit rejection, got %+v", rejections)
	}
	if len(hooked) != 1 || hooked[0] != "e1" {
		t.Fatalf("expected hook for e1, got %v", hooked)
	}
}

func TestSubmitInvalidEnvelope(t *testing.T) {
	f := setup(t, relay.WithValidation(true))

	env := testEnvelope("not-a-uuid", "h1")
	if _, err := f.relay.Submit(ctx(), env); !errors.Is(err, relay.ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	if len(f.daemon.Received()) != 0 || f.store.Len() != 0 {
		t.Fatal("invalid envelope must be neither sent nor buffered")
	}

	valid := envelope.New("vscode-extension", "vscode", []byte("hello"))
	if _, err := f.relay.Submit(ctx(), valid); err != nil {
		t.Fatalf("captured envelope should pass validation, got %v", err)
	}
}

func TestSubmitStorageFailureSurfaces(t *testing.T) {
	f := setup(t)
	f.daemon.Close()
	_ = f.store.Close()

	_, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1"))
	if !errors.Is(err, relay.ErrStoreClosed) {
		t.Fatalf("expected storage failure to surface, got %v", err)
	}
}

func TestEndToEndRecovery(t *testing.T) {
	f := setup(t)
	f.daemon.SetEventStatus(http.StatusInternalServerError)

	if _, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1")); err != nil {
		t.Fatal(err)
	}
	if f.store.Len() != 1 {
		t.Fatal("expected e1 buffered")
	}

	// Daemon recovers; the next pass after next_due delivers.
	f.daemon.SetEventStatus(0)
	f.clock.Advance(1500 * time.Millisecond)

	rep := f.relay.Drain(ctx(), relay.DrainOptions{})
	if rep.Delivered != 1 {
		t.Fatalf("expected e1 delivered, got %+v", rep)
	}
	if f.store.Len() != 0 {
		t.Fatal("store should no longer contain e1")
	}
	ids := f.daemon.ReceivedIDs()
	if len(ids) != 2 || ids[1] != "e1" {
		t.Fatalf("expected daemon to receive e1 on retry, got %v", ids)
	}
}

func TestBufferedIsOrderedByNextDue(t *testing.T) {
	f := setup(t)
	f.daemon.Close()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := f.relay.Submit(ctx(), testEnvelope(id, "h-"+id)); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(2 * time.Second)
	}

	entries, err := f.relay.Buffered(ctx())
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].NextDue > entries[i].NextDue {
			t.Fatalf("entries not ordered by next_due: %d > %d", entries[i-1].NextDue, entries[i].NextDue)
		}
	}
	if entries[0].ID != "a" {
		t.Fatalf("expected a first, got %s", entries[0].ID)
	}
}

func TestSetBaseURL(t *testing.T) {
	f := setup(t)
	other := daemontest.New(t)

	if err := f.relay.SetBaseURL("ftp://example.com"); !errors.Is(err, delivery.ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
	if err := f.relay.SetBaseURL(other.URL()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1")); err != nil {
		t.Fatal(err)
	}
	if len(other.Received()) != 1 || len(f.daemon.Received()) != 0 {
		t.Fatal("expected delivery to the new daemon")
	}
	if f.relay.Health().BaseURL != other.URL() {
		t.Fatalf("expected health to report new base URL, got %s", f.relay.Health().BaseURL)
	}
}

func TestStartStopLoop(t *testing.T) {
	f := setup(t, relay.WithTickInterval(20*time.Millisecond), relay.WithClock(time.Now))
	f.daemon.SetEventStatus(http.StatusServiceUnavailable)

	if _, err := f.relay.Submit(ctx(), testEnvelope("e1", "h1")); err != nil {
		t.Fatal(err)
	}
	f.daemon.SetEventStatus(0)

	f.relay.Start(ctx())
	defer f.relay.Stop(ctx())

	deadline := time.After(5 * time.Second)
	for f.store.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the loop to deliver e1")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
