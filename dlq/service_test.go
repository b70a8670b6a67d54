package dlq_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
)

func ctx() context.Context { return context.Background() }

func rejected(id string) (envelope.Envelope, delivery.Result) {
	env := envelope.Envelope{EventID: id, Source: "browser-extension", App: "chrome"}
	res := delivery.Result{Outcome: delivery.Rejected, StatusCode: 400, Response: "invalid content_hash"}
	return env, res
}

func TestPushRejected(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	svc := dlq.NewService(10, logger, dlq.WithClock(func() time.Time { return fixed }))
	env, res := rejected("e1")
	svc.PushRejected(ctx(), env, res, delivery.OriginSubmit)

	entries := svc.List(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EventID != "e1" || e.StatusCode != 400 || e.Origin != "submit" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Response != "invalid content_hash" {
		t.Fatalf("expected response excerpt, got %q", e.Response)
	}
	if !e.RejectedAt.Equal(fixed) {
		t.Fatalf("expected RejectedAt %v, got %v", fixed, e.RejectedAt)
	}

	out := buf.String()
	if strings.Count(out, "envelope rejected by daemon") != 1 {
		t.Fatalf("expected rejection logged once, got:\n%s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "event_id=e1") {
		t.Fatalf("expected warn log with event_id, got:\n%s", out)
	}
}

func TestHookInvoked(t *testing.T) {
	var got []string
	svc := dlq.NewService(10, nil, dlq.WithHook(func(_ context.Context, e dlq.Entry) {
		got = append(got, e.EventID+"/"+e.Origin)
	}))

	env, res := rejected("e1")
	svc.PushRejected(ctx(), env, res, delivery.OriginRetry)

	if len(got) != 1 || got[0] != "e1/retry" {
		t.Fatalf("unexpected hook calls: %v", got)
	}
}

func TestRingKeepsNewest(t *testing.T) {
	svc := dlq.NewService(3, nil)
	for i := 1; i <= 5; i++ {
		env, res := rejected(fmt.Sprintf("e%d", i))
		svc.PushRejected(ctx(), env, res, delivery.OriginRetry)
	}

	if svc.Count() != 3 {
		t.Fatalf("expected 3 retained, got %d", svc.Count())
	}
	if svc.Total() != 5 {
		t.Fatalf("expected total 5, got %d", svc.Total())
	}

	entries := svc.List(0)
	want := []string{"e5", "e4", "e3"}
	for i, w := range want {
		if entries[i].EventID != w {
			t.Fatalf("entry %d: expected %s, got %s", i, w, entries[i].EventID)
		}
	}

	if limited := svc.List(2); len(limited) != 2 || limited[0].EventID != "e5" {
		t.Fatalf("List(2) returned %+v", limited)
	}
}

func TestPurge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := dlq.NewService(5, nil, dlq.WithClock(func() time.Time { return now }))

	for i := 1; i <= 4; i++ {
		env, res := rejected(fmt.Sprintf("e%d", i))
		svc.PushRejected(ctx(), env, res, delivery.OriginRetry)
		now = now.Add(time.Hour)
	}

	// e1 and e2 were rejected before 02:00.
	removed := svc.Purge(time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC))
	if removed != 2 {
		t.Fatalf("expected 2 purged, got %d", removed)
	}

	entries := svc.List(0)
	if len(entries) != 2 || entries[0].EventID != "e4" || entries[1].EventID != "e3" {
		t.Fatalf("unexpected entries after purge: %+v", entries)
	}

	env, res := rejected("e5")
	svc.PushRejected(ctx(), env, res, delivery.OriginRetry)
	if got := svc.List(1)[0].EventID; got != "e5" {
		t.Fatalf("expected newest e5 after purge, got %s", got)
	}
}

func TestEmptyLedger(t *testing.T) {
	svc := dlq.NewService(0, nil)
	if svc.Count() != 0 || len(svc.List(10)) != 0 {
		t.Fatal("new ledger should be empty")
	}
	if svc.Purge(time.Now()) != 0 {
		t.Fatal("purge on empty ledger should remove nothing")
	}
}
