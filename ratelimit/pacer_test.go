package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_UnlimitedIsNil(t *testing.T) {
	for _, rps := range []float64{0, -1} {
		if p := New(rps, 5); p != nil {
			t.Fatalf("New(%v) should return nil", rps)
		}
	}
}

func TestNilPacer_AlwaysAllows(t *testing.T) {
	var p *Pacer
	for i := 0; i < 100; i++ {
		if !p.Allow() {
			t.Fatal("nil pacer should always allow")
		}
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("nil pacer Wait: %v", err)
	}
	if p.Limit() != 0 {
		t.Fatalf("expected limit 0, got %v", p.Limit())
	}
}

func TestAllow_BurstThenDenied(t *testing.T) {
	p := New(1, 3)

	for i := 0; i < 3; i++ {
		if !p.Allow() {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if p.Allow() {
		t.Fatal("request beyond burst should be denied")
	}
}

func TestNew_BurstFloor(t *testing.T) {
	p := New(1, 0)
	if !p.Allow() {
		t.Fatal("burst should be at least 1")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	p := New(0.001, 1)
	p.Allow() // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	if err == nil {
		t.Fatal("expected error from Wait on an empty bucket")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected cancellation error: %v", err)
	}
}

func TestWait_Refills(t *testing.T) {
	p := New(100, 1)
	p.Allow()

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Wait took too long to refill")
	}
}
