// Package dlq keeps a bounded ledger of envelopes the daemon permanently
// rejected. Rejected envelopes are never retried; the ledger makes sure each
// one is reported once instead of silently dropped.
package dlq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/envelope"
)

// DefaultCapacity is the number of rejections retained by default.
const DefaultCapacity = 100

// Entry records one permanent rejection.
type Entry struct {
	EventID    string            `json:"event_id"`
	Envelope   envelope.Envelope `json:"envelope"`
	StatusCode int               `json:"status_code"`
	Error      string            `json:"error,omitempty"`
	Response   string            `json:"response,omitempty"`
	Origin     string            `json:"origin"`
	RejectedAt time.Time         `json:"rejected_at"`
}

// Hook is invoked synchronously for every recorded rejection.
type Hook func(ctx context.Context, e Entry)

// compile-time interface check.
var _ delivery.Rejecter = (*Service)(nil)

// Service is the rejection ledger. It retains the most recent entries up to
// its capacity.
type Service struct {
	logger *slog.Logger
	hook   Hook
	now    func() time.Time

	mu    sync.Mutex
	ring  []Entry
	next  int
	full  bool
	total int64
}

// Option configures a Service.
type Option func(*Service)

// WithHook sets a callback invoked for each rejection.
func WithHook(h Hook) Option {
	return func(s *Service) { s.hook = h }
}

// WithClock overrides the time source used for RejectedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger holding up to capacity entries. A capacity of
// 0 or less uses DefaultCapacity.
func NewService(capacity int, logger *slog.Logger, opts ...Option) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger: logger,
		now:    time.Now,
		ring:   make([]Entry, capacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PushRejected records a rejected envelope, logs it once and runs the hook.
// Implements delivery.Rejecter.
func (svc *Service) PushRejected(ctx context.Context, env envelope.Envelope, res delivery.Result, origin string) {
	entry := Entry{
		EventID:    env.EventID,
		Envelope:   env.Clone(),
		StatusCode: res.StatusCode,
		Error:      res.Error,
		Response:   res.Response,
		Origin:     origin,
		RejectedAt: svc.now().UTC(),
	}

	svc.mu.Lock()
	svc.ring[svc.next] = entry
	svc.next = (svc.next + 1) % len(svc.ring)
	if svc.next == 0 {
		svc.full = true
	}
	svc.total++
	svc.mu.Unlock()

	svc.logger.WarnContext(ctx, "envelope rejected by daemon",
		"event_id", env.EventID,
		"status", res.StatusCode,
		"origin", origin,
		"response", res.Response,
		"error", res.Error)

	if svc.hook != nil {
		svc.hook(ctx, entry)
	}
}

// List returns retained entries, newest first. A limit of 0 or less returns
// all of them.
func (svc *Service) List(limit int) []Entry {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	n := svc.lenLocked()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (svc.next - i + len(svc.ring)) % len(svc.ring)
		out = append(out, svc.ring[idx])
	}
	return out
}

// Count returns the number of retained entries.
func (svc *Service) Count() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.lenLocked()
}

// Total returns the number of rejections recorded since creation, including
// entries that have rotated out.
func (svc *Service) Total() int64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.total
}

// Purge removes retained entries rejected before the given time and returns
// how many were removed.
func (svc *Service) Purge(before time.Time) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	n := svc.lenLocked()
	kept := make([]Entry, 0, n)
	// Oldest first so the ring keeps its order.
	for i := n; i >= 1; i-- {
		e := svc.ring[(svc.next-i+len(svc.ring))%len(svc.ring)]
		if !e.RejectedAt.Before(before) {
			kept = append(kept, e)
		}
	}

	clear(svc.ring)
	copy(svc.ring, kept)
	svc.next = len(kept) % len(svc.ring)
	svc.full = len(kept) == len(svc.ring)
	return n - len(kept)
}

func (svc *Service) lenLocked() int {
	if svc.full {
		return len(svc.ring)
	}
	return svc.next
}
