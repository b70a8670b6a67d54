package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/envelope"
	"github.com/vyasoai/relay/observability"
	"github.com/vyasoai/relay/ratelimit"
)

// DefaultTickInterval is how often the scheduler wakes up.
const DefaultTickInterval = 1 * time.Second

// Delivery path labels used in logs, metrics and the rejection ledger.
const (
	OriginSubmit = "submit"
	OriginRetry  = "retry"
)

// Deliverer performs one delivery attempt.
type Deliverer interface {
	Deliver(ctx context.Context, env envelope.Envelope) Result
}

// HealthChecker reports the daemon's (possibly cached) health.
type HealthChecker interface {
	Healthy(ctx context.Context, force bool) (healthy, probed bool)
}

// Rejecter records envelopes the daemon permanently refused.
type Rejecter interface {
	PushRejected(ctx context.Context, env envelope.Envelope, res Result, origin string)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	TickInterval time.Duration
	Backoff      *Backoff
	Pacer        *ratelimit.Pacer
	Now          func() time.Time
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Probed      bool `json:"probed"`
	Healthy     bool `json:"healthy"`
	Buffered    int  `json:"buffered"`
	Due         int  `json:"due"`
	Delivered   int  `json:"delivered"`
	Duplicates  int  `json:"duplicates"`
	Rejected    int  `json:"rejected"`
	Rescheduled int  `json:"rescheduled"`
	Errors      int  `json:"errors"`
}

// Remaining returns how many entries the store should hold after the pass.
func (r DrainReport) Remaining() int {
	return r.Buffered - r.Delivered - r.Duplicates - r.Rejected
}

// Scheduler is the retry loop that drains due buffered entries while the
// daemon is healthy.
type Scheduler struct {
	store    buffer.Store
	client   Deliverer
	health   HealthChecker
	rejecter Rejecter
	config   SchedulerConfig
	logger   *slog.Logger

	// drainMu serializes drain passes from the loop and manual triggers.
	drainMu sync.Mutex
	skipped bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a retry scheduler. rejecter may be nil.
func NewScheduler(store buffer.Store, client Deliverer, health HealthChecker, rejecter Rejecter, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff(DefaultBackoffBase, DefaultBackoffMax)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:    store,
		client:   client,
		health:   health,
		rejecter: rejecter,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the tick loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop halts future ticks and waits for the current pass to finish. In-flight
// deliveries run to completion or time out; no store state is lost.
func (s *Scheduler) Stop(_ context.Context) {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// loop ticks on a fixed interval. A slow pass delays the next tick rather
// than overlapping with it.
func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "drain pass panicked", "error", fmt.Sprint(r))
		}
	}()
	s.Drain(ctx, false)
}

// Drain runs one pass: consult the health cache (force re-probes), and if
// the daemon is healthy attempt every due entry once. Entries are isolated
// from each other; a failure on one never stops the pass.
func (s *Scheduler) Drain(ctx context.Context, force bool) DrainReport {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	var rep DrainReport
	rep.Healthy, rep.Probed = s.health.Healthy(ctx, force)
	if !rep.Healthy {
		s.config.Metrics.RecordSkip()
		if !s.skipped {
			s.logger.WarnContext(ctx, "daemon unhealthy, skipping drain")
		}
		s.skipped = true
		return rep
	}
	if s.skipped {
		s.logger.InfoContext(ctx, "daemon healthy, resuming drain")
		s.skipped = false
	}

	entries, err := s.store.GetAll(ctx)
	if err != nil {
		s.config.Metrics.RecordStoreError("get_all")
		s.logger.ErrorContext(ctx, "list buffered entries failed", "error", err)
		rep.Errors++
		return rep
	}
	rep.Buffered = len(entries)

	now := s.config.Now()
	due := make([]*buffer.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Due(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextDue < due[j].NextDue })
	rep.Due = len(due)

	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.config.Pacer.Wait(ctx); err != nil {
			break
		}
		s.retry(ctx, e, &rep)
	}

	s.config.Metrics.SetBuffered(rep.Remaining())
	if rep.Due > 0 {
		s.logger.DebugContext(ctx, "drain pass complete",
			"due", rep.Due,
			"delivered", rep.Delivered+rep.Duplicates,
			"rejected", rep.Rejected,
			"rescheduled", rep.Rescheduled,
			"errors", rep.Errors)
	}
	return rep
}

// retry attempts one due entry and applies the outcome to the store.
// The attempt and its store write share a context detached from ctx, so a
// Stop during the attempt still records its outcome.
func (s *Scheduler) retry(ctx context.Context, e *buffer.Entry, rep *DrainReport) {
	ctx = context.WithoutCancel(ctx)
	res := s.Attempt(ctx, e.Body, OriginRetry, e.Attempts)

	switch res.Outcome {
	case Accepted, Duplicate:
		if err := s.store.Delete(ctx, e.ID); err != nil {
			s.storeError(ctx, "delete", e.ID, err)
			rep.Errors++
			return
		}
		if res.Outcome == Duplicate {
			rep.Duplicates++
		} else {
			rep.Delivered++
		}
		s.logger.DebugContext(ctx, "delivered",
			"event_id", e.ID, "attempts", e.Attempts, "outcome", res.Outcome.String(), "status", res.StatusCode)

	case Rejected:
		if err := s.store.Delete(ctx, e.ID); err != nil {
			s.storeError(ctx, "delete", e.ID, err)
			rep.Errors++
			return
		}
		rep.Rejected++
		if s.rejecter != nil {
			s.rejecter.PushRejected(ctx, e.Body, res, OriginRetry)
		}

	default:
		next := e.Clone()
		next.Reschedule(s.config.Now(), s.config.Backoff.Delay)
		if err := s.store.Update(ctx, next); err != nil {
			s.storeError(ctx, "update", e.ID, err)
			rep.Errors++
			return
		}
		rep.Rescheduled++
		s.logger.DebugContext(ctx, "retry scheduled",
			"event_id", e.ID, "attempts", next.Attempts, "next_due", next.NextDueTime(), "error", res.Error)
	}
}

// Attempt performs one traced, metered delivery of env. path is OriginSubmit
// or OriginRetry; attempts is the entry's prior failure count.
func (s *Scheduler) Attempt(ctx context.Context, env envelope.Envelope, path string, attempts int) Result {
	var span trace.Span
	if s.config.Tracer != nil {
		ctx, span = s.config.Tracer.StartDeliverySpan(ctx, env.EventID, path, attempts)
	}

	res := s.client.Deliver(ctx, env)

	s.config.Metrics.RecordDelivery(path, res.Outcome.String(), float64(res.LatencyMs)/1000.0)
	if span != nil {
		s.config.Tracer.EndDeliverySpan(span, res.StatusCode, res.LatencyMs, res.Outcome.String(), res.Error)
	}
	return res
}

// NextDelay returns a fresh backoff delay for the given attempt count.
func (s *Scheduler) NextDelay(attempts int) time.Duration {
	return s.config.Backoff.Delay(attempts)
}

func (s *Scheduler) storeError(ctx context.Context, op, id string, err error) {
	s.config.Metrics.RecordStoreError(op)
	s.logger.ErrorContext(ctx, "store "+op+" failed", "event_id", id, "error", err)
}
