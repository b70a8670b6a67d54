package relay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
	"github.com/vyasoai/relay/ratelimit"
	"github.com/vyasoai/relay/store"
)

// DrainOptions controls a manually triggered drain pass.
type DrainOptions struct {
	// ForceProbe re-probes the daemon immediately instead of reusing the
	// cached health. The fresh result restarts the cooldown window and still
	// gates the pass.
	ForceProbe bool
}

// HealthStatus is the last observed daemon health.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	Known     bool      `json:"known"`
	BaseURL   string    `json:"base_url"`
}

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() error {
	client, err := delivery.NewClient(delivery.ClientConfig{
		BaseURL:       r.config.BaseURL,
		EventsPath:    r.config.EventsPath,
		HealthPath:    r.config.HealthPath,
		ChannelHeader: r.config.ChannelHeader,
		Channel:       r.config.Channel,
		Timeout:       r.config.RequestTimeout,
		HTTPClient:    r.httpClient,
	})
	if err != nil {
		return err
	}
	r.client = client

	r.health = delivery.NewHealthCache(client, delivery.HealthConfig{
		Cooldown: r.config.HealthCooldown,
		Now:      r.now,
		Metrics:  r.metrics,
		Tracer:   r.tracer,
	})

	var dlqOpts []dlq.Option
	if r.hook != nil {
		dlqOpts = append(dlqOpts, dlq.WithHook(r.hook))
	}
	dlqOpts = append(dlqOpts, dlq.WithClock(r.now))
	r.dlqSvc = dlq.NewService(r.config.RejectionCapacity, r.logger, dlqOpts...)

	if r.config.Validate {
		v, err := envelope.NewValidator()
		if err != nil {
			return fmt.Errorf("relay: compile envelope schema: %w", err)
		}
		r.validator = v
	}

	r.scheduler = delivery.NewScheduler(r.store, client, r.health, r.dlqSvc, delivery.SchedulerConfig{
		TickInterval: r.config.TickInterval,
		Backoff:      delivery.NewBackoff(r.config.BackoffBase, r.config.BackoffMax),
		Pacer:        ratelimit.New(r.config.DrainRate, r.config.DrainBurst),
		Now:          r.now,
		Metrics:      r.metrics,
		Tracer:       r.tracer,
	}, r.logger)
	return nil
}

// Start begins the retry loop.
func (r *Relay) Start(ctx context.Context) {
	r.scheduler.Start(ctx)
}

// Stop halts the retry loop. Buffered entries stay in the store.
func (r *Relay) Stop(ctx context.Context) {
	r.scheduler.Stop(ctx)
}

// Submit attempts immediate delivery of env and buffers it for retry when the
// daemon is unreachable.
//
// The critical path:
//  1. Validate the envelope locally (if enabled); invalid envelopes are never sent.
//  2. Attempt delivery.
//  3. Accepted or Duplicate: done.
//  4. Rejected: record in the rejection ledger and return a *RejectionError.
//  5. Unreachable: persist a buffered entry due after backoff(0). A storage
//     failure here is returned; the event is neither delivered nor buffered.
func (r *Relay) Submit(ctx context.Context, env envelope.Envelope) (delivery.Outcome, error) {
	if r.validator != nil {
		if err := r.validator.Validate(env); err != nil {
			return delivery.Rejected, fmt.Errorf("%w: %s", ErrInvalidEnvelope, err.Error())
		}
	}
	r.metrics.RecordSubmit()

	res := r.scheduler.Attempt(ctx, env, delivery.OriginSubmit, 0)

	switch res.Outcome {
	case delivery.Accepted, delivery.Duplicate:
		r.logger.DebugContext(ctx, "envelope delivered",
			"event_id", env.EventID, "outcome", res.Outcome.String(), "status", res.StatusCode)
		return res.Outcome, nil

	case delivery.Rejected:
		r.dlqSvc.PushRejected(ctx, env, res, delivery.OriginSubmit)
		return res.Outcome, &RejectionError{
			EventID:    env.EventID,
			StatusCode: res.StatusCode,
			Response:   res.Response,
		}
	}

	entry := buffer.NewEntry(env, r.now(), r.scheduler.NextDelay(0))
	if err := r.store.Put(ctx, entry); err != nil {
		r.metrics.RecordStoreError("put")
		r.logger.ErrorContext(ctx, "buffer envelope failed",
			"event_id", env.EventID, "error", err)
		return res.Outcome, fmt.Errorf("relay: buffer envelope: %w", err)
	}

	r.logger.DebugContext(ctx, "envelope buffered",
		"event_id", env.EventID, "next_due", entry.NextDueTime(), "error", res.Error)
	return res.Outcome, nil
}

// Drain runs one drain pass now, sharing the health cache with the loop.
func (r *Relay) Drain(ctx context.Context, opts DrainOptions) delivery.DrainReport {
	return r.scheduler.Drain(ctx, opts.ForceProbe)
}

// Buffered returns a snapshot of the buffer ordered by next due time.
func (r *Relay) Buffered(ctx context.Context) ([]*buffer.Entry, error) {
	entries, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay: list buffer: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].NextDue != entries[j].NextDue {
			return entries[i].NextDue < entries[j].NextDue
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Rejections returns the most recent permanent rejections, newest first.
func (r *Relay) Rejections(limit int) []dlq.Entry {
	return r.dlqSvc.List(limit)
}

// SetBaseURL retargets the engine at a different daemon. Buffered entries
// are retried against the new target; the cached health is discarded.
func (r *Relay) SetBaseURL(url string) error {
	if err := r.client.SetBaseURL(url); err != nil {
		return err
	}
	r.health.Invalidate()
	r.logger.Info("daemon base URL changed", "base_url", r.client.BaseURL())
	return nil
}

// Health returns the last observed daemon health without probing.
func (r *Relay) Health() HealthStatus {
	healthy, at, known := r.health.Snapshot()
	return HealthStatus{Healthy: healthy, CheckedAt: at, Known: known, BaseURL: r.client.BaseURL()}
}

// Config returns the effective configuration.
func (r *Relay) Config() Config {
	return r.config
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// DLQ returns the rejection ledger.
func (r *Relay) DLQ() *dlq.Service {
	return r.dlqSvc
}
