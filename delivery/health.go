package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyasoai/relay/observability"
)

// DefaultHealthCooldown is how long a probe result is reused.
const DefaultHealthCooldown = 5 * time.Second

// Prober performs a single daemon health check.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HealthCache memoizes the daemon's health for a cooldown window. Concurrent
// callers that miss the cache share one probe.
type HealthCache struct {
	prober   Prober
	cooldown time.Duration
	now      func() time.Time
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	group singleflight.Group

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
	probed    bool
}

// HealthConfig configures a HealthCache.
type HealthConfig struct {
	Cooldown time.Duration
	Now      func() time.Time
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// NewHealthCache creates a cache in front of prober.
func NewHealthCache(prober Prober, cfg HealthConfig) *HealthCache {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultHealthCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HealthCache{
		prober:   prober,
		cooldown: cfg.Cooldown,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}
}

// Healthy returns the cached health if it is younger than the cooldown,
// otherwise probes. force bypasses the cache; a forced probe still refreshes
// the cached value and its timestamp. probed reports whether this call
// triggered or joined a probe.
func (h *HealthCache) Healthy(ctx context.Context, force bool) (healthy, probed bool) {
	if !force {
		if v, ok := h.fresh(); ok {
			return v, false
		}
	}

	key := "probe"
	if force {
		key = "force"
	}
	v, _, _ := h.group.Do(key, func() (any, error) {
		if !force {
			if v, ok := h.fresh(); ok {
				return v, nil
			}
		}
		return h.probe(ctx, force), nil
	})
	return v.(bool), true
}

// Invalidate drops the cached result so the next call probes.
func (h *HealthCache) Invalidate() {
	h.mu.Lock()
	h.probed = false
	h.mu.Unlock()
}

// Snapshot returns the last known health and when it was observed. ok is
// false when no probe has completed yet.
func (h *HealthCache) Snapshot() (healthy bool, checkedAt time.Time, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy, h.checkedAt, h.probed
}

func (h *HealthCache) fresh() (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.probed {
		return false, false
	}
	if h.now().Sub(h.checkedAt) >= h.cooldown {
		return false, false
	}
	return h.healthy, true
}

func (h *HealthCache) probe(ctx context.Context, force bool) bool {
	if h.tracer == nil {
		ok := h.prober.Probe(ctx)
		h.store(ok)
		return ok
	}

	spanCtx, span := h.tracer.StartProbeSpan(ctx, force)
	ok := h.prober.Probe(spanCtx)
	h.tracer.EndProbeSpan(span, ok)
	h.store(ok)
	return ok
}

func (h *HealthCache) store(ok bool) {
	h.mu.Lock()
	h.healthy = ok
	h.checkedAt = h.now()
	h.probed = true
	h.mu.Unlock()
	h.metrics.RecordProbe(ok)
}
