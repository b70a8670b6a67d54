// Package ratelimit paces retry deliveries so a recovering daemon is not
// flooded with the whole backlog at once.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer is a token bucket shared by all drain passes. A nil *Pacer is
// unlimited.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a pacer allowing perSecond deliveries with the given burst.
// A perSecond of 0 or less returns nil, meaning unlimited.
func New(perSecond float64, burst int) *Pacer {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a delivery may proceed now, consuming a token if so.
func (p *Pacer) Allow() bool {
	if p == nil {
		return true
	}
	return p.limiter.Allow()
}

// Wait blocks until a delivery may proceed or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Limit returns the configured rate in deliveries per second, or 0 when
// unlimited.
func (p *Pacer) Limit() float64 {
	if p == nil {
		return 0
	}
	return float64(p.limiter.Limit())
}
