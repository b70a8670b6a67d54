package delivery

import (
	"math/rand/v2"
	"time"
)

// Default backoff bounds.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 60 * time.Second
)

const maxShift = 62

// Backoff computes capped exponential retry delays with jitter:
//
//	delay(a) = min(Base * 2^a, Max) * j,  j ∈ [0.5, 1.5)
//
// with j drawn independently on every call.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	jitter func() float64
}

// NewBackoff returns a Backoff with the given bounds. Non-positive values
// fall back to the defaults.
func NewBackoff(base, maxDelay time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	return &Backoff{Base: base, Max: maxDelay, jitter: rand.Float64}
}

// WithJitterSource returns a copy of b drawing jitter from src, which must
// return values in [0, 1).
func (b *Backoff) WithJitterSource(src func() float64) *Backoff {
	c := *b
	c.jitter = src
	return &c
}

// Delay returns the wait before the next attempt after attempts failures.
// Negative attempts are treated as 0.
func (b *Backoff) Delay(attempts int) time.Duration {
	capped := b.capped(attempts)
	j := 0.5 + b.jitter()
	return time.Duration(float64(capped) * j)
}

// capped returns min(Base * 2^attempts, Max) with overflow protection.
func (b *Backoff) capped(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxShift {
		attempts = maxShift
	}
	d := b.Base
	for range attempts {
		if d >= b.Max {
			break
		}
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}
