package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
	"github.com/vyasoai/relay/observability"
	"github.com/vyasoai/relay/store"
)

// Relay is the root delivery engine.
type Relay struct {
	config     Config
	store      store.Store
	client     *delivery.Client
	health     *delivery.HealthCache
	scheduler  *delivery.Scheduler
	dlqSvc     *dlq.Service
	validator  *envelope.Validator
	httpClient *http.Client
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	now        func() time.Time
	hook       dlq.Hook
	logger     *slog.Logger
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if err := r.wireServices(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithStore sets the buffer backend for the Relay instance.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithBaseURL sets the daemon's base URL.
func WithBaseURL(url string) Option {
	return func(r *Relay) error {
		r.config.BaseURL = url
		return nil
	}
}

// WithChannel sets the capture channel sent in the identifying header.
func WithChannel(channel string) Option {
	return func(r *Relay) error {
		r.config.Channel = channel
		return nil
	}
}

// WithTickInterval sets how often the retry loop wakes up.
func WithTickInterval(d time.Duration) Option {
	return func(r *Relay) error {
		if d <= 0 {
			return errors.New("relay: tick interval must be positive")
		}
		r.config.TickInterval = d
		return nil
	}
}

// WithHealthCooldown sets how long a health probe result is reused.
func WithHealthCooldown(d time.Duration) Option {
	return func(r *Relay) error {
		if d <= 0 {
			return errors.New("relay: health cooldown must be positive")
		}
		r.config.HealthCooldown = d
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt and probe.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithBackoff sets the retry delay bounds before jitter.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(r *Relay) error {
		if base <= 0 || maxDelay < base {
			return errors.New("relay: backoff requires 0 < base <= max")
		}
		r.config.BackoffBase = base
		r.config.BackoffMax = maxDelay
		return nil
	}
}

// WithHTTPClient sets the HTTP client used to reach the daemon.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) error {
		r.httpClient = c
		return nil
	}
}

// WithMetrics sets the Prometheus metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithDrainRate caps retry deliveries per second during a drain pass.
// A perSecond of 0 removes the cap.
func WithDrainRate(perSecond float64, burst int) Option {
	return func(r *Relay) error {
		r.config.DrainRate = perSecond
		r.config.DrainBurst = burst
		return nil
	}
}

// WithClock overrides the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) error {
		r.now = now
		return nil
	}
}

// WithValidation enables or disables local envelope validation.
func WithValidation(enabled bool) Option {
	return func(r *Relay) error {
		r.config.Validate = enabled
		return nil
	}
}

// WithRejectionHook sets a callback invoked for every permanent rejection.
func WithRejectionHook(h dlq.Hook) Option {
	return func(r *Relay) error {
		r.hook = h
		return nil
	}
}

// WithRejectionCapacity sets how many rejections the ledger retains.
func WithRejectionCapacity(n int) Option {
	return func(r *Relay) error {
		r.config.RejectionCapacity = n
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Relay) error {
		r.config = cfg
		return nil
	}
}
