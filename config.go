package relay

import (
	"time"

	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
)

// Config holds the configuration for a Relay instance.
type Config struct {
	// BaseURL is the daemon's base URL.
	BaseURL string

	// EventsPath is the daemon path envelopes are POSTed to.
	EventsPath string

	// HealthPath is the daemon's liveness path.
	HealthPath string

	// ChannelHeader names the header identifying the capture channel.
	ChannelHeader string

	// Channel is the value sent in ChannelHeader (e.g. "browser-extension").
	Channel string

	// TickInterval is how often the retry loop wakes up.
	TickInterval time.Duration

	// HealthCooldown is how long a health probe result is reused.
	HealthCooldown time.Duration

	// RequestTimeout bounds every delivery attempt and health probe.
	RequestTimeout time.Duration

	// BackoffBase and BackoffMax bound the retry delay before jitter.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// DrainRate caps retry deliveries per second. 0 means unlimited.
	DrainRate float64

	// DrainBurst is the pacer's burst size when DrainRate is set.
	DrainBurst int

	// RejectionCapacity is how many rejections the ledger retains.
	RejectionCapacity int

	// Validate enables local envelope validation before any network attempt.
	Validate bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           delivery.DefaultBaseURL,
		EventsPath:        delivery.DefaultEventsPath,
		HealthPath:        delivery.DefaultHealthPath,
		ChannelHeader:     delivery.DefaultChannelHeader,
		TickInterval:      delivery.DefaultTickInterval,
		HealthCooldown:    delivery.DefaultHealthCooldown,
		RequestTimeout:    10 * time.Second,
		BackoffBase:       delivery.DefaultBackoffBase,
		BackoffMax:        delivery.DefaultBackoffMax,
		DrainBurst:        1,
		RejectionCapacity: dlq.DefaultCapacity,
		Validate:          true,
	}
}
