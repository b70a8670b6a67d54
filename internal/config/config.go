// Package config loads relayctl configuration from a YAML file and RELAY_*
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/store"
	"github.com/vyasoai/relay/store/bolt"
	"github.com/vyasoai/relay/store/memory"
	"github.com/vyasoai/relay/store/redis"
	"github.com/vyasoai/relay/store/sqlite"
)

// Store drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// ErrUnknownDriver is returned by OpenStore for an unsupported driver name.
var ErrUnknownDriver = errors.New("config: unknown store driver")

type Config struct {
	Daemon DaemonConfig `mapstructure:"daemon"`
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
	API    APIConfig    `mapstructure:"api"`
	Log    LogConfig    `mapstructure:"log"`
}

type DaemonConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Channel        string        `mapstructure:"channel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type EngineConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	HealthCooldown    time.Duration `mapstructure:"health_cooldown"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	DrainRate         float64       `mapstructure:"drain_rate"`
	DrainBurst        int           `mapstructure:"drain_burst"`
	RejectionCapacity int           `mapstructure:"rejection_capacity"`
	Validate          bool          `mapstructure:"validate"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from configPath, or from relayctl.yaml in the
// working directory or $HOME/.relay when configPath is empty. A missing
// file falls back to defaults. Environment variables such as
// RELAY_DAEMON_BASE_URL override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("relayctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.relay")
		}
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := relay.DefaultConfig()

	v.SetDefault("daemon.base_url", d.BaseURL)
	v.SetDefault("daemon.channel", "relayctl")
	v.SetDefault("daemon.request_timeout", d.RequestTimeout)

	v.SetDefault("engine.tick_interval", d.TickInterval)
	v.SetDefault("engine.health_cooldown", d.HealthCooldown)
	v.SetDefault("engine.backoff_base", d.BackoffBase)
	v.SetDefault("engine.backoff_max", d.BackoffMax)
	v.SetDefault("engine.drain_rate", d.DrainRate)
	v.SetDefault("engine.drain_burst", d.DrainBurst)
	v.SetDefault("engine.rejection_capacity", d.RejectionCapacity)
	v.SetDefault("engine.validate", d.Validate)

	v.SetDefault("store.driver", DriverBolt)
	v.SetDefault("store.path", "relay.db")
	v.SetDefault("store.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("store.prefix", redis.DefaultPrefix)

	v.SetDefault("api.addr", "127.0.0.1:8766")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks values that would otherwise fail late inside relay.New.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverBolt, DriverSQLite, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	if c.Engine.TickInterval <= 0 {
		return errors.New("config: engine.tick_interval must be positive")
	}
	if c.Engine.HealthCooldown <= 0 {
		return errors.New("config: engine.health_cooldown must be positive")
	}
	if c.Engine.BackoffBase <= 0 || c.Engine.BackoffBase > c.Engine.BackoffMax {
		return errors.New("config: engine.backoff_base must be positive and not exceed engine.backoff_max")
	}
	return nil
}

// RelayOptions translates the configuration into engine options. The store
// is supplied separately via OpenStore.
func (c *Config) RelayOptions() []relay.Option {
	opts := []relay.Option{
		relay.WithBaseURL(c.Daemon.BaseURL),
		relay.WithChannel(c.Daemon.Channel),
		relay.WithTickInterval(c.Engine.TickInterval),
		relay.WithHealthCooldown(c.Engine.HealthCooldown),
		relay.WithBackoff(c.Engine.BackoffBase, c.Engine.BackoffMax),
		relay.WithValidation(c.Engine.Validate),
		relay.WithRejectionCapacity(c.Engine.RejectionCapacity),
	}
	if c.Daemon.RequestTimeout > 0 {
		opts = append(opts, relay.WithRequestTimeout(c.Daemon.RequestTimeout))
	}
	if c.Engine.DrainRate > 0 {
		opts = append(opts, relay.WithDrainRate(c.Engine.DrainRate, c.Engine.DrainBurst))
	}
	return opts
}

// OpenStore opens the configured buffer backend and runs its migrations.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Store.Driver {
	case DriverBolt:
		s, err = bolt.Open(c.Store.Path, bolt.WithLogger(logger))
	case DriverSQLite:
		s, err = sqlite.Open(ctx, c.Store.Path, sqlite.WithLogger(logger))
	case DriverRedis:
		s, err = redis.Open(ctx, c.Store.URL, redis.WithPrefix(c.Store.Prefix), redis.WithLogger(logger))
	case DriverMemory:
		s = memory.New()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store.Driver, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", c.Store.Driver, err)
	}
	return s, nil
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
