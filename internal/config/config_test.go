package config_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/internal/config"
	"github.com/vyasoai/relay/store/bolt"
	"github.com/vyasoai/relay/store/memory"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	d := relay.DefaultConfig()
	if cfg.Daemon.BaseURL != d.BaseURL {
		t.Fatalf("expected base url %s, got %s", d.BaseURL, cfg.Daemon.BaseURL)
	}
	if cfg.Engine.TickInterval != time.Second || cfg.Engine.HealthCooldown != 5*time.Second {
		t.Fatalf("unexpected engine timings: %+v", cfg.Engine)
	}
	if cfg.Engine.BackoffBase != time.Second || cfg.Engine.BackoffMax != time.Minute {
		t.Fatalf("unexpected backoff: %+v", cfg.Engine)
	}
	if !cfg.Engine.Validate {
		t.Fatal("validation should default to on")
	}
	if cfg.Store.Driver != config.DriverBolt || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Store, cfg.Log)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
daemon:
  base_url: http://127.0.0.1:9999
  channel: vscode-extension
  request_timeout: 3s
engine:
  tick_interval: 250ms
  health_cooldown: 2s
  backoff_base: 500ms
  backoff_max: 30s
  drain_rate: 20
  drain_burst: 5
store:
  driver: sqlite
  path: /tmp/relay.sqlite
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Daemon.BaseURL != "http://127.0.0.1:9999" || cfg.Daemon.Channel != "vscode-extension" {
		t.Fatalf("unexpected daemon section: %+v", cfg.Daemon)
	}
	if cfg.Daemon.RequestTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.Daemon.RequestTimeout)
	}
	if cfg.Engine.TickInterval != 250*time.Millisecond || cfg.Engine.DrainRate != 20 || cfg.Engine.DrainBurst != 5 {
		t.Fatalf("unexpected engine section: %+v", cfg.Engine)
	}
	if cfg.Store.Driver != config.DriverSQLite || cfg.Store.Path != "/tmp/relay.sqlite" {
		t.Fatalf("unexpected store section: %+v", cfg.Store)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "daemon:\n  base_url: http://127.0.0.1:9999\n")
	t.Setenv("RELAY_DAEMON_BASE_URL", "http://127.0.0.1:7777")
	t.Setenv("RELAY_STORE_DRIVER", "memory")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Daemon.BaseURL != "http://127.0.0.1:7777" {
		t.Fatalf("expected env override, got %s", cfg.Daemon.BaseURL)
	}
	if cfg.Store.Driver != config.DriverMemory {
		t.Fatalf("expected memory driver, got %s", cfg.Store.Driver)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"zero tick", "engine:\n  tick_interval: 0s\n"},
		{"backoff inverted", "engine:\n  backoff_base: 2m\n  backoff_max: 1m\n"},
		{"malformed yaml", "daemon: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for an explicit path that does not exist")
	}
}

func TestRelayOptions(t *testing.T) {
	path := writeConfig(t, `
daemon:
  base_url: http://127.0.0.1:9999
engine:
  drain_rate: 10
  rejection_capacity: 7
  validate: false
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	opts := append(cfg.RelayOptions(), relay.WithStore(memory.New()))
	r, err := relay.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	got := r.Config()
	if got.BaseURL != "http://127.0.0.1:9999" || got.DrainRate != 10 || got.RejectionCapacity != 7 || got.Validate {
		t.Fatalf("options not applied: %+v", got)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		driver string
		path   string
	}{
		{config.DriverMemory, ""},
		{config.DriverBolt, filepath.Join(dir, "buffer.db")},
		{config.DriverSQLite, filepath.Join(dir, "buffer.sqlite")},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := &config.Config{Store: config.StoreConfig{Driver: tt.driver, Path: tt.path}}
			s, err := cfg.OpenStore(context.Background(), nil)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if err := s.Ping(context.Background()); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if tt.driver == config.DriverBolt {
				if _, ok := s.(*bolt.Store); !ok {
					t.Fatalf("expected *bolt.Store, got %T", s)
				}
			}
		})
	}

	cfg := &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}
	if _, err := cfg.OpenStore(context.Background(), nil); !errors.Is(err, config.ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Log: config.LogConfig{Level: "warn", Format: "json"}}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "event_id", "e1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"event_id":"e1"`) {
		t.Fatalf("expected json record, got %s", out)
	}
}
