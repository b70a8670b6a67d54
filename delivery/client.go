package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vyasoai/relay/envelope"
)

const maxResponseBody = 1024 // 1KB cap on captured response body

// Daemon HTTP defaults.
const (
	DefaultBaseURL       = "http://127.0.0.1:8765"
	DefaultEventsPath    = "/v1/events"
	DefaultHealthPath    = "/v1/health"
	DefaultChannelHeader = "X-Vyaso-Local-Client"
)

// ErrInvalidBaseURL is returned when a daemon base URL is not absolute http(s).
var ErrInvalidBaseURL = errors.New("delivery: base URL must be an absolute http or https URL")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL       string
	EventsPath    string
	HealthPath    string
	ChannelHeader string
	Channel       string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client performs delivery attempts and health probes against the daemon.
type Client struct {
	client  *http.Client
	baseURL atomic.Pointer[string]
	cfg     ClientConfig
}

// NewClient creates a client. A nil HTTPClient is replaced with one bounded
// by cfg.Timeout; every request is additionally bounded by cfg.Timeout.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EventsPath == "" {
		cfg.EventsPath = DefaultEventsPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.ChannelHeader == "" {
		cfg.ChannelHeader = DefaultChannelHeader
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{client: hc, cfg: cfg}
	if err := c.SetBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBaseURL retargets the client at a different daemon.
func (c *Client) SetBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	base := strings.TrimRight(raw, "/")
	c.baseURL.Store(&base)
	return nil
}

// BaseURL returns the current daemon base URL.
func (c *Client) BaseURL() string {
	return *c.baseURL.Load()
}

// Channel returns the capture channel sent in the identifying header.
func (c *Client) Channel() string {
	return c.cfg.Channel
}

// Deliver POSTs env to the daemon's events endpoint and classifies the result.
func (c *Client) Deliver(ctx context.Context, env envelope.Envelope) Result {
	body, err := json.Marshal(env)
	if err != nil {
		// A payload that cannot be encoded will never be accepted.
		return Result{Outcome: Rejected, Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+c.cfg.EventsPath, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Unreachable, Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.cfg.ChannelHeader, c.cfg.Channel)

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Outcome:   Unreachable,
			Error:     err.Error(),
			LatencyMs: latency,
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := Result{
		Outcome:    Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
	if readErr != nil {
		res.Error = fmt.Sprintf("read response: %v", readErr)
	}
	if res.Outcome == Unreachable && res.Error == "" {
		res.Error = fmt.Sprintf("daemon responded %d", resp.StatusCode)
	}
	return res
}

// Probe performs one health check. Any transport error, timeout or non-2xx
// status is reported as unhealthy.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+c.cfg.HealthPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set(c.cfg.ChannelHeader, c.cfg.Channel)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
