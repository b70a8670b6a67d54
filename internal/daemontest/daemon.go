// Package daemontest provides an in-process fake of the local daemon for
// tests. It dedupes by event_id (falling back to content_hash), answers 202
// for new events and 200 for duplicates, and can be told to report unhealthy,
// fail with a fixed status or drop connections.
package daemontest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vyasoai/relay/envelope"
)

// Request is one POST the daemon received.
type Request struct {
	Header   http.Header
	Envelope envelope.Envelope
	Raw      []byte
}

// Daemon is a fake local daemon backed by httptest.Server.
type Daemon struct {
	srv *httptest.Server

	mu          sync.Mutex
	healthy     bool
	eventStatus int
	dropFirstN  int
	received    []Request
	seen        map[string]bool
	probes      int
}

// New starts a healthy fake daemon that is closed when the test ends.
func New(t testing.TB) *Daemon {
	t.Helper()
	d := &Daemon{healthy: true, seen: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", d.handleHealth)
	mux.HandleFunc("POST /v1/events", d.handleEvents)

	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

// URL returns the daemon's base URL.
func (d *Daemon) URL() string { return d.srv.URL }

// Close shuts the daemon down; later requests fail at the transport level.
func (d *Daemon) Close() { d.srv.Close() }

// SetHealthy controls the health endpoint's answer (200 or 500).
func (d *Daemon) SetHealthy(v bool) {
	d.mu.Lock()
	d.healthy = v
	d.mu.Unlock()
}

// SetEventStatus forces every event POST to answer code. Zero restores the
// dedupe behaviour.
func (d *Daemon) SetEventStatus(code int) {
	d.mu.Lock()
	d.eventStatus = code
	d.mu.Unlock()
}

// SetDropFirstN makes the next n event POSTs close the connection without
// a response.
func (d *Daemon) SetDropFirstN(n int) {
	d.mu.Lock()
	d.dropFirstN = n
	d.mu.Unlock()
}

// Received returns every event POST that produced a response.
func (d *Daemon) Received() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Request, len(d.received))
	copy(out, d.received)
	return out
}

// ReceivedIDs returns the event IDs of Received in arrival order.
func (d *Daemon) ReceivedIDs() []string {
	reqs := d.Received()
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.Envelope.EventID
	}
	return ids
}

// Probes returns how many health checks were served.
func (d *Daemon) Probes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	d.probes++
	healthy := d.healthy
	d.mu.Unlock()

	if !healthy {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	if d.dropFirstN > 0 {
		d.dropFirstN--
		d.mu.Unlock()
		drop(w)
		return
	}
	d.mu.Unlock()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid json"))
		return
	}

	d.mu.Lock()
	d.received = append(d.received, Request{Header: r.Header.Clone(), Envelope: env, Raw: raw})
	status := d.eventStatus
	if status == 0 {
		key := env.EventID
		if key == "" {
			key = env.ContentHash
		}
		status = http.StatusAccepted
		if key != "" && d.seen[key] {
			status = http.StatusOK
		}
		if key != "" {
			d.seen[key] = true
		}
	}
	d.mu.Unlock()

	w.WriteHeader(status)
	if status == http.StatusAccepted || status == http.StatusOK {
		_, _ = w.Write([]byte("accepted"))
	}
}

// drop closes the client connection without writing a response.
func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}
