// Package api provides the admin HTTP API a host mounts to submit envelopes
// and inspect or drain the buffer.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
)

// Engine is the subset of *relay.Relay the handler drives.
type Engine interface {
	Submit(ctx context.Context, env envelope.Envelope) (delivery.Outcome, error)
	Buffered(ctx context.Context) ([]*buffer.Entry, error)
	Drain(ctx context.Context, opts relay.DrainOptions) delivery.DrainReport
	Rejections(limit int) []dlq.Entry
	Health() relay.HealthStatus
	SetBaseURL(url string) error
}

// compile-time interface check.
var _ Engine = (*relay.Relay)(nil)

// Handler serves the admin API over an Engine.
type Handler struct {
	engine Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler returns the admin API for engine. A nil logger uses slog.Default.
func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	h := &Handler{engine: engine, logger: logger, mux: http.NewServeMux()}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("POST /events", h.submitEvent)
	h.mux.HandleFunc("GET /buffer", h.listBuffer)
	h.mux.HandleFunc("POST /drain", h.drain)
	h.mux.HandleFunc("GET /rejections", h.listRejections)
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("PUT /daemon", h.setDaemon)
}

// maxRequestBody bounds a submitted capture or envelope.
const maxRequestBody = 8 << 20

// RequestIDHeader carries the per-request correlation ID echoed in logs.
const RequestIDHeader = "X-Request-ID"

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			h.logger.ErrorContext(r.Context(), "admin handler panicked",
				"request_id", id,
				"route", r.Pattern,
				"error", p,
				"stack", string(debug.Stack()))
			writeError(rec, http.StatusInternalServerError, "internal server error")
		}
		h.logger.DebugContext(r.Context(), "admin request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	}()

	h.mux.ServeHTTP(rec, r)
}

// statusRecorder remembers the status written so it can be logged.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// queryInt parses a non-negative integer parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryBool reports whether a parameter parses as true.
func queryBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}
