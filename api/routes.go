package api

import (
	"errors"
	"net/http"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	"github.com/vyasoai/relay/delivery"
	"github.com/vyasoai/relay/dlq"
	"github.com/vyasoai/relay/envelope"
)

// submitRequest is either a complete envelope or a raw capture to be turned
// into one. A capture carries Content and leaves event_id empty.
type submitRequest struct {
	envelope.Envelope
	Content *string `json:"content,omitempty"`
}

func (req submitRequest) toEnvelope() envelope.Envelope {
	if req.Content == nil || req.EventID != "" {
		return req.Envelope
	}
	opts := []envelope.Option{
		envelope.WithTags(req.Tags...),
		envelope.WithContentPointer(req.ContentPointer),
	}
	if req.PrivacyFlag != "" {
		opts = append(opts, envelope.WithPrivacy(req.PrivacyFlag))
	}
	return envelope.New(req.Source, req.App, []byte(*req.Content), opts...)
}

type submitResponse struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) submitEvent(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	env := req.toEnvelope()

	outcome, err := h.engine.Submit(r.Context(), env)
	resp := submitResponse{EventID: env.EventID, Outcome: outcome.String()}

	switch {
	case errors.Is(err, relay.ErrInvalidEnvelope), errors.Is(err, relay.ErrRejected):
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case err != nil:
		h.logger.ErrorContext(r.Context(), "submit failed", "event_id", env.EventID, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	case outcome == delivery.Duplicate:
		writeJSON(w, http.StatusOK, resp)
	default:
		// Accepted by the daemon or durably buffered for retry.
		writeJSON(w, http.StatusAccepted, resp)
	}
}

type bufferResponse struct {
	Count   int             `json:"count"`
	Entries []*buffer.Entry `json:"entries"`
}

func (h *Handler) listBuffer(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.Buffered(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*buffer.Entry{}
	}
	writeJSON(w, http.StatusOK, bufferResponse{Count: len(entries), Entries: entries})
}

func (h *Handler) drain(w http.ResponseWriter, r *http.Request) {
	rep := h.engine.Drain(r.Context(), relay.DrainOptions{ForceProbe: queryBool(r, "force")})
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) listRejections(w http.ResponseWriter, r *http.Request) {
	entries := h.engine.Rejections(queryInt(r, "limit", 0))
	if entries == nil {
		entries = []dlq.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Health())
}

type setDaemonRequest struct {
	BaseURL string `json:"base_url"`
}

func (h *Handler) setDaemon(w http.ResponseWriter, r *http.Request) {
	var req setDaemonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.engine.SetBaseURL(req.BaseURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Health())
}
