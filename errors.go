package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("relay: store is required")

	// ErrRejected is returned when the daemon permanently refuses an envelope.
	ErrRejected = errors.New("relay: envelope rejected by daemon")

	// ErrInvalidEnvelope is returned when an envelope fails local validation.
	// Such envelopes are never sent and never buffered.
	ErrInvalidEnvelope = errors.New("relay: invalid envelope")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("relay: store is closed")

	// ErrEntryNotFound is returned when a buffered entry cannot be found.
	ErrEntryNotFound = errors.New("relay: buffered entry not found")

	// ErrMigrationFailed is returned when a store schema migration fails.
	ErrMigrationFailed = errors.New("relay: migration failed")
)

// RejectionError carries the daemon's answer for a rejected envelope.
// It unwraps to ErrRejected.
type RejectionError struct {
	EventID    string
	StatusCode int
	Response   string
}

func (e *RejectionError) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("relay: envelope %s rejected by daemon: status %d", e.EventID, e.StatusCode)
	}
	return fmt.Sprintf("relay: envelope %s rejected by daemon: status %d: %s", e.EventID, e.StatusCode, e.Response)
}

// Unwrap allows errors.Is(err, ErrRejected).
func (e *RejectionError) Unwrap() error { return ErrRejected }
