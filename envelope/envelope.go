// Package envelope defines the unit of captured content submitted to the
// local daemon, plus helpers for building and validating envelopes.
package envelope

import (
	"encoding/json"
	"time"
)

// PrivacyFlag classifies how the daemon may treat captured content.
type PrivacyFlag string

const (
	// PrivacyDefault allows normal storage and indexing.
	PrivacyDefault PrivacyFlag = "default"

	// PrivacySensitive marks content the daemon should handle with extra care.
	PrivacySensitive PrivacyFlag = "sensitive"

	// PrivacyNeverStore asks the daemon not to persist the content.
	PrivacyNeverStore PrivacyFlag = "never_store"
)

// Valid reports whether f is one of the known privacy flags.
func (f PrivacyFlag) Valid() bool {
	switch f {
	case PrivacyDefault, PrivacySensitive, PrivacyNeverStore:
		return true
	}
	return false
}

// TimestampLayout is the RFC3339 layout used for Envelope.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope describes one captured piece of content destined for the daemon.
// Envelopes are immutable once built; ContentHash is never recomputed after
// the envelope has been submitted.
type Envelope struct {
	// EventID is the globally unique identifier assigned at capture time.
	EventID string `json:"event_id"`

	// Timestamp is the capture time in RFC3339.
	Timestamp string `json:"timestamp"`

	// Source identifies the capture front-end (e.g. "browser-extension").
	Source string `json:"source"`

	// App is the originating application.
	App string `json:"app"`

	// ContentPointer is an opaque locator for the content. May be empty.
	ContentPointer string `json:"content_pointer"`

	// ContentHash is the hex SHA-256 digest of the captured content.
	ContentHash string `json:"content_hash"`

	// SizeBytes is the size of the captured content.
	SizeBytes uint64 `json:"size_bytes"`

	// Tags carries free-form capture context, in order.
	Tags []string `json:"tags"`

	// PrivacyFlag classifies the content.
	PrivacyFlag PrivacyFlag `json:"privacy_flag"`

	// Diff is a unified diff for edit-style captures.
	Diff string `json:"diff,omitempty"`

	// ContentPreview is a bounded prefix of the content for edit-style captures.
	ContentPreview string `json:"content_preview,omitempty"`
}

// MarshalJSON encodes the envelope in its wire format. A nil Tags slice is
// written as an empty array; the daemon requires the field to be present.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type wire Envelope
	w := wire(e)
	if w.Tags == nil {
		w.Tags = []string{}
	}
	return json.Marshal(w)
}

// CapturedAt parses Timestamp. The zero time is returned when the timestamp
// is malformed.
func (e Envelope) CapturedAt() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy of the envelope.
func (e Envelope) Clone() Envelope {
	if e.Tags != nil {
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		e.Tags = tags
	}
	return e
}
