// Package buffer defines the persisted retry state for envelopes that could
// not be delivered, and the storage contract every backend implements.
package buffer

import (
	"time"

	"github.com/vyasoai/relay/envelope"
)

// Entry is the persisted retry state wrapping an undelivered envelope.
// Exactly one Entry exists per event ID.
type Entry struct {
	// ID is the envelope's event ID and the primary key.
	ID string `json:"id"`

	// Body is the envelope awaiting delivery.
	Body envelope.Envelope `json:"body"`

	// Attempts counts failed retry attempts made from the buffer.
	Attempts int `json:"attempts"`

	// LastAttempt is the epoch millis of the most recent attempt.
	LastAttempt int64 `json:"last_attempt"`

	// NextDue is the epoch millis at which the entry becomes eligible for
	// retry. Zero means due immediately.
	NextDue int64 `json:"next_due,omitempty"`
}

// NewEntry returns the initial buffered state for an envelope whose immediate
// delivery attempt at now failed, first due after delay.
func NewEntry(env envelope.Envelope, now time.Time, delay time.Duration) *Entry {
	ms := now.UnixMilli()
	return &Entry{
		ID:          env.EventID,
		Body:        env,
		Attempts:    0,
		LastAttempt: ms,
		NextDue:     ms + clampDelay(delay),
	}
}

// Due reports whether the entry is eligible for retry at now.
func (e *Entry) Due(now time.Time) bool {
	return e.NextDue <= now.UnixMilli()
}

// Reschedule records a failed attempt at now: Attempts is incremented and
// NextDue is pushed out by backoff(Attempts).
func (e *Entry) Reschedule(now time.Time, backoff func(attempts int) time.Duration) {
	e.Attempts++
	ms := now.UnixMilli()
	e.LastAttempt = ms
	e.NextDue = ms + clampDelay(backoff(e.Attempts))
}

// NextDueTime returns NextDue as a time.
func (e *Entry) NextDueTime() time.Time {
	return time.UnixMilli(e.NextDue).UTC()
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Body = e.Body.Clone()
	return &c
}

// clampDelay keeps NextDue strictly after LastAttempt.
func clampDelay(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
