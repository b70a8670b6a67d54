package delivery

import "net/http"

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// Accepted means the daemon accepted a new event (202).
	Accepted Outcome = iota

	// Duplicate means the daemon had already processed the event (200).
	Duplicate

	// Rejected means the daemon refused the payload (4xx). Never retried.
	Rejected

	// Unreachable means a transport failure, timeout or 5xx. Retryable.
	Unreachable
)

// String returns the lower-case outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// Delivered reports whether the outcome removes the event from the buffer
// as a success.
func (o Outcome) Delivered() bool {
	return o == Accepted || o == Duplicate
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// Classify maps an HTTP status code to an Outcome. A zero code means the
// request never produced a response.
//
// Decision matrix:
//   - 202 → Accepted
//   - 200 → Duplicate
//   - other 2xx → Accepted
//   - 408, 429 → Unreachable (transient availability)
//   - other 4xx → Rejected
//   - 5xx, 1xx, 3xx, 0 → Unreachable
func Classify(code int) Outcome {
	switch {
	case code == http.StatusAccepted:
		return Accepted
	case code == http.StatusOK:
		return Duplicate
	case code >= 200 && code < 300:
		return Accepted
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return Unreachable
	case code >= 400 && code < 500:
		return Rejected
	default:
		return Unreachable
	}
}
