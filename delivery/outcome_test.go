package delivery_test

import (
	"testing"

	"github.com/vyasoai/relay/delivery"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code int
		want delivery.Outcome
	}{
		{"202 accepted", 202, delivery.Accepted},
		{"200 duplicate", 200, delivery.Duplicate},
		{"201 other 2xx", 201, delivery.Accepted},
		{"204 other 2xx", 204, delivery.Accepted},
		{"400 bad request", 400, delivery.Rejected},
		{"413 too large", 413, delivery.Rejected},
		{"422 unprocessable", 422, delivery.Rejected},
		{"408 request timeout", 408, delivery.Unreachable},
		{"429 too many requests", 429, delivery.Unreachable},
		{"500 server error", 500, delivery.Unreachable},
		{"503 unavailable", 503, delivery.Unreachable},
		{"301 redirect", 301, delivery.Unreachable},
		{"no response", 0, delivery.Unreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := delivery.Classify(tt.code); got != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestOutcomeDelivered(t *testing.T) {
	if !delivery.Accepted.Delivered() || !delivery.Duplicate.Delivered() {
		t.Fatal("Accepted and Duplicate should count as delivered")
	}
	if delivery.Rejected.Delivered() || delivery.Unreachable.Delivered() {
		t.Fatal("Rejected and Unreachable should not count as delivered")
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[delivery.Outcome]string{
		delivery.Accepted:    "accepted",
		delivery.Duplicate:   "duplicate",
		delivery.Rejected:    "rejected",
		delivery.Unreachable: "unreachable",
		delivery.Outcome(42): "unknown",
	} {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(o), o.String(), want)
		}
	}
}
