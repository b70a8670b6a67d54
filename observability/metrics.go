package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for the delivery engine. All methods
// are safe to call on a nil *Metrics.
type Metrics struct {
	SubmittedTotal  prometheus.Counter
	DeliveriesTotal *prometheus.CounterVec
	DeliveryLatency prometheus.Histogram
	BufferedEntries prometheus.Gauge
	ProbesTotal     *prometheus.CounterVec
	SkippedTicks    prometheus.Counter
	StoreErrors     *prometheus.CounterVec
}

// NewMetrics registers the engine's instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubmittedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_envelopes_submitted_total",
			Help: "Envelopes handed to Submit.",
		}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Delivery attempts by path (submit or retry) and outcome.",
		}, []string{"path", "outcome"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_delivery_latency_seconds",
			Help:    "Latency of delivery attempts to the daemon.",
			Buckets: prometheus.DefBuckets,
		}),
		BufferedEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_buffered_entries",
			Help: "Entries in the buffer as of the last drain pass.",
		}),
		ProbesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_health_probes_total",
			Help: "Daemon health probes by result.",
		}, []string{"result"}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_drain_skipped_total",
			Help: "Drain passes skipped because the daemon was unhealthy.",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_store_errors_total",
			Help: "Buffer store failures by operation.",
		}, []string{"op"}),
	}
}

// RecordDelivery records a delivery attempt on path with the given outcome and latency.
func (m *Metrics) RecordDelivery(path, outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(path, outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordSubmit counts an envelope handed to Submit.
func (m *Metrics) RecordSubmit() {
	if m == nil {
		return
	}
	m.SubmittedTotal.Inc()
}

// RecordProbe counts a health probe result.
func (m *Metrics) RecordProbe(healthy bool) {
	if m == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

// RecordSkip counts a drain pass skipped by the health gate.
func (m *Metrics) RecordSkip() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

// RecordStoreError counts a failed store operation.
func (m *Metrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

// SetBuffered sets the buffered entries gauge.
func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.BufferedEntries.Set(float64(n))
}
