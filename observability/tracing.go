package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vyasoai/relay"

// Tracer provides OpenTelemetry tracing for delivery attempts and health probes.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a span for one delivery attempt of eventID on path.
func (t *Tracer) StartDeliverySpan(ctx context.Context, eventID, path string, attempts int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("relay.event_id", eventID),
			attribute.String("relay.path", path),
			attribute.Int("relay.attempts", attempts),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, outcome, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("relay.latency_ms", latencyMs),
		attribute.String("relay.outcome", outcome),
	)
	if err != "" {
		span.SetAttributes(attribute.String("relay.error", err))
		span.SetStatus(codes.Error, err)
	}
	span.End()
}

// StartProbeSpan starts a span for a daemon health probe.
func (t *Tracer) StartProbeSpan(ctx context.Context, forced bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.probe",
		trace.WithAttributes(attribute.Bool("relay.forced", forced)),
	)
}

// EndProbeSpan ends a probe span.
func (t *Tracer) EndProbeSpan(span trace.Span, healthy bool) {
	span.SetAttributes(attribute.Bool("relay.healthy", healthy))
	span.End()
}
