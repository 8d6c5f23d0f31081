package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/referral"

// Tracer provides OpenTelemetry spans for ingestion and attribution.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider. Until SetupTracing
// installs an exporter the global provider is a no-op.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartIngestSpan starts a span for processing one verified delivery.
func (t *Tracer) StartIngestSpan(ctx context.Context, deliveryID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "referral.ingest",
		trace.WithAttributes(
			attribute.String("referral.delivery_id", deliveryID),
			attribute.String("referral.event_type", eventType),
		),
	)
}

// StartAttributionSpan starts a span for one attribute call.
func (t *Tracer) StartAttributionSpan(ctx context.Context, userID, source string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "referral.attribute",
		trace.WithAttributes(
			attribute.String("referral.user_id", userID),
			attribute.String("referral.source", source),
		),
	)
}

// EndSpan records the outcome and ends span.
func (t *Tracer) EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("referral.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
