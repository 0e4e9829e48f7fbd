package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span helpers for the gateway's main code paths. Each one names the span
// after the operation and attaches the attributes dashboards filter on.

// StartEvaluationSpan opens the span covering one access decision.
func StartEvaluationSpan(ctx context.Context, tenantID, clientID uuid.UUID, category string) (context.Context, trace.Span) {
	return otel.Tracer("gateway.policy").Start(ctx, "policy.evaluate_access",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID.String()),
			attribute.String("client.id", clientID.String()),
			attribute.String("data.category", category),
		))
}

// RecordVerdict stamps the decision outcome onto the evaluation span.
func RecordVerdict(span trace.Span, allowed bool, reason string) {
	span.SetAttributes(
		attribute.Bool("decision.allowed", allowed),
		attribute.String("decision.reason", reason),
	)
	if !allowed {
		span.SetStatus(codes.Ok, "denied: "+reason)
	}
}

// StartDetectorSpan opens a span for one pattern detector run.
func StartDetectorSpan(ctx context.Context, detector string) (context.Context, trace.Span) {
	return otel.Tracer("gateway.patterns").Start(ctx, "patterns."+detector,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("detector.name", detector)))
}

// StartScoringSpan opens a span for a behavioral anomaly scoring pass.
func StartScoringSpan(ctx context.Context, tenantID, clientID uuid.UUID, baselineVersion int) (context.Context, trace.Span) {
	return otel.Tracer("gateway.anomaly").Start(ctx, "anomaly.score",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID.String()),
			attribute.String("client.id", clientID.String()),
			attribute.Int("baseline.version", baselineVersion),
		))
}

// StartStorageSpan opens a client span around a database operation.
func StartStorageSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return otel.Tracer("gateway.storage").Start(ctx, fmt.Sprintf("db.%s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
			attribute.String("db.system", "postgresql"),
		))
}

// StartWorkerSpan opens the root span for one background worker sweep.
func StartWorkerSpan(ctx context.Context, worker string) (context.Context, trace.Span) {
	return otel.Tracer("gateway.workers").Start(ctx, "worker."+worker,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("worker.name", worker)))
}

// WithSpanError records err on the span and marks it failed. No-op for a
// nil error.
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent attaches a point-in-time event with attributes to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
