package repository

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of repository spans.
const TracerName = "github.com/openpdv/pdvhost/internal/repository"

// Span attribute keys.
const (
	AttrEntity      = attribute.Key("pdv.entity")
	AttrOffset      = attribute.Key("pagination.offset")
	AttrLimit       = attribute.Key("pagination.limit")
	AttrResultCount = attribute.Key("result.count")
	AttrFilter      = attribute.Key("pdv.filter")
)

// startSpan starts a span for a database operation. Every span carries
// db.system=postgresql.
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	attrs = append([]attribute.KeyValue{semconv.DBSystemPostgreSQL}, attrs...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// recordError marks the span as failed. The status text stays generic so
// SQL and connection details only appear in the recorded event.
func recordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
