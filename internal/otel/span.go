// Package otel provides the OpenTelemetry helpers used to trace data
// retrieval.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of retrieval spans
const TracerName = "github.com/uom-robota/robota-core"

// Attribute keys shared by retrieval spans.
const (
	AttrDataType    = attribute.Key("robota.data_type")
	AttrSourceName  = attribute.Key("robota.source.name")
	AttrSourceType  = attribute.Key("robota.source.type")
	AttrResultCount = attribute.Key("result.count")
)

// StartSpan starts a span when tracer is non-nil. Otherwise ctx is returned
// unchanged with a no-op span, so ending it never ends a caller's span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. The status text is
// generic so tokens embedded in URLs never reach the trace status; the
// event keeps the full error.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// RecordCount sets AttrResultCount on span.
func RecordCount(span trace.Span, n int) {
	if span != nil {
		span.SetAttributes(AttrResultCount.Int(n))
	}
}
