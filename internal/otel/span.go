// Package otel provides tracing helpers shared by the sync engine and the API.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to sync spans.
const (
	AttrConnector  = attribute.Key("sync.connector")
	AttrOrgUnit    = attribute.Key("sync.org_unit")
	AttrSessionID  = attribute.Key("sync.session_id")
	AttrDirection  = attribute.Key("sync.direction")
	AttrCollection = attribute.Key("sync.collection")
	AttrRecordID   = attribute.Key("sync.record_id")
	AttrOrigin     = attribute.Key("sync.origin")
	AttrOutcome    = attribute.Key("sync.outcome")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when
// tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. The status
// description stays generic so that endpoint URLs and payloads are only
// visible in the error event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
