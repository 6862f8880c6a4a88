package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, trace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestStartSpanNilTracer(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), nil, "sync.Run")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpanRecordsAttributes(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)

	_, span := StartSpan(context.Background(), tp.Tracer("test"), "sync.ProcessOperation",
		trace.WithAttributes(AttrCollection.String("projects"), AttrRecordID.String("r1")),
	)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.ProcessOperation", spans[0].Name)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "projects", attrs["sync.collection"])
	assert.Equal(t, "r1", attrs["sync.record_id"])
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)

	_, span := tp.Tracer("test").Start(context.Background(), "failing")
	RecordError(span, errors.New("remote returned 500"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "operation failed", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}
