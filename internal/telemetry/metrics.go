package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the meter of the sync engine
	SyncMetricsMeterName = "github.com/stacklok/connector-sync/sync"

	// HTTPMetricsMeterName is the meter of the HTTP API
	HTTPMetricsMeterName = "github.com/stacklok/connector-sync/http"

	// DefaultMetricsInterval is the export interval of the periodic reader
	DefaultMetricsInterval = 60 * time.Second
)

// Operation outcomes used as metric attributes
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// SyncMetrics holds the instruments of the sync engine. A nil *SyncMetrics
// records nothing.
type SyncMetrics struct {
	sessionDuration metric.Float64Histogram
	operations      metric.Int64Counter
	detectionErrors metric.Int64Counter
}

// NewSyncMetrics creates the sync instruments. If provider is nil, it returns nil.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	sessionDuration, err := meter.Float64Histogram(
		"connector_sync_session_duration_seconds",
		metric.WithDescription("Duration of sync sessions in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	operations, err := meter.Int64Counter(
		"connector_sync_operations_total",
		metric.WithDescription("Sync operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	detectionErrors, err := meter.Int64Counter(
		"connector_sync_detection_errors_total",
		metric.WithDescription("Change detection failures by side"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		sessionDuration: sessionDuration,
		operations:      operations,
		detectionErrors: detectionErrors,
	}, nil
}

// RecordSessionDuration records how long a session ran and how it ended
func (m *SyncMetrics) RecordSessionDuration(ctx context.Context, connector string, duration time.Duration, phase string) {
	if m == nil {
		return
	}
	m.sessionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("connector", connector),
		attribute.String("phase", phase),
	))
}

// RecordOperation counts one processed operation
func (m *SyncMetrics) RecordOperation(ctx context.Context, connector, collection, outcome string) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connector", connector),
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	))
}

// RecordDetectionError counts one failed fetch of a collection
func (m *SyncMetrics) RecordDetectionError(ctx context.Context, connector, side string) {
	if m == nil {
		return
	}
	m.detectionErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connector", connector),
		attribute.String("side", side),
	))
}

// HTTPMetrics holds the instruments of the HTTP API
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
}

// NewHTTPMetrics creates the HTTP instruments. If provider is nil, it returns nil.
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(HTTPMetricsMeterName)

	requestDuration, err := meter.Float64Histogram(
		"connector_sync_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"connector_sync_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{requestDuration: requestDuration, requestsTotal: requestsTotal}, nil
}

// Middleware records one sample per request, labelled by chi route pattern.
// A nil *HTTPMetrics passes requests through.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unknown_route"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requestsTotal.Add(ctx, 1, attrs)
	})
}
