package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewSyncMetricsNilProvider(t *testing.T) {
	t.Parallel()

	m, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// nil metrics must be safe to use
	m.RecordSessionDuration(context.Background(), "c", time.Second, "completed")
	m.RecordOperation(context.Background(), "c", "projects", OutcomeApplied)
	m.RecordDetectionError(context.Background(), "c", "remote")
}

func TestSyncMetricsRecord(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewSyncMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordSessionDuration(ctx, "city", 2*time.Second, "completed")
	m.RecordOperation(ctx, "city", "projects", OutcomeApplied)
	m.RecordOperation(ctx, "city", "projects", OutcomeApplied)
	m.RecordOperation(ctx, "city", "projects", OutcomeConflict)
	m.RecordDetectionError(ctx, "city", "remote")

	metrics := collect(t, reader)

	hist, ok := metrics["connector_sync_session_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 0.001)

	ops, ok := metrics["connector_sync_operations_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range ops.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		byOutcome[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeApplied: 2, OutcomeConflict: 1}, byOutcome)

	detection, ok := metrics["connector_sync_detection_errors_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, detection.DataPoints, 1)
	assert.Equal(t, int64(1), detection.DataPoints[0].Value)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewHTTPMetrics(provider)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	metrics := collect(t, reader)
	sum, ok := metrics["connector_sync_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	route, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("route"))
	assert.Equal(t, "/v1/sessions/{id}", route.AsString())
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status_code"))
	assert.Equal(t, "404", status.AsString())
}

func TestHTTPMetricsNilPassThrough(t *testing.T) {
	t.Parallel()

	var m *HTTPMetrics
	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
