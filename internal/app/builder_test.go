package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	storagemocks "github.com/stacklok/connector-sync/internal/app/storage/mocks"
	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/connector"
	connectormocks "github.com/stacklok/connector-sync/internal/connector/mocks"
	"github.com/stacklok/connector-sync/internal/store/inmemory"
	"github.com/stacklok/connector-sync/internal/sync"
	syncmocks "github.com/stacklok/connector-sync/internal/sync/mocks"
	"github.com/stacklok/connector-sync/internal/sync/state"
)

func TestBaseConfigDefaults(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithConfig(createTestAppConfig()))
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	assert.Equal(t, defaultWriteTimeout, built.writeTimeout)
	assert.Greater(t, built.writeTimeout, built.requestTimeout)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":9090"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "ip and port", addr: "10.0.0.1:8080"},
		{name: "empty", addr: "", wantErr: true},
		{name: "missing port", addr: ":", wantErr: true},
		{name: "no colon", addr: "8080", wantErr: true},
		{name: "bad port", addr: ":http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := baseConfig(WithAddress(tt.addr))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, built)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, built.address)
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	t.Run("static", func(t *testing.T) {
		t.Parallel()
		b := &syncAppConfig{config: createTestAppConfig()}

		registry, err := buildRegistry(b)
		require.NoError(t, err)
		require.IsType(t, &connector.StaticRegistry{}, registry)

		refs, err := registry.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []connector.Ref{{Name: "crm", OrgUnit: "acme"}}, refs)
	})

	t.Run("kubernetes with injected client", func(t *testing.T) {
		t.Parallel()
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "unrelated", Namespace: "sync"},
		}
		b, err := baseConfig(
			WithConfig(&config.Config{Registry: config.RegistryConfig{
				Type:          config.RegistryTypeKubernetes,
				Namespace:     "sync",
				LabelSelector: map[string]string{"app": "connector-sync"},
			}}),
			WithKubernetesClient(fake.NewClientBuilder().WithObjects(cm).Build()),
		)
		require.NoError(t, err)

		registry, err := buildRegistry(b)
		require.NoError(t, err)
		require.IsType(t, &connector.KubernetesRegistry{}, registry)

		refs, err := registry.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		b := &syncAppConfig{config: &config.Config{Registry: config.RegistryConfig{Type: "etcd"}}}

		_, err := buildRegistry(b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown registry type: etcd")
	})
}

func TestNewSyncApp_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    func(*gomock.Controller) []SyncAppOptions
		wantErr string
	}{
		{
			name: "missing config",
			opts: func(*gomock.Controller) []SyncAppOptions {
				return nil
			},
			wantErr: "config cannot be nil",
		},
		{
			name: "invalid option",
			opts: func(*gomock.Controller) []SyncAppOptions {
				return []SyncAppOptions{WithConfig(createTestAppConfig()), WithAddress("")}
			},
			wantErr: "address cannot be empty",
		},
		{
			name: "journal creation fails and storage is released",
			opts: func(ctrl *gomock.Controller) []SyncAppOptions {
				factory := storagemocks.NewMockFactory(ctrl)
				factory.EXPECT().CreateRecordStore(gomock.Any()).Return(inmemory.New(), nil)
				factory.EXPECT().CreateJournal(gomock.Any()).Return(nil, errors.New("disk full"))
				factory.EXPECT().Cleanup()
				return []SyncAppOptions{WithConfig(createTestAppConfig()), WithStorageFactory(factory)}
			},
			wantErr: "failed to create journal: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			app, err := NewSyncApp(context.Background(), tt.opts(ctrl)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, app)
		})
	}
}

func TestNewSyncApp_InjectedComponents(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	registry := connectormocks.NewMockRegistry(ctrl)
	manager := syncmocks.NewMockManager(ctrl)
	coord := &fakeCoordinator{}

	req := sync.Request{ConnectorName: "crm", OrgUnit: "acme"}
	manager.EXPECT().Run(gomock.Any(), req).Return(&sync.Result{SessionID: "s-9", Success: true}, nil)

	app, err := NewSyncApp(context.Background(),
		WithConfig(createTestAppConfig()),
		WithConnectorRegistry(registry),
		WithSyncManager(manager),
		WithCoordinator(coord),
	)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Same(t, registry, app.components.Registry)
	assert.Same(t, coord, app.components.SyncCoordinator)

	rr := httptest.NewRecorder()
	app.GetHTTPServer().Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/connectors/acme/crm/sync", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"session_id":"s-9"`)
}

func TestNewSyncApp_ReadinessUsesStorage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().CreateRecordStore(gomock.Any()).Return(inmemory.New(), nil)
	factory.EXPECT().CreateJournal(gomock.Any()).Return(state.NewMemoryJournal(), nil)
	factory.EXPECT().CheckReadiness(gomock.Any()).Return(errors.New("database not reachable"))
	factory.EXPECT().Cleanup()

	app, err := NewSyncApp(context.Background(), WithConfig(createTestAppConfig()), WithStorageFactory(factory))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rr := httptest.NewRecorder()
	app.GetHTTPServer().Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// remoteProjects serves a fixed project list and accepts nothing else
func remoteProjects(t *testing.T, updatedAt time.Time) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/projects" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"external_id": "p-1",
			"title":       "Apollo",
			"updated_at":  updatedAt.Format(time.RFC3339),
		}})
	}))
	srv.Config.SetKeepAlivesEnabled(false)
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSyncApp_EndToEnd(t *testing.T) {
	t.Parallel()

	remote := remoteProjects(t, time.Now().UTC().Add(-time.Minute).Truncate(time.Second))
	cfg := &config.Config{
		Connectors: []config.ConnectorConfig{{
			Name:      "crm",
			OrgUnit:   "acme",
			Endpoint:  remote.URL,
			Direction: string(connector.DirectionRemoteToLocal),
			Collections: []config.CollectionConfig{{
				Name: "projects",
				FieldMap: config.FieldMapConfig{
					SourceToTarget: map[string]string{"external_id": "id", "title": "name", "updated_at": "updated_at"},
					TargetToSource: map[string]string{"id": "external_id", "name": "title", "updated_at": "updated_at"},
				},
			}},
		}},
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	app, err := NewSyncApp(context.Background(), WithConfig(cfg), WithMeterProvider(provider))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	handler := app.GetHTTPServer().Handler

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/connectors/acme/crm/sync", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result struct {
		SessionID           string `json:"session_id"`
		Success             bool   `json:"success"`
		OperationsProcessed int    `json:"operations_processed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.OperationsProcessed)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/versions/projects/p-1?orgUnit=acme", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var versions struct {
		Versions []struct {
			VersionNumber int    `json:"version_number"`
			SessionID     string `json:"session_id"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &versions))
	require.Len(t, versions.Versions, 1)
	assert.Equal(t, result.SessionID, versions.Versions[0].SessionID)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+result.SessionID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["connector_sync_operations_total"])
	assert.True(t, names["connector_sync_session_duration_seconds"])
	assert.True(t, names["connector_sync_http_requests_total"])
}
