package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stacklok/connector-sync/internal/api"
	"github.com/stacklok/connector-sync/internal/app/storage"
	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/coordinator"
	"github.com/stacklok/connector-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 11 * time.Minute
	defaultIdleTimeout    = 60 * time.Second
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig collects the inputs of NewSyncApp. Component overrides exist
// for tests; production callers only set the configuration and providers.
type syncAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	registry       connector.Registry
	kubeClient     client.Reader
	clientFactory  sync.ClientFactory
	syncManager    sync.Manager
	coordinator    coordinator.Coordinator

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewSyncApp wires storage, the connector registry, the sync manager, the
// periodic coordinator and the HTTP server.
func NewSyncApp(ctx context.Context, opts ...SyncAppOptions) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.storageFactory == nil {
		var factoryOpts []storage.DatabaseFactoryOption
		if cfg.tracerProvider != nil {
			factoryOpts = append(factoryOpts, storage.WithTracer(cfg.tracerProvider.Tracer(telemetry.TracerName)))
		}
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config, factoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	cancelFunc := func() {
		cfg.storageFactory.Cleanup()
		cancel()
	}

	return &SyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithConnectorRegistry replaces the registry built from the configuration
func WithConnectorRegistry(r connector.Registry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.registry = r
		return nil
	}
}

// WithKubernetesClient sets the client used by the kubernetes connector
// registry instead of one built from the ambient kubeconfig.
func WithKubernetesClient(c client.Reader) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.kubeClient = c
		return nil
	}
}

// WithClientFactory replaces how remote clients are built for connectors
func WithClientFactory(f sync.ClientFactory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.clientFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(m sync.Manager) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.syncManager = m
		return nil
	}
}

// WithCoordinator allows injecting a custom coordinator (for testing)
func WithCoordinator(c coordinator.Coordinator) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.coordinator = c
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for session spans
func WithTracerProvider(tp trace.TracerProvider) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// connectorDefaults returns the engine-wide settings connectors fall back to
func connectorDefaults(cfg *config.Config) connector.Defaults {
	return connector.Defaults{
		Concurrency: cfg.Sync.GetConcurrency(),
		Timeout:     cfg.Sync.GetTimeout(),
		Retry:       cfg.Sync.Retry,
	}
}

// buildRegistry creates the connector registry selected by the configuration
func buildRegistry(b *syncAppConfig) (connector.Registry, error) {
	defaults := connectorDefaults(b.config)

	switch b.config.GetRegistryType() {
	case config.RegistryTypeStatic:
		slog.Info("Using static connector registry", "connectors", len(b.config.Connectors))
		return connector.NewStaticRegistry(b.config.Connectors, defaults), nil
	case config.RegistryTypeKubernetes:
		if b.kubeClient == nil {
			c, err := newKubernetesClient()
			if err != nil {
				return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
			}
			b.kubeClient = c
		}
		slog.Info("Using kubernetes connector registry", "namespace", b.config.Registry.Namespace)
		return connector.NewKubernetesRegistry(
			b.kubeClient,
			b.config.Registry.Namespace,
			b.config.Registry.LabelSelector,
			defaults,
		), nil
	default:
		return nil, fmt.Errorf("unknown registry type: %s", b.config.GetRegistryType())
	}
}

// newKubernetesClient builds a client from the in-cluster configuration,
// falling back to the local kubeconfig.
func newKubernetesClient() (client.Client, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restConfig, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, err
		}
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add Kubernetes core types to scheme: %w", err)
	}
	return client.New(restConfig, client.Options{Scheme: scheme})
}

// buildSyncComponents builds storage, the registry, the sync manager and the coordinator
func buildSyncComponents(ctx context.Context, b *syncAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	records, err := b.storageFactory.CreateRecordStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}
	journal, err := b.storageFactory.CreateJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	if b.registry == nil {
		b.registry, err = buildRegistry(b)
		if err != nil {
			return nil, err
		}
	}

	if b.syncManager == nil {
		managerOpts := []sync.Option{sync.WithLookback(b.config.Sync.GetLookback())}
		if b.clientFactory != nil {
			managerOpts = append(managerOpts, sync.WithClientFactory(b.clientFactory))
		}
		if b.tracerProvider != nil {
			managerOpts = append(managerOpts, sync.WithTracer(b.tracerProvider.Tracer(telemetry.TracerName)))
		}
		if b.meterProvider != nil {
			syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
			if err != nil {
				return nil, fmt.Errorf("failed to create sync metrics: %w", err)
			}
			managerOpts = append(managerOpts, sync.WithMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
		b.syncManager = sync.NewManager(b.registry, records, journal, managerOpts...)
	}

	if b.coordinator == nil {
		b.coordinator = coordinator.New(b.syncManager, b.registry, journal)
	}

	slog.Info("Sync components initialized successfully")
	return &AppComponents{
		SyncCoordinator: b.coordinator,
		SyncManager:     b.syncManager,
		Journal:         journal,
		Records:         records,
		Registry:        b.registry,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(_ context.Context, b *syncAppConfig, components *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics go first so that every request is counted
	if b.meterProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.storageFactory != nil {
		serverOpts = append(serverOpts, api.WithReadinessCheck(b.storageFactory.CheckReadiness))
	}
	router := api.NewServer(components.SyncManager, components.Journal, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
