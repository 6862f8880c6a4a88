package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/db"
	"github.com/stacklok/connector-sync/internal/store"
	"github.com/stacklok/connector-sync/internal/store/inmemory"
	"github.com/stacklok/connector-sync/internal/store/postgres"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/state"
)

// DatabaseFactory creates components that share one PostgreSQL connection pool.
type DatabaseFactory struct {
	config       *config.Config
	pool         *pgxpool.Pool
	tracer       trace.Tracer
	closeJournal func() error
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the PostgreSQL record store.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// WithPool uses an existing connection pool instead of opening one.
// The factory still closes it on Cleanup.
func WithPool(pool *pgxpool.Pool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.pool = pool
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	factory := &DatabaseFactory{config: cfg}
	for _, opt := range opts {
		opt(factory)
	}

	if factory.pool == nil {
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required for database storage type")
		}

		slog.Info("Creating database-backed storage factory")
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		factory.pool = pool
	}

	return factory, nil
}

// CreateRecordStore creates the PostgreSQL record store, or an in-memory one
// when only the journal is kept in the database.
func (d *DatabaseFactory) CreateRecordStore(_ context.Context) (store.RecordStore, error) {
	if d.config.GetStorageType() == config.StorageTypeMemory {
		slog.Debug("Creating in-memory record store")
		return inmemory.New(), nil
	}

	slog.Debug("Creating database-backed record store")
	var opts []postgres.Option
	if d.tracer != nil {
		opts = append(opts, postgres.WithTracer(d.tracer))
		slog.Debug("Record store tracing enabled")
	}
	return postgres.New(d.pool, opts...), nil
}

// CreateJournal creates the journal selected by the configuration, sharing
// the connection pool when it is the database journal.
func (d *DatabaseFactory) CreateJournal(ctx context.Context) (sync.Journal, error) {
	slog.Debug("Creating journal", "type", d.config.GetJournalType())
	journal, closeFn, err := state.NewJournal(ctx, d.config, d.pool)
	if err != nil {
		return nil, err
	}
	d.closeJournal = closeFn
	return journal, nil
}

// CheckReadiness pings the database
func (d *DatabaseFactory) CheckReadiness(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// Cleanup closes the journal and the connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.closeJournal != nil {
		if err := d.closeJournal(); err != nil {
			slog.Warn("Failed to close journal", "error", err)
		}
		d.closeJournal = nil
	}
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
		d.pool = nil
	}
}
