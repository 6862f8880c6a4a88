// Package storage provides factory functions for creating storage-dependent components.
// The record store and the sync journal are created together so that they share
// one database connection pool when either of them lives in PostgreSQL.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/store"
	"github.com/stacklok/connector-sync/internal/sync"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
type Factory interface {
	// CreateRecordStore creates the local record store
	CreateRecordStore(ctx context.Context) (store.RecordStore, error)

	// CreateJournal creates the store for sessions, versions and conflicts
	CreateJournal(ctx context.Context) (sync.Journal, error)

	// CheckReadiness reports whether the backing storage is reachable
	CheckReadiness(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage
// and journal types. A DatabaseFactory is returned when either of them is
// PostgreSQL.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg, opts...)
	case config.StorageTypeMemory:
		if cfg.GetJournalType() == config.StorageTypeDatabase {
			return NewDatabaseFactory(ctx, cfg, opts...)
		}
		return NewMemoryFactory(cfg), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
