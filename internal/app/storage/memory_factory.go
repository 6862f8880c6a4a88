package storage

import (
	"context"
	"log/slog"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/store"
	"github.com/stacklok/connector-sync/internal/store/inmemory"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/state"
)

// MemoryFactory keeps records in process memory. The journal is kept in memory
// as well unless the configuration selects the SQLite journal.
type MemoryFactory struct {
	config       *config.Config
	closeJournal func() error
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a factory without any database connection
func NewMemoryFactory(cfg *config.Config) *MemoryFactory {
	slog.Info("Creating in-memory storage factory")
	return &MemoryFactory{config: cfg}
}

// CreateRecordStore creates an empty in-memory record store
func (*MemoryFactory) CreateRecordStore(_ context.Context) (store.RecordStore, error) {
	slog.Debug("Creating in-memory record store")
	return inmemory.New(), nil
}

// CreateJournal creates the memory or SQLite journal
func (f *MemoryFactory) CreateJournal(ctx context.Context) (sync.Journal, error) {
	slog.Debug("Creating journal", "type", f.config.GetJournalType())
	journal, closeFn, err := state.NewJournal(ctx, f.config, nil)
	if err != nil {
		return nil, err
	}
	f.closeJournal = closeFn
	return journal, nil
}

// CheckReadiness always succeeds
func (*MemoryFactory) CheckReadiness(_ context.Context) error {
	return nil
}

// Cleanup closes the SQLite journal, if one was opened
func (f *MemoryFactory) Cleanup() {
	if f.closeJournal == nil {
		return
	}
	if err := f.closeJournal(); err != nil {
		slog.Warn("Failed to close journal", "error", err)
	}
	f.closeJournal = nil
}
