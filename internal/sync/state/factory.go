package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/sync"
)

// DefaultSQLitePath is the journal file used when sqlite.path is not set
const DefaultSQLitePath = "connector-sync.db"

// NewJournal creates the journal selected by the configured journal type.
//
// The database journal requires pool. The SQLite journal opens its own file,
// and the returned close function releases it; for the other backends the
// close function is a no-op.
func NewJournal(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (sync.Journal, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GetJournalType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, nil, fmt.Errorf("database pool is required when the journal type is database")
		}
		return NewDBJournal(pool), noop, nil
	case config.StorageTypeSQLite:
		path := DefaultSQLitePath
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = filepath.Clean(cfg.SQLite.Path)
		}
		j, err := NewSQLiteJournal(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return j, j.Close, nil
	case config.StorageTypeMemory:
		return NewMemoryJournal(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported journal type: %s", cfg.GetJournalType())
	}
}
