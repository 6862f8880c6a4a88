package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/store/inmemory"
	"github.com/stacklok/connector-sync/internal/sync/state"
)

func TestNewStorageFactory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{
			name:    "nil config",
			wantErr: "config cannot be nil",
		},
		{
			name: "memory by default",
			cfg:  &config.Config{},
		},
		{
			name:    "unknown storage type",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: "s3"}},
			wantErr: "unknown storage type: s3",
		},
		{
			name:    "database journal without database configuration",
			cfg:     &config.Config{Storage: config.StorageConfig{Journal: config.StorageTypeDatabase}},
			wantErr: "database configuration is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			factory, err := NewStorageFactory(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &MemoryFactory{}, factory)
			factory.Cleanup()
		})
	}
}

func TestMemoryFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("memory journal", func(t *testing.T) {
		t.Parallel()
		factory := NewMemoryFactory(&config.Config{})
		t.Cleanup(factory.Cleanup)

		records, err := factory.CreateRecordStore(ctx)
		require.NoError(t, err)
		assert.IsType(t, &inmemory.Store{}, records)

		journal, err := factory.CreateJournal(ctx)
		require.NoError(t, err)
		assert.NotNil(t, journal)
		assert.NoError(t, factory.CheckReadiness(ctx))
	})

	t.Run("sqlite journal", func(t *testing.T) {
		t.Parallel()
		factory := NewMemoryFactory(&config.Config{
			Storage: config.StorageConfig{Journal: config.StorageTypeSQLite},
			SQLite:  &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "journal.db")},
		})

		journal, err := factory.CreateJournal(ctx)
		require.NoError(t, err)
		assert.IsType(t, &state.SQLiteJournal{}, journal)

		factory.Cleanup()
		// a second cleanup is a no-op
		factory.Cleanup()
	})
}
