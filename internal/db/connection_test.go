package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connector-sync/internal/config"
)

func TestNewPool_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{
			name:    "nil config",
			wantErr: "database configuration is required",
		},
		{
			name: "missing password file",
			cfg: &config.DatabaseConfig{
				Host: "localhost", User: "sync", Database: "records",
				PasswordFile: filepath.Join(t.TempDir(), "missing"),
			},
			wantErr: "failed to get database password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool, err := NewPool(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, pool)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
