package database

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// IntegrationEnvVar enables tests that start a PostgreSQL container
const IntegrationEnvVar = "CONNECTOR_SYNC_INTEGRATION"

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

var (
	dbName = "testdb"
	dbUser = "testuser"
	dbPass = "testpass"
)

// SkipUnlessIntegration skips the test unless IntegrationEnvVar is set
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnvVar) == "" {
		t.Skipf("set %s to run tests against a PostgreSQL container", IntegrationEnvVar)
	}
}

// SetupTestDBContainer starts a Postgres container, applies the migrations
// and returns a pool connected to it. The test is skipped unless
// IntegrationEnvVar is set.
func SetupTestDBContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()
	SkipUnlessIntegration(t)

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, MigrateUp(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanupFunc := func() {
		pool.Close()
		tc.CleanupContainer(t, postgresContainer)
	}

	return pool, cleanupFunc
}
