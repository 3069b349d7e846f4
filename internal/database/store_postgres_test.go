package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

// setupPostgresStore starts a PostgreSQL testcontainer and returns a migrated store
func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("idlscan_test"),
		postgres.WithUsername("idlscan_test"),
		postgres.WithPassword("idlscan_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStore(config.DatabaseConfig{Driver: "postgres", DSN: connStr}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	for _, r := range sampleReports(time.Now().UTC().Truncate(time.Microsecond)) {
		require.NoError(t, store.SaveReport(ctx, r))
	}

	all, err := store.ListReports(ctx, core.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "scan-3", all[0].ID)

	safe, err := store.ListReports(ctx, core.ReportFilter{Verdict: types.VerdictLikelySafe, Program: metadata.String()})
	require.NoError(t, err)
	require.Len(t, safe, 1)
	require.NotNil(t, safe[0].Account)
	assert.Equal(t, metadata, safe[0].Account.Owner)

	var tables int
	require.NoError(t, store.db.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('scan_reports', 'schema_migrations')"))
	assert.Equal(t, 2, tables)
}
