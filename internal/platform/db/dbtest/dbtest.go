// Package dbtest starts a disposable PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
)

// StartPostgres runs a postgres container for the lifetime of t and returns its DSN.
// The test is skipped under -short or when no container runtime is reachable.
func StartPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("launchpad"),
		postgres.WithUsername("launchpad"),
		postgres.WithPassword("launchpad"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

// OpenPool opens a migrated pool against dsn and closes it when t finishes.
func OpenPool(t *testing.T, dsn string, minConns, maxConns int) *db.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := db.Open(ctx, db.Config{
		DSN:              dsn,
		MinConns:         minConns,
		MaxConns:         maxConns,
		AcquireTimeout:   10 * time.Second,
		StatementTimeout: 30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool, nil))
	return pool
}

// Reset empties every application table.
func Reset(t *testing.T, pool *db.Pool) {
	t.Helper()
	err := pool.WithConn(context.Background(), func(c *db.Conn) error {
		_, err := c.Exec(context.Background(), `TRUNCATE audit_logs, password_change_history, users RESTART IDENTITY CASCADE`)
		return err
	})
	require.NoError(t, err)
}
