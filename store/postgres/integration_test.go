//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/store/storetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("authcore_test"),
		tcpostgres.WithUsername("authcore"),
		tcpostgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())
	return dsn
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) account.Store {
		_, err := pool.Exec(ctx, `TRUNCATE accounts`)
		require.NoError(t, err)
		return New(pool)
	})
}

func TestMigratorRoundTrip(t *testing.T) {
	dsn := startPostgres(t)

	m, err := NewMigrator(dsn)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	v, dirty, err := m.Version()
	require.NoError(t, err)
	require.Equal(t, uint(1), v)
	require.False(t, dirty)

	require.NoError(t, m.Down())
	v, _, err = m.Version()
	require.NoError(t, err)
	require.Zero(t, v)
}
