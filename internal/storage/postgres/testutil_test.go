package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage/migrations"
	"eth-trace-lab/internal/storage/postgres"
)

// setupTestDB starts a PostgreSQL container, applies the embedded
// migrations and returns a ready pool plus a cleanup function.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to run migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

// seedIncident inserts the incident row node and edge tests hang off.
func seedIncident(t *testing.T, ctx context.Context, pool *postgres.Pool, id string) *domain.Incident {
	t.Helper()
	inc := &domain.Incident{
		ID:              id,
		VictimAddress:   "0x1111111111111111111111111111111111111111",
		HackTxHash:      "0xhack" + id,
		HackToAddress:   "0x2222222222222222222222222222222222222222",
		StolenAmountEth: 150,
		SeedBlockNumber: 18_000_000,
		CreatedAt:       time.Now().UnixMilli(),
	}
	require.NoError(t, postgres.NewIncidentStore(pool).Insert(ctx, inc))
	return inc
}
