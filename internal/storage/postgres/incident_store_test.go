package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-trace-lab/internal/storage"
	"eth-trace-lab/internal/storage/postgres"
)

func TestIncidentStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewIncidentStore(pool)

	inc := seedIncident(t, ctx, pool, "inc-1")

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetByID(ctx, "inc-1")
		require.NoError(t, err)
		assert.Equal(t, inc.VictimAddress, got.VictimAddress)
		assert.Equal(t, inc.HackToAddress, got.HackToAddress)
		assert.Equal(t, inc.StolenAmountEth, got.StolenAmountEth)
		assert.Equal(t, inc.SeedBlockNumber, got.SeedBlockNumber)
		assert.Positive(t, got.CreatedAt)
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := store.Insert(ctx, inc)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
