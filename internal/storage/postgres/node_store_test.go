package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
	"eth-trace-lab/internal/storage/postgres"
)

func TestNodeStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewNodeStore(pool)
	seedIncident(t, ctx, pool, "inc-1")

	nodes := []*domain.Node{
		{
			IncidentID:      "inc-1",
			Address:         "0xbbb0000000000000000000000000000000000002",
			EntityType:      domain.EntityCEX,
			EntityName:      "Binance",
			ConfidenceScore: 95,
			// terminal node with consolidation history
			TerminationReason:     domain.ReasonHighConfidence,
			ConsolidatedAddresses: []string{"0xccc0000000000000000000000000000000000003"},
			DepthFromHack:         2,
			FlowPercentage:        40,
			FlowTier:              domain.FlowCritical,
		},
		{
			IncidentID:    "inc-1",
			Address:       "0xaaa0000000000000000000000000000000000001",
			EntityType:    domain.EntityUnknown,
			DepthFromHack: 0,
		},
	}

	t.Run("insert and read back", func(t *testing.T) {
		require.NoError(t, store.InsertBulk(ctx, nodes))

		got, err := store.GetByIncident(ctx, "inc-1")
		require.NoError(t, err)
		require.Len(t, got, 2)

		// Depth ASC then address ASC.
		assert.Equal(t, "0xaaa0000000000000000000000000000000000001", got[0].Address)
		assert.Equal(t, "0xbbb0000000000000000000000000000000000002", got[1].Address)

		terminal := got[1]
		assert.Equal(t, domain.EntityCEX, terminal.EntityType)
		assert.Equal(t, "Binance", terminal.EntityName)
		assert.Equal(t, domain.ReasonHighConfidence, terminal.TerminationReason)
		assert.Equal(t, []string{"0xccc0000000000000000000000000000000000003"}, terminal.ConsolidatedAddresses)
		assert.Equal(t, domain.FlowCritical, terminal.FlowTier)

		// The non-terminal node keeps an empty reason.
		assert.Empty(t, got[0].TerminationReason)
	})

	t.Run("duplicate key fails whole batch", func(t *testing.T) {
		err := store.InsertBulk(ctx, []*domain.Node{
			{IncidentID: "inc-1", Address: "0xddd0000000000000000000000000000000000004", EntityType: domain.EntityUnknown},
			{IncidentID: "inc-1", Address: "0xaaa0000000000000000000000000000000000001", EntityType: domain.EntityUnknown},
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		got, err := store.GetByIncident(ctx, "inc-1")
		require.NoError(t, err)
		assert.Len(t, got, 2, "failed batch must not leave partial rows")
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		assert.NoError(t, store.InsertBulk(ctx, nil))
	})
}
