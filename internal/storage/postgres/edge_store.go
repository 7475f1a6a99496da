package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// EdgeStore implements storage.EdgeStore using PostgreSQL.
type EdgeStore struct {
	pool *Pool
}

// NewEdgeStore creates a new EdgeStore.
func NewEdgeStore(pool *Pool) *EdgeStore {
	return &EdgeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EdgeStore = (*EdgeStore)(nil)

// InsertBulk adds edges inside one transaction. Fails the entire batch on
// any duplicate key. The foreign keys require both endpoint nodes to be
// inserted first.
func (s *EdgeStore) InsertBulk(ctx context.Context, edges []*domain.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin edge insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO graph_edges (
			incident_id, from_address, to_address, transaction_hash,
			value_eth, value_usd, priority_score, block_number, ts,
			gas_used, gas_price, filter_reason, flow_percentage, flow_tier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	for _, e := range edges {
		_, err = tx.Exec(ctx, query,
			e.IncidentID,
			e.FromAddress,
			e.ToAddress,
			e.TransactionHash,
			e.ValueEth,
			e.ValueUsd,
			e.PriorityScore,
			e.BlockNumber,
			e.Timestamp,
			e.GasUsed,
			e.GasPrice,
			e.FilterReason,
			e.FlowPercentage,
			string(e.FlowTier),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert edge %s: %w", e.TransactionHash, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit edge insert: %w", err)
	}
	return nil
}

// GetByIncident retrieves all edges for an incident, ordered by block_number
// ASC then transaction_hash ASC.
func (s *EdgeStore) GetByIncident(ctx context.Context, incidentID string) ([]*domain.Edge, error) {
	query := `
		SELECT incident_id, from_address, to_address, transaction_hash,
		       value_eth, value_usd, priority_score, block_number, ts,
		       gas_used, gas_price, filter_reason, flow_percentage, flow_tier,
		       (EXTRACT(EPOCH FROM created_at) * 1000)::BIGINT
		FROM graph_edges
		WHERE incident_id = $1
		ORDER BY block_number ASC, transaction_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get edges by incident: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

func scanEdges(rows pgx.Rows) ([]*domain.Edge, error) {
	var edges []*domain.Edge

	for rows.Next() {
		var e domain.Edge
		var flowTier string

		err := rows.Scan(
			&e.IncidentID,
			&e.FromAddress,
			&e.ToAddress,
			&e.TransactionHash,
			&e.ValueEth,
			&e.ValueUsd,
			&e.PriorityScore,
			&e.BlockNumber,
			&e.Timestamp,
			&e.GasUsed,
			&e.GasPrice,
			&e.FilterReason,
			&e.FlowPercentage,
			&flowTier,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}

		e.FlowTier = domain.FlowTier(flowTier)
		edges = append(edges, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge rows: %w", err)
	}

	return edges, nil
}
