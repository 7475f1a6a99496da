package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// NodeStore implements storage.NodeStore using PostgreSQL.
type NodeStore struct {
	pool *Pool
}

// NewNodeStore creates a new NodeStore.
func NewNodeStore(pool *Pool) *NodeStore {
	return &NodeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.NodeStore = (*NodeStore)(nil)

// InsertBulk adds nodes inside one transaction. Fails the entire batch on
// any duplicate (incident_id, address).
func (s *NodeStore) InsertBulk(ctx context.Context, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin node insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO graph_nodes (
			incident_id, address, entity_type, entity_name, confidence_score,
			termination_reason, balance_eth, transaction_count, first_seen_block,
			funded_at, depth_from_hack, consolidated_addresses,
			manual_exploration_ready, fetch_failed, flow_percentage, flow_tier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	for _, n := range nodes {
		consolidated, err := json.Marshal(n.ConsolidatedAddresses)
		if err != nil {
			return fmt.Errorf("marshal consolidated addresses: %w", err)
		}

		var reason *string
		if n.TerminationReason != "" {
			reason = &n.TerminationReason
		}

		_, err = tx.Exec(ctx, query,
			n.IncidentID,
			n.Address,
			string(n.EntityType),
			n.EntityName,
			n.ConfidenceScore,
			reason,
			n.BalanceEth,
			n.TransactionCount,
			n.FirstSeenBlock,
			n.FundedAt,
			n.DepthFromHack,
			consolidated,
			n.ManualExplorationReady,
			n.FetchFailed,
			n.FlowPercentage,
			string(n.FlowTier),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert node %s: %w", n.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit node insert: %w", err)
	}
	return nil
}

// GetByIncident retrieves all nodes for an incident, ordered by depth ASC
// then address ASC.
func (s *NodeStore) GetByIncident(ctx context.Context, incidentID string) ([]*domain.Node, error) {
	query := `
		SELECT incident_id, address, entity_type, entity_name, confidence_score,
		       termination_reason, balance_eth, transaction_count, first_seen_block,
		       funded_at, depth_from_hack, consolidated_addresses,
		       manual_exploration_ready, fetch_failed, flow_percentage, flow_tier,
		       (EXTRACT(EPOCH FROM created_at) * 1000)::BIGINT
		FROM graph_nodes
		WHERE incident_id = $1
		ORDER BY depth_from_hack ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get nodes by incident: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

func scanNodes(rows pgx.Rows) ([]*domain.Node, error) {
	var nodes []*domain.Node

	for rows.Next() {
		var n domain.Node
		var entityType, flowTier string
		var reason *string
		var consolidated []byte

		err := rows.Scan(
			&n.IncidentID,
			&n.Address,
			&entityType,
			&n.EntityName,
			&n.ConfidenceScore,
			&reason,
			&n.BalanceEth,
			&n.TransactionCount,
			&n.FirstSeenBlock,
			&n.FundedAt,
			&n.DepthFromHack,
			&consolidated,
			&n.ManualExplorationReady,
			&n.FetchFailed,
			&n.FlowPercentage,
			&flowTier,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}

		n.EntityType = domain.EntityType(entityType)
		n.FlowTier = domain.FlowTier(flowTier)
		if reason != nil {
			n.TerminationReason = *reason
		}
		if len(consolidated) > 0 {
			if err := json.Unmarshal(consolidated, &n.ConsolidatedAddresses); err != nil {
				return nil, fmt.Errorf("unmarshal consolidated addresses: %w", err)
			}
		}

		nodes = append(nodes, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node rows: %w", err)
	}

	return nodes, nil
}
