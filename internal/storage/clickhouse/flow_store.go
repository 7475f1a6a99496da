package clickhouse

import (
	"context"
	"fmt"

	"eth-trace-lab/internal/storage"
)

// FlowStore implements storage.FlowStore using ClickHouse. Flow rows are
// append-only analytics data for cross-incident queries; MergeTree does not
// enforce uniqueness and the engine writes each incident's flows exactly once.
type FlowStore struct {
	conn *Conn
}

// NewFlowStore creates a new FlowStore.
func NewFlowStore(conn *Conn) *FlowStore {
	return &FlowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FlowStore = (*FlowStore)(nil)

// InsertBulk appends flow records in one batch.
func (s *FlowStore) InsertBulk(ctx context.Context, records []*storage.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trace_flows (
			incident_id, from_address, to_address, transaction_hash,
			value_eth, flow_percentage, flow_tier, depth, ts
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.IncidentID, r.FromAddress, r.ToAddress, r.TransactionHash,
			r.ValueEth, r.FlowPercentage, r.FlowTier, uint32(r.Depth), uint64(r.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByIncident retrieves flow records for an incident, ordered by ts ASC.
func (s *FlowStore) GetByIncident(ctx context.Context, incidentID string) ([]*storage.FlowRecord, error) {
	query := `
		SELECT incident_id, from_address, to_address, transaction_hash,
		       value_eth, flow_percentage, flow_tier, depth, ts
		FROM trace_flows
		WHERE incident_id = ?
		ORDER BY ts ASC, transaction_hash ASC
	`

	rows, err := s.conn.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get flows by incident: %w", err)
	}
	defer rows.Close()

	var records []*storage.FlowRecord
	for rows.Next() {
		var r storage.FlowRecord
		var depth uint32
		var ts uint64

		err := rows.Scan(
			&r.IncidentID, &r.FromAddress, &r.ToAddress, &r.TransactionHash,
			&r.ValueEth, &r.FlowPercentage, &r.FlowTier, &depth, &ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan flow row: %w", err)
		}

		r.Depth = int(depth)
		r.Timestamp = int64(ts)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow rows: %w", err)
	}

	return records, nil
}
