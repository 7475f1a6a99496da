package postgres

import (
	"context"
	"fmt"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// IncidentStore implements storage.IncidentStore using PostgreSQL.
type IncidentStore struct {
	pool *Pool
}

// NewIncidentStore creates a new IncidentStore.
func NewIncidentStore(pool *Pool) *IncidentStore {
	return &IncidentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IncidentStore = (*IncidentStore)(nil)

// Insert adds a new incident. Returns ErrDuplicateKey if id exists.
func (s *IncidentStore) Insert(ctx context.Context, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			id, victim_address, hack_tx_hash, hack_to_address, stolen_amount_eth, seed_block_number
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		inc.ID,
		inc.VictimAddress,
		inc.HackTxHash,
		inc.HackToAddress,
		inc.StolenAmountEth,
		inc.SeedBlockNumber,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetByID retrieves an incident by its ID. Returns ErrNotFound if not exists.
func (s *IncidentStore) GetByID(ctx context.Context, incidentID string) (*domain.Incident, error) {
	query := `
		SELECT id, victim_address, hack_tx_hash, hack_to_address, stolen_amount_eth, seed_block_number,
		       (EXTRACT(EPOCH FROM created_at) * 1000)::BIGINT
		FROM incidents
		WHERE id = $1
	`

	var inc domain.Incident
	err := s.pool.QueryRow(ctx, query, incidentID).Scan(
		&inc.ID,
		&inc.VictimAddress,
		&inc.HackTxHash,
		&inc.HackToAddress,
		&inc.StolenAmountEth,
		&inc.SeedBlockNumber,
		&inc.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get incident by id: %w", err)
	}
	return &inc, nil
}
