package memory

import (
	"context"
	"sort"
	"sync"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

type edgeKey struct {
	incidentID string
	from       string
	to         string
	txHash     string
}

// EdgeStore is an in-memory implementation of storage.EdgeStore.
type EdgeStore struct {
	mu   sync.RWMutex
	data map[edgeKey]*domain.Edge
}

// NewEdgeStore creates a new in-memory edge store.
func NewEdgeStore() *EdgeStore {
	return &EdgeStore{
		data: make(map[edgeKey]*domain.Edge),
	}
}

// InsertBulk adds edges. Fails the entire batch on any duplicate key.
func (s *EdgeStore) InsertBulk(_ context.Context, edges []*domain.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		if e == nil || e.IncidentID == "" || e.FromAddress == "" || e.ToAddress == "" || e.TransactionHash == "" {
			return storage.ErrInvalidInput
		}
		k := edgeKey{e.IncidentID, e.FromAddress, e.ToAddress, e.TransactionHash}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, e := range edges {
		edgeCopy := *e
		s.data[edgeKey{e.IncidentID, e.FromAddress, e.ToAddress, e.TransactionHash}] = &edgeCopy
	}
	return nil
}

// GetByIncident retrieves all edges for an incident, ordered by block_number
// ASC then transaction_hash ASC.
func (s *EdgeStore) GetByIncident(_ context.Context, incidentID string) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Edge
	for k, e := range s.data {
		if k.incidentID == incidentID {
			edgeCopy := *e
			result = append(result, &edgeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].TransactionHash < result[j].TransactionHash
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.EdgeStore = (*EdgeStore)(nil)
