package memory

import (
	"context"
	"sort"
	"sync"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

type nodeKey struct {
	incidentID string
	address    string
}

// NodeStore is an in-memory implementation of storage.NodeStore.
type NodeStore struct {
	mu   sync.RWMutex
	data map[nodeKey]*domain.Node
}

// NewNodeStore creates a new in-memory node store.
func NewNodeStore() *NodeStore {
	return &NodeStore{
		data: make(map[nodeKey]*domain.Node),
	}
}

// InsertBulk adds nodes. Fails the entire batch on any duplicate key.
func (s *NodeStore) InsertBulk(_ context.Context, nodes []*domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		if n == nil || n.IncidentID == "" || n.Address == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[nodeKey{n.IncidentID, n.Address}]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, n := range nodes {
		nodeCopy := *n
		nodeCopy.ConsolidatedAddresses = append([]string(nil), n.ConsolidatedAddresses...)
		s.data[nodeKey{n.IncidentID, n.Address}] = &nodeCopy
	}
	return nil
}

// GetByIncident retrieves all nodes for an incident, ordered by depth ASC
// then address ASC.
func (s *NodeStore) GetByIncident(_ context.Context, incidentID string) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Node
	for k, n := range s.data {
		if k.incidentID == incidentID {
			nodeCopy := *n
			nodeCopy.ConsolidatedAddresses = append([]string(nil), n.ConsolidatedAddresses...)
			result = append(result, &nodeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DepthFromHack != result[j].DepthFromHack {
			return result[i].DepthFromHack < result[j].DepthFromHack
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.NodeStore = (*NodeStore)(nil)
