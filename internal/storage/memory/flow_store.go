package memory

import (
	"context"
	"sort"
	"sync"

	"eth-trace-lab/internal/storage"
)

// FlowStore is an in-memory implementation of storage.FlowStore.
type FlowStore struct {
	mu   sync.RWMutex
	data []*storage.FlowRecord
}

// NewFlowStore creates a new in-memory flow store.
func NewFlowStore() *FlowStore {
	return &FlowStore{}
}

// InsertBulk appends flow records.
func (s *FlowStore) InsertBulk(_ context.Context, records []*storage.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r == nil || r.IncidentID == "" {
			return storage.ErrInvalidInput
		}
		recCopy := *r
		s.data = append(s.data, &recCopy)
	}
	return nil
}

// GetByIncident retrieves flow records for an incident, ordered by
// timestamp ASC.
func (s *FlowStore) GetByIncident(_ context.Context, incidentID string) ([]*storage.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.FlowRecord
	for _, r := range s.data {
		if r.IncidentID == incidentID {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FlowStore = (*FlowStore)(nil)
