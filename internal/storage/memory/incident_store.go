package memory

import (
	"context"
	"sync"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// IncidentStore is an in-memory implementation of storage.IncidentStore.
type IncidentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Incident // keyed by incident id
}

// NewIncidentStore creates a new in-memory incident store.
func NewIncidentStore() *IncidentStore {
	return &IncidentStore{
		data: make(map[string]*domain.Incident),
	}
}

// Insert adds a new incident. Returns ErrDuplicateKey if id exists.
func (s *IncidentStore) Insert(_ context.Context, inc *domain.Incident) error {
	if inc == nil || inc.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[inc.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	incCopy := *inc
	s.data[inc.ID] = &incCopy
	return nil
}

// GetByID retrieves an incident by its ID. Returns ErrNotFound if not exists.
func (s *IncidentStore) GetByID(_ context.Context, incidentID string) (*domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, exists := s.data[incidentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	incCopy := *inc
	return &incCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.IncidentStore = (*IncidentStore)(nil)
