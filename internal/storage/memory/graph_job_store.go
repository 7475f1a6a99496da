package memory

import (
	"context"
	"sync"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// GraphJobStore is an in-memory implementation of storage.JobStore.
type GraphJobStore struct {
	mu         sync.RWMutex
	byJobID    map[string]*domain.GraphJob
	byIncident map[string]string // incident id -> job id
}

// NewGraphJobStore creates a new in-memory job store.
func NewGraphJobStore() *GraphJobStore {
	return &GraphJobStore{
		byJobID:    make(map[string]*domain.GraphJob),
		byIncident: make(map[string]string),
	}
}

// Create adds a new job row. Returns ErrDuplicateKey if a job already exists
// for the incident or the job id is taken.
func (s *GraphJobStore) Create(_ context.Context, job *domain.GraphJob) error {
	if job == nil || job.JobID == "" || job.IncidentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byJobID[job.JobID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byIncident[job.IncidentID]; exists {
		return storage.ErrDuplicateKey
	}

	jobCopy := copyJob(job)
	s.byJobID[job.JobID] = jobCopy
	s.byIncident[job.IncidentID] = job.JobID
	return nil
}

// Update rewrites mutable job fields. Returns ErrNotFound if the job does
// not exist.
func (s *GraphJobStore) Update(_ context.Context, job *domain.GraphJob) error {
	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byJobID[job.JobID]; !exists {
		return storage.ErrNotFound
	}

	s.byJobID[job.JobID] = copyJob(job)
	return nil
}

// GetByID retrieves a job by job_id. Returns ErrNotFound if not exists.
func (s *GraphJobStore) GetByID(_ context.Context, jobID string) (*domain.GraphJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.byJobID[jobID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyJob(job), nil
}

// GetByIncident retrieves the job for an incident. Returns ErrNotFound if
// not exists.
func (s *GraphJobStore) GetByIncident(_ context.Context, incidentID string) (*domain.GraphJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobID, exists := s.byIncident[incidentID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyJob(s.byJobID[jobID]), nil
}

func copyJob(job *domain.GraphJob) *domain.GraphJob {
	jobCopy := *job
	if job.EndpointSummary != nil {
		jobCopy.EndpointSummary = make(map[string]int, len(job.EndpointSummary))
		for k, v := range job.EndpointSummary {
			jobCopy.EndpointSummary[k] = v
		}
	}
	jobCopy.TopPaths = append([]domain.RankedPath(nil), job.TopPaths...)
	return &jobCopy
}

// Verify interface compliance at compile time.
var _ storage.JobStore = (*GraphJobStore)(nil)
