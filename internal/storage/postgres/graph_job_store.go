package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/storage"
)

// GraphJobStore implements storage.JobStore using PostgreSQL.
type GraphJobStore struct {
	pool *Pool
}

// NewGraphJobStore creates a new GraphJobStore.
func NewGraphJobStore(pool *Pool) *GraphJobStore {
	return &GraphJobStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobStore = (*GraphJobStore)(nil)

// Create adds a new job row. Returns ErrDuplicateKey if the job id is taken
// or a job already exists for the incident.
func (s *GraphJobStore) Create(ctx context.Context, job *domain.GraphJob) error {
	summary, paths, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO graph_jobs (
			job_id, incident_id, status, progress_percentage, current_step,
			total_nodes, total_edges, max_depth, total_value_traced,
			api_calls_used, processing_time_ms, error_code, error_message,
			endpoint_summary, top_paths
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.pool.Exec(ctx, query,
		job.JobID,
		job.IncidentID,
		string(job.Status),
		job.ProgressPercentage,
		job.CurrentStep,
		job.TotalNodes,
		job.TotalEdges,
		job.MaxDepth,
		job.TotalValueTraced,
		job.APICallsUsed,
		job.ProcessingTimeMs,
		nullable(job.ErrorCode),
		nullable(job.ErrorMessage),
		summary,
		paths,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update rewrites mutable job fields. Returns ErrNotFound if the job does
// not exist.
func (s *GraphJobStore) Update(ctx context.Context, job *domain.GraphJob) error {
	summary, paths, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE graph_jobs SET
			status = $2,
			progress_percentage = $3,
			current_step = $4,
			total_nodes = $5,
			total_edges = $6,
			max_depth = $7,
			total_value_traced = $8,
			api_calls_used = $9,
			processing_time_ms = $10,
			error_code = $11,
			error_message = $12,
			endpoint_summary = $13,
			top_paths = $14,
			updated_at = CURRENT_TIMESTAMP
		WHERE job_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		job.JobID,
		string(job.Status),
		job.ProgressPercentage,
		job.CurrentStep,
		job.TotalNodes,
		job.TotalEdges,
		job.MaxDepth,
		job.TotalValueTraced,
		job.APICallsUsed,
		job.ProcessingTimeMs,
		nullable(job.ErrorCode),
		nullable(job.ErrorMessage),
		summary,
		paths,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a job by job_id. Returns ErrNotFound if not exists.
func (s *GraphJobStore) GetByID(ctx context.Context, jobID string) (*domain.GraphJob, error) {
	row := s.pool.QueryRow(ctx, jobSelect+" WHERE job_id = $1", jobID)
	return scanJob(row)
}

// GetByIncident retrieves the job for an incident. Returns ErrNotFound if
// not exists.
func (s *GraphJobStore) GetByIncident(ctx context.Context, incidentID string) (*domain.GraphJob, error) {
	row := s.pool.QueryRow(ctx, jobSelect+" WHERE incident_id = $1", incidentID)
	return scanJob(row)
}

const jobSelect = `
	SELECT job_id, incident_id, status, progress_percentage, current_step,
	       total_nodes, total_edges, max_depth, total_value_traced,
	       api_calls_used, processing_time_ms, error_code, error_message,
	       endpoint_summary, top_paths,
	       (EXTRACT(EPOCH FROM created_at) * 1000)::BIGINT,
	       (EXTRACT(EPOCH FROM updated_at) * 1000)::BIGINT
	FROM graph_jobs
`

func scanJob(row pgx.Row) (*domain.GraphJob, error) {
	var job domain.GraphJob
	var status string
	var errorCode, errorMessage *string
	var summary, paths []byte

	err := row.Scan(
		&job.JobID,
		&job.IncidentID,
		&status,
		&job.ProgressPercentage,
		&job.CurrentStep,
		&job.TotalNodes,
		&job.TotalEdges,
		&job.MaxDepth,
		&job.TotalValueTraced,
		&job.APICallsUsed,
		&job.ProcessingTimeMs,
		&errorCode,
		&errorMessage,
		&summary,
		&paths,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan job row: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if errorCode != nil {
		job.ErrorCode = *errorCode
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &job.EndpointSummary); err != nil {
			return nil, fmt.Errorf("unmarshal endpoint summary: %w", err)
		}
	}
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &job.TopPaths); err != nil {
			return nil, fmt.Errorf("unmarshal top paths: %w", err)
		}
	}

	return &job, nil
}

func marshalJobJSON(job *domain.GraphJob) (summary, paths []byte, err error) {
	summary, err = json.Marshal(job.EndpointSummary)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal endpoint summary: %w", err)
	}
	paths, err = json.Marshal(job.TopPaths)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal top paths: %w", err)
	}
	return summary, paths, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
