package storage

import (
	"context"

	"eth-trace-lab/internal/domain"
)

// IncidentStore provides access to incidents storage. This is the incident
// provider the trace engine reads its seed data from.
type IncidentStore interface {
	// Insert adds a new incident. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, inc *domain.Incident) error

	// GetByID retrieves an incident by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, incidentID string) (*domain.Incident, error)
}

// NodeStore provides access to graph_nodes storage.
type NodeStore interface {
	// InsertBulk adds the final node set for an incident. Returns
	// ErrDuplicateKey if any (incident_id, address) already exists.
	InsertBulk(ctx context.Context, nodes []*domain.Node) error

	// GetByIncident retrieves all nodes for an incident, ordered by
	// depth ASC then address ASC.
	GetByIncident(ctx context.Context, incidentID string) ([]*domain.Node, error)
}

// EdgeStore provides access to graph_edges storage. Every stored edge must
// reference two node rows of the same incident; the engine persists nodes
// before edges to uphold that.
type EdgeStore interface {
	// InsertBulk adds the final edge set for an incident. Returns
	// ErrDuplicateKey if any edge key already exists.
	InsertBulk(ctx context.Context, edges []*domain.Edge) error

	// GetByIncident retrieves all edges for an incident, ordered by
	// block_number ASC then transaction_hash ASC.
	GetByIncident(ctx context.Context, incidentID string) ([]*domain.Edge, error)
}

// JobStore provides access to graph_jobs storage.
type JobStore interface {
	// Create adds a new job row. Returns ErrDuplicateKey if a job already
	// exists for the incident.
	Create(ctx context.Context, job *domain.GraphJob) error

	// Update rewrites mutable job fields (status, progress, totals, errors).
	// Returns ErrNotFound if the job does not exist.
	Update(ctx context.Context, job *domain.GraphJob) error

	// GetByID retrieves a job by job_id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, jobID string) (*domain.GraphJob, error)

	// GetByIncident retrieves the job for an incident. Returns ErrNotFound
	// if not exists.
	GetByIncident(ctx context.Context, incidentID string) (*domain.GraphJob, error)
}

// FlowRecord is one analytics row describing a surviving edge after
// optimization, flattened for cross-incident analysis.
type FlowRecord struct {
	IncidentID      string
	FromAddress     string
	ToAddress       string
	TransactionHash string
	ValueEth        float64
	FlowPercentage  float64
	FlowTier        string
	Depth           int // depth of the destination node
	Timestamp       int64
}

// FlowStore provides access to the append-only trace_flows analytics table.
type FlowStore interface {
	// InsertBulk appends flow records. Analytics rows are write-once.
	InsertBulk(ctx context.Context, records []*FlowRecord) error

	// GetByIncident retrieves flow records for an incident, ordered by
	// timestamp ASC.
	GetByIncident(ctx context.Context, incidentID string) ([]*FlowRecord, error)
}
