// Package jobs runs graph construction as tracked jobs: one job per
// incident, with status, progress and partial results persisted across
// the whole lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"eth-trace-lab/internal/chaindata"
	"eth-trace-lab/internal/classify"
	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/filter"
	"eth-trace-lab/internal/graph"
	"eth-trace-lab/internal/optimizer"
	"eth-trace-lab/internal/storage"
)

// Job control errors.
var (
	// ErrAlreadyProcessing means a job already exists for the incident.
	// Re-tracing an incident requires clearing its stored results first.
	ErrAlreadyProcessing = errors.New("jobs: incident already has a job")
	// ErrIncidentNotFound means the incident id is unknown.
	ErrIncidentNotFound = errors.New("jobs: incident not found")
)

// Stores bundles the persistence surfaces the manager writes to. Flows is
// optional; nil skips the analytics sink.
type Stores struct {
	Incidents storage.IncidentStore
	Nodes     storage.NodeStore
	Edges     storage.EdgeStore
	Jobs      storage.JobStore
	Flows     storage.FlowStore
}

// Options tunes a single job's processing caps. Zero values fall back to
// the builder defaults.
type Options struct {
	MaxDepth    int
	MaxAPICalls int
	Timeout     time.Duration
}

func (o Options) limits() graph.Limits {
	l := graph.DefaultLimits()
	if o.MaxDepth > 0 {
		l.MaxDepth = o.MaxDepth
	}
	if o.MaxAPICalls > 0 {
		l.MaxAPICalls = o.MaxAPICalls
	}
	if o.Timeout > 0 {
		l.Timeout = o.Timeout
	}
	return l
}

// Manager starts and tracks graph jobs.
type Manager struct {
	stores  Stores
	client  chaindata.Client
	verbose bool
	nowFn   func() time.Time

	wg sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithVerbose enables per-job logging.
func WithVerbose(v bool) ManagerOption {
	return func(m *Manager) { m.verbose = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowFn = now }
}

// NewManager wires a job manager.
func NewManager(stores Stores, client chaindata.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		stores: stores,
		client: client,
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartProcessing creates a pending job for the incident and runs it in
// the background. Returns the new job id.
func (m *Manager) StartProcessing(ctx context.Context, incidentID string, opts Options) (string, error) {
	if _, err := m.stores.Jobs.GetByIncident(ctx, incidentID); err == nil {
		return "", ErrAlreadyProcessing
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	incident, err := m.stores.Incidents.GetByID(ctx, incidentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrIncidentNotFound
		}
		return "", err
	}

	now := m.nowFn().UnixMilli()
	job := &domain.GraphJob{
		JobID:       uuid.NewString(),
		IncidentID:  incidentID,
		Status:      domain.JobPending,
		CurrentStep: domain.StepInitialization,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.stores.Jobs.Create(ctx, job); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return "", ErrAlreadyProcessing
		}
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// The job outlives the caller's request context; the builder's
		// wall-clock budget bounds the run instead.
		m.run(context.Background(), incident, job, opts)
	}()
	return job.JobID, nil
}

// GetJobStatus returns the current job row.
func (m *Manager) GetJobStatus(ctx context.Context, jobID string) (*domain.GraphJob, error) {
	return m.stores.Jobs.GetByID(ctx, jobID)
}

// Wait blocks until all background jobs finish. Used on shutdown and in
// tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// run executes one job end to end. Every exit path leaves the job row in a
// terminal state with whatever results were accumulated.
func (m *Manager) run(ctx context.Context, incident *domain.Incident, job *domain.GraphJob, opts Options) {
	job.Status = domain.JobRunning
	m.updateJob(ctx, job)

	if m.verbose {
		log.Printf("[jobs] job %s started for incident %s", job.JobID, incident.ID)
	}

	builder := graph.NewBuilder(
		m.client,
		filter.NewPipeline(m.verbose),
		classify.NewClassifier(classify.WithMaxDepth(opts.limits().MaxDepth)),
		graph.WithLimits(opts.limits()),
		graph.WithClock(m.nowFn),
		graph.WithVerbose(m.verbose),
		graph.WithProgress(func(percent int, step string) {
			job.ProgressPercentage = percent
			job.CurrentStep = step
			m.updateJob(ctx, job)
		}),
	)

	g, stats, buildErr := builder.Build(ctx, incident)

	// Optimization runs on partial graphs too; a timeout still yields a
	// reviewable result.
	job.CurrentStep = domain.StepOptimization
	m.updateJob(ctx, job)
	opt := optimizer.New(incident.StolenAmountEth)
	opt.Optimize(g)
	paths := opt.RankPaths(g, incident.VictimAddress)

	job.CurrentStep = domain.StepPersistence
	m.updateJob(ctx, job)
	persistErr := m.persist(ctx, g)

	job.TotalNodes = g.NodeCount()
	job.TotalEdges = g.EdgeCount()
	job.MaxDepth = g.MaxDepth()
	job.TotalValueTraced = g.TotalValueTraced()
	job.APICallsUsed = stats.APICallsUsed
	job.ProcessingTimeMs = stats.Elapsed.Milliseconds()
	job.EndpointSummary = g.EndpointSummary()
	job.TopPaths = paths
	job.ProgressPercentage = 100

	switch {
	case errors.Is(buildErr, graph.ErrTimeout):
		job.Status = domain.JobTimeout
		job.ErrorCode = domain.ErrCodeProcessingTimeout
		job.ErrorMessage = fmt.Sprintf("processing timeout after %s", opts.limits().Timeout)
	case errors.Is(buildErr, graph.ErrChainDataUnavailable):
		job.Status = domain.JobError
		job.ErrorCode = domain.ErrCodeChainDataUnavailable
		job.ErrorMessage = "chain data provider failed repeatedly"
	case buildErr != nil:
		job.Status = domain.JobError
		job.ErrorCode = domain.ErrCodeInternal
		job.ErrorMessage = buildErr.Error()
	case persistErr != nil:
		job.Status = domain.JobError
		job.ErrorCode = domain.ErrCodeInternal
		job.ErrorMessage = persistErr.Error()
	default:
		job.Status = domain.JobCompleted
	}
	m.updateJob(ctx, job)

	if m.verbose {
		limits := opts.limits()
		log.Printf("[jobs] job %s finished: status=%s nodes=%d edges=%d api_calls=%d caps_reached=%v",
			job.JobID, job.Status, job.TotalNodes, job.TotalEdges, job.APICallsUsed,
			job.Capped(limits.MaxNodes, limits.MaxAPICalls))
	}
}

// persist writes the graph: nodes before edges so every edge references
// existing node rows, then the analytics flow records.
func (m *Manager) persist(ctx context.Context, g *graph.Graph) error {
	nodes := g.Nodes()
	if err := m.stores.Nodes.InsertBulk(ctx, nodes); err != nil {
		return fmt.Errorf("persist nodes: %w", err)
	}

	edges := g.Edges()
	edgePtrs := make([]*domain.Edge, len(edges))
	for i := range edges {
		edgePtrs[i] = &edges[i]
	}
	if err := m.stores.Edges.InsertBulk(ctx, edgePtrs); err != nil {
		return fmt.Errorf("persist edges: %w", err)
	}

	if m.stores.Flows == nil {
		return nil
	}
	records := make([]*storage.FlowRecord, 0, len(edges))
	for _, e := range edges {
		depth := 0
		if n, ok := g.Node(e.ToAddress); ok {
			depth = n.DepthFromHack
		}
		records = append(records, &storage.FlowRecord{
			IncidentID:      e.IncidentID,
			FromAddress:     e.FromAddress,
			ToAddress:       e.ToAddress,
			TransactionHash: e.TransactionHash,
			ValueEth:        e.ValueEth,
			FlowPercentage:  e.FlowPercentage,
			FlowTier:        string(e.FlowTier),
			Depth:           depth,
			Timestamp:       e.Timestamp,
		})
	}
	if err := m.stores.Flows.InsertBulk(ctx, records); err != nil {
		// The analytics sink is best-effort; the graph itself is saved.
		log.Printf("[jobs] flow records for incident %s not saved: %v", g.IncidentID(), err)
	}
	return nil
}

func (m *Manager) updateJob(ctx context.Context, job *domain.GraphJob) {
	job.UpdatedAt = m.nowFn().UnixMilli()
	if err := m.stores.Jobs.Update(ctx, job); err != nil {
		log.Printf("[jobs] job %s status update failed: %v", job.JobID, err)
	}
}
