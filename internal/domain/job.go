package domain

// JobStatus is the lifecycle state of a graph processing job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobTimeout   JobStatus = "timeout"
	JobError     JobStatus = "error"
)

// Terminal reports whether the status is one of the three end states.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobTimeout || s == JobError
}

// Job error codes.
const (
	ErrCodeChainDataUnavailable = "CHAIN_DATA_UNAVAILABLE"
	ErrCodeProcessingTimeout    = "PROCESSING_TIMEOUT"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// Job processing step names reported through progress updates.
const (
	StepInitialization string = "initialization"
	StepTraversal      string = "recursive_traversal"
	StepOptimization   string = "graph_optimization"
	StepPersistence    string = "persistence"
)

// GraphJob tracks one incident's graph construction. 1:1 with incident.
// Corresponds to graph_jobs table; retains totals and JSON summaries even on
// timeout or error so callers never receive nothing after resource was spent.
type GraphJob struct {
	JobID              string // PRIMARY KEY (UUID)
	IncidentID         string // UNIQUE
	Status             JobStatus
	ProgressPercentage int
	CurrentStep        string
	TotalNodes         int
	TotalEdges         int
	MaxDepth           int
	TotalValueTraced   float64
	APICallsUsed       int
	ProcessingTimeMs   int64
	ErrorCode          string
	ErrorMessage       string
	// EndpointSummary counts surviving nodes per entity type.
	EndpointSummary map[string]int
	// TopPaths is the ranked seed-to-endpoint path list.
	TopPaths  []RankedPath
	CreatedAt int64
	UpdatedAt int64
}

// Capped reports whether the job stopped because a node or API-call budget
// was exhausted rather than by exploring the full frontier. Stored on the
// job as a normal completion, not an error.
func (j *GraphJob) Capped(maxNodes, maxAPICalls int) bool {
	return j.TotalNodes >= maxNodes || j.APICallsUsed >= maxAPICalls
}
