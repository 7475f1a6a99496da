package domain

// EntityType classifies what kind of actor an address is believed to be.
type EntityType string

// Entity type constants. Closed set: classification never produces values
// outside this list.
const (
	EntityCEX                  EntityType = "CEX"
	EntityDEX                  EntityType = "DEX"
	EntityMixer                EntityType = "Mixer"
	EntityBridge               EntityType = "Bridge"
	EntityPotentialEndpoint    EntityType = "PotentialEndpoint"
	EntityNonPromisingEndpoint EntityType = "NonPromisingEndpoint"
	EntityHighFrequencyService EntityType = "HighFrequencyService"
	EntityConsolidationPoint   EntityType = "ConsolidationPoint"
	EntityUnknown              EntityType = "Unknown"
)

// Termination reason codes. Set on a node exactly when traversal stops there.
const (
	ReasonHighTransactionVolume string = "high_transaction_volume"
	ReasonNoSignificantTx       string = "no_significant_transactions"
	ReasonHighConfidence        string = "high_confidence_classification"
	ReasonInsufficientValueFlow string = "insufficient_value_flow"
	ReasonMaxDepthReached       string = "max_depth_reached"
	ReasonHighFrequencyService  string = "high_frequency_service"
)

// FlowTier buckets how much of the stolen amount passed through a node or edge.
type FlowTier string

const (
	FlowCritical    FlowTier = "critical"    // >10% of stolen amount
	FlowSignificant FlowTier = "significant" // >2%
	FlowMinor       FlowTier = "minor"
)

// Node is an address-scoped vertex in a per-incident trace graph.
// Corresponds to graph_nodes table in PostgreSQL; (incident_id, address) is
// the primary key.
type Node struct {
	IncidentID      string
	Address         string // lowercase hex
	EntityType      EntityType
	EntityName      string // detected entity name ("Binance", ...), empty if none
	ConfidenceScore float64
	// TerminationReason is empty while the node is explorable. Once set, no
	// further outgoing edges are explored from this node.
	TerminationReason string
	BalanceEth        float64
	TransactionCount  int   // total on-chain tx count reported by the provider
	FirstSeenBlock    int64 // block of the transaction that funded this node
	FundedAt          int64 // unix seconds of the funding transaction
	DepthFromHack     int
	// ConsolidatedAddresses lists addresses merged into this node. Empty
	// unless this node is a consolidation master.
	ConsolidatedAddresses []string
	// ManualExplorationReady marks early-terminated nodes that retain enough
	// data for a human to resume exploration.
	ManualExplorationReady bool
	FetchFailed            bool // provider call failed; retry-eligible
	FlowPercentage         float64
	FlowTier               FlowTier
	CreatedAt              int64
}

// Terminal reports whether traversal has stopped at this node.
func (n *Node) Terminal() bool {
	return n.TerminationReason != ""
}
