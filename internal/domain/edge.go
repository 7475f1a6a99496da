package domain

// Filter reason codes attached to selected edges by the filter pipeline.
const (
	FilterInitialHackTx    string = "initial_hack_transaction"
	FilterHighValue        string = "high_value"
	FilterRoundNumber      string = "round_number"
	FilterGasPriority      string = "gas_priority"
	FilterImmediacy        string = "immediacy"
	FilterValueEfficiency  string = "value_efficiency"
	FilterConsolidation    string = "consolidation_target"
	FilterHighFrequencyDst string = "high_frequency_destination"
)

// Edge is a single on-chain transfer between two nodes of the same incident.
// The graph is a multigraph: the same address pair may carry several edges
// with different transaction hashes. Corresponds to graph_edges table;
// (incident_id, from_address, to_address, transaction_hash) is the primary key.
type Edge struct {
	IncidentID      string
	FromAddress     string
	ToAddress       string
	TransactionHash string
	ValueEth        float64
	ValueUsd        *float64 // nil unless a price lookup was available
	PriorityScore   float64  // 0-100 pipeline rank
	BlockNumber     int64
	Timestamp       int64 // unix seconds
	GasUsed         int64
	GasPrice        int64 // wei
	FilterReason    string
	FlowPercentage  float64
	FlowTier        FlowTier
	CreatedAt       int64
}
