package domain

// RankedPath is one end-to-end flow from the seed to a terminal node,
// scored by the optimizer. Serialized into the job's top_paths JSON column.
type RankedPath struct {
	PathID             int        `json:"path_id"`
	Addresses          []string   `json:"addresses"` // seed first, endpoint last
	ValueEth           float64    `json:"value_eth"` // bottleneck value along the path
	ValuePercentage    float64    `json:"value_percentage"`
	HopCount           int        `json:"hop_count"`
	EndpointType       EntityType `json:"final_endpoint_type"`
	EndpointConfidence float64    `json:"final_endpoint_confidence"`
	Score              float64    `json:"score"` // 0-1 composite rank
}
