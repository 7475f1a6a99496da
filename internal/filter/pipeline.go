// Package filter reduces a node's outgoing-transaction list to a small
// prioritized set worth exploring. Three stages run in strict order:
// primary filters hard-exclude, secondary filters reclassify destinations,
// tertiary filters only adjust scores.
package filter

import (
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"eth-trace-lab/internal/domain"
)

// Pipeline thresholds.
const (
	// MaxPerNode caps how many transactions one node contributes.
	MaxPerNode = 5

	// MinValueEth is the absolute floor below which a transfer is noise,
	// unless it clears the dynamic percentage threshold.
	MinValueEth = 0.05

	// Time-based priority buckets, measured from the moment the node
	// received its inbound funds.
	HighPriorityWindow   = 6 * time.Hour
	MediumPriorityWindow = 72 * time.Hour
	LowPriorityWindow    = 30 * 24 * time.Hour

	// LowBucketMinEth is required to keep a 3-30 day old transfer.
	LowBucketMinEth = 1.0

	// AgeOverrideEth retains a transfer regardless of age.
	AgeOverrideEth = 10.0

	// HighFrequencyTxPerDay marks a destination as a service, not a wallet.
	HighFrequencyTxPerDay = 100

	// ReuseThreshold is how many times an address must appear as a target
	// before it is treated as a consolidation point.
	ReuseThreshold = 3

	// ImmediacyBlocks is the window after funding that signals a
	// pre-planned movement.
	ImmediacyBlocks = 10
)

// Input is one node's candidate set plus the graph context the secondary
// filters need.
type Input struct {
	NodeAddress     string
	Candidates      []domain.Transaction
	FundedAt        int64 // unix seconds the node received its inbound funds
	FundedAtBlock   int64
	StolenAmountEth float64
	// PctThreshold is the dynamic percentage-of-stolen-amount threshold
	// (Incident.MinPercentageThreshold).
	PctThreshold float64
	// TargetCount reports how many times an address already appears as an
	// edge target within this incident's graph.
	TargetCount func(address string) int
	// DailyTxRate reports the observed transactions per day on an address,
	// when known. Absence of data skips the high-frequency check.
	DailyTxRate func(address string) (int, bool)
}

// Selected is one surviving transaction with its pipeline verdict.
type Selected struct {
	Tx            domain.Transaction
	PriorityScore float64
	FilterReason  string
	// HighFrequencyDest marks the destination as a HighFrequencyService:
	// the edge is recorded but the destination is immediately terminal.
	HighFrequencyDest bool
	// ConsolidationDest marks the destination as a ConsolidationPoint:
	// score boosted, exploration continues.
	ConsolidationDest bool
}

// Result is the pipeline output for one node.
type Result struct {
	// Selected holds at most MaxPerNode entries, sorted by descending
	// priority score.
	Selected []Selected
	// PrimarySurvivors counts transactions that passed the primary stage;
	// the endpoint classifier uses it for the no-valid-transactions rule.
	PrimarySurvivors int
	TotalCandidates  int
	SkippedMalformed int
}

// Pipeline applies the three-stage filter to a node's candidates.
type Pipeline struct {
	verbose bool
}

// NewPipeline creates a filter pipeline.
func NewPipeline(verbose bool) *Pipeline {
	return &Pipeline{verbose: verbose}
}

// Apply runs all three stages and returns the prioritized selection.
func (p *Pipeline) Apply(in Input) Result {
	result := Result{TotalCandidates: len(in.Candidates)}
	node := strings.ToLower(in.NodeAddress)

	// Primary stage: hard exclusion.
	var survivors []domain.Transaction
	for _, tx := range in.Candidates {
		if !tx.Valid() || tx.ValueEth <= 0 {
			result.SkippedMalformed++
			if p.verbose {
				log.Printf("[filter] skipping malformed transaction %q from %s", tx.Hash, in.NodeAddress)
			}
			continue
		}
		if !p.passesPrimary(tx, node, in) {
			continue
		}
		survivors = append(survivors, tx)
	}
	result.PrimarySurvivors = len(survivors)
	if len(survivors) == 0 {
		return result
	}

	avgGasPrice := averageGasPrice(survivors)

	// Secondary stage: destination reclassification. Tertiary stage:
	// score adjustments on whatever remains.
	selected := make([]Selected, 0, len(survivors))
	for _, tx := range survivors {
		sel := Selected{Tx: tx}

		if in.DailyTxRate != nil {
			if rate, ok := in.DailyTxRate(tx.To); ok && rate > HighFrequencyTxPerDay {
				sel.HighFrequencyDest = true
			}
		}
		// The candidate edge itself counts toward reuse, so two prior
		// edges make this the third occurrence.
		if in.TargetCount != nil && in.TargetCount(tx.To) >= ReuseThreshold-1 {
			sel.ConsolidationDest = true
		}

		sel.PriorityScore, sel.FilterReason = p.score(tx, in, avgGasPrice, sel)
		selected = append(selected, sel)
	}

	// Sort by priority score descending. Bonus caps let transfers of very
	// different size tie on score, so ties prefer the larger value, then
	// block order for determinism.
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].PriorityScore != selected[j].PriorityScore {
			return selected[i].PriorityScore > selected[j].PriorityScore
		}
		if selected[i].Tx.ValueEth != selected[j].Tx.ValueEth {
			return selected[i].Tx.ValueEth > selected[j].Tx.ValueEth
		}
		return selected[i].Tx.BlockNumber < selected[j].Tx.BlockNumber
	})

	if len(selected) > MaxPerNode {
		selected = selected[:MaxPerNode]
	}
	result.Selected = selected
	return result
}

// passesPrimary applies direction, minimum-value and time-bucket rules.
func (p *Pipeline) passesPrimary(tx domain.Transaction, node string, in Input) bool {
	// Direction: only outgoing transfers.
	if strings.ToLower(tx.From) != node {
		return false
	}

	// Minimum value: absolute floor OR dynamic percentage of the stolen
	// amount. Either clears.
	pctFloor := in.StolenAmountEth * in.PctThreshold / 100
	if tx.ValueEth <= MinValueEth && (in.StolenAmountEth <= 0 || tx.ValueEth <= pctFloor) {
		return false
	}

	// Age override: large transfers are kept regardless of timing.
	if tx.ValueEth > AgeOverrideEth {
		return true
	}

	// Time bucket from the node's funding moment.
	elapsed := time.Duration(tx.Timestamp-in.FundedAt) * time.Second
	switch {
	case elapsed < 0:
		// Transfer predates the funds arriving; not part of this flow.
		return false
	case elapsed < HighPriorityWindow:
		return true
	case elapsed < MediumPriorityWindow:
		return true
	case elapsed < LowPriorityWindow:
		return tx.ValueEth > LowBucketMinEth
	default:
		return false
	}
}

// score computes the 0-100 priority score and the dominant filter reason.
// Exact weights are tunable; only the relative ordering is contractual.
func (p *Pipeline) score(tx domain.Transaction, in Input, avgGasPrice float64, sel Selected) (float64, string) {
	score := valueBase(tx.ValueEth)
	score += bucketBonus(tx.Timestamp, in.FundedAt)

	reason := domain.FilterHighValue
	best := 0.0

	// Gas priority: paying over the going rate signals urgency.
	if avgGasPrice > 0 && float64(tx.GasPrice) > 1.2*avgGasPrice {
		score += 10
		if 10 > best {
			best, reason = 10, domain.FilterGasPriority
		}
	}

	// Value-to-gas efficiency rewards real transfers over dust.
	if bonus := efficiencyBonus(tx); bonus > 0 {
		score += bonus
		if bonus > best {
			best, reason = bonus, domain.FilterValueEfficiency
		}
	}

	// Immediacy: movement within a few blocks of funding.
	if in.FundedAtBlock > 0 && tx.BlockNumber-in.FundedAtBlock <= ImmediacyBlocks && tx.BlockNumber >= in.FundedAtBlock {
		score += 10
		if 10 > best {
			best, reason = 10, domain.FilterImmediacy
		}
	}

	// Round amounts suggest a manual, deliberate transfer.
	if isRoundNumber(tx.ValueEth) {
		score += 10
		if 10 > best {
			best, reason = 10, domain.FilterRoundNumber
		}
	}

	if sel.ConsolidationDest {
		score += 20
		reason = domain.FilterConsolidation
	}
	if sel.HighFrequencyDest {
		reason = domain.FilterHighFrequencyDst
	}

	if score > 100 {
		score = 100
	}
	return score, reason
}

func valueBase(valueEth float64) float64 {
	switch {
	case valueEth > 10:
		return 40
	case valueEth > 1:
		return 25
	case valueEth > 0.1:
		return 15
	default:
		return 5
	}
}

func bucketBonus(txTime, fundedAt int64) float64 {
	elapsed := time.Duration(txTime-fundedAt) * time.Second
	switch {
	case elapsed < 0:
		return 0
	case elapsed < HighPriorityWindow:
		return 15
	case elapsed < MediumPriorityWindow:
		return 8
	default:
		return 3
	}
}

// efficiencyBonus scales with value moved per unit of gas cost, capped at 10.
func efficiencyBonus(tx domain.Transaction) float64 {
	feeWei := float64(tx.GasUsed) * float64(tx.GasPrice)
	if feeWei <= 0 {
		return 0
	}
	feeEth := feeWei / 1e18
	ratio := tx.ValueEth / feeEth
	bonus := ratio / 500
	if bonus > 10 {
		bonus = 10
	}
	return bonus
}

// isRoundNumber reports whether the amount has at most 3 significant
// decimal digits (10.5 yes, 10.4817 no).
func isRoundNumber(valueEth float64) bool {
	scaled := valueEth * 1000
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

func averageGasPrice(txs []domain.Transaction) float64 {
	if len(txs) == 0 {
		return 0
	}
	var sum float64
	for _, tx := range txs {
		sum += float64(tx.GasPrice)
	}
	return sum / float64(len(txs))
}
