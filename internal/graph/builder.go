package graph

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eth-trace-lab/internal/chaindata"
	"eth-trace-lab/internal/classify"
	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/filter"
)

// Build failure sentinels. Both are returned together with the partial
// graph accumulated so far.
var (
	// ErrTimeout means the wall-clock budget ran out mid-traversal.
	ErrTimeout = errors.New("graph: processing timeout")
	// ErrChainDataUnavailable means the provider failed repeatedly and no
	// further progress is possible.
	ErrChainDataUnavailable = errors.New("graph: chain data unavailable")
)

// consecutiveFailureLimit aborts the build after this many provider
// failures in a row. Isolated failures only mark the affected node.
const consecutiveFailureLimit = 3

// Limits bounds a single build run.
type Limits struct {
	MaxNodes    int
	MaxAPICalls int
	MaxDepth    int
	Timeout     time.Duration
}

// DefaultLimits returns the standard processing caps.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:    500,
		MaxAPICalls: 25,
		MaxDepth:    8,
		Timeout:     30 * time.Second,
	}
}

// Stats summarizes one build run.
type Stats struct {
	NodesProcessed int
	APICallsUsed   int
	Elapsed        time.Duration
}

// ProgressFunc receives coarse progress updates during traversal.
type ProgressFunc func(percent int, step string)

// Builder runs the queue-driven traversal that turns an incident into a
// trace graph.
type Builder struct {
	client     chaindata.Client
	pipeline   *filter.Pipeline
	classifier *classify.Classifier
	limits     Limits

	prefetch   int
	nowFn      func() time.Time
	onProgress ProgressFunc
	verbose    bool

	// dailyTxRate, when set, feeds the high-frequency destination check.
	// Left nil the check is skipped, saving provider budget.
	dailyTxRate func(address string) (int, bool)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLimits overrides the processing caps.
func WithLimits(l Limits) BuilderOption {
	return func(b *Builder) { b.limits = l }
}

// WithPrefetch sets how many provider fetches may run concurrently.
func WithPrefetch(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.prefetch = n
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) BuilderOption {
	return func(b *Builder) { b.onProgress = fn }
}

// WithClock overrides the time source. Tests use this to exercise the
// wall-clock budget without sleeping.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.nowFn = now }
}

// WithDailyTxRate installs a destination activity source for the
// high-frequency service check.
func WithDailyTxRate(fn func(address string) (int, bool)) BuilderOption {
	return func(b *Builder) { b.dailyTxRate = fn }
}

// WithVerbose enables per-node logging.
func WithVerbose(v bool) BuilderOption {
	return func(b *Builder) { b.verbose = v }
}

// NewBuilder wires a builder from its collaborators.
func NewBuilder(client chaindata.Client, pipeline *filter.Pipeline, classifier *classify.Classifier, opts ...BuilderOption) *Builder {
	b := &Builder{
		client:     client,
		pipeline:   pipeline,
		classifier: classifier,
		limits:     DefaultLimits(),
		prefetch:   4,
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type queueItem struct {
	address string
	depth   int
}

type fetchResult struct {
	item queueItem
	txs  []domain.Transaction
	err  error
}

// Build constructs the trace graph for an incident. On ErrTimeout or
// ErrChainDataUnavailable the returned graph holds the partial results
// accumulated up to the failure.
func (b *Builder) Build(ctx context.Context, incident *domain.Incident) (*Graph, Stats, error) {
	start := b.nowFn()
	deadline := start.Add(b.limits.Timeout)
	callsAtStart := b.client.APICalls()

	g := New(incident.ID)
	b.seed(g, incident)

	queue := []queueItem{{address: strings.ToLower(incident.HackToAddress), depth: 0}}
	processed := make(map[string]bool)
	consecutiveFailures := 0
	stats := Stats{}

	b.progress(5, domain.StepInitialization)

	for len(queue) > 0 {
		if b.nowFn().After(deadline) {
			stats.APICallsUsed = b.client.APICalls() - callsAtStart
			stats.Elapsed = b.nowFn().Sub(start)
			return g, stats, ErrTimeout
		}
		used := b.client.APICalls() - callsAtStart
		if used >= b.limits.MaxAPICalls || g.NodeCount() >= b.limits.MaxNodes {
			break
		}

		batch := b.nextBatch(&queue, processed, g, incident, b.limits.MaxAPICalls-used)
		if len(batch) == 0 {
			continue
		}

		results := b.fetchBatch(ctx, g, batch)

		for _, res := range results {
			node, _ := g.Node(res.item.address)
			if res.err != nil {
				consecutiveFailures++
				node.FetchFailed = true
				if b.verbose {
					log.Printf("[graph] fetch failed for %s: %v", res.item.address, res.err)
				}
				if consecutiveFailures >= consecutiveFailureLimit {
					stats.APICallsUsed = b.client.APICalls() - callsAtStart
					stats.Elapsed = b.nowFn().Sub(start)
					return g, stats, ErrChainDataUnavailable
				}
				continue
			}
			consecutiveFailures = 0

			b.absorb(g, incident, node, res, &queue)
			processed[res.item.address] = true
			stats.NodesProcessed++

			pct := stats.NodesProcessed * 5
			if pct > 95 {
				pct = 95
			}
			b.progress(pct, domain.StepTraversal)
		}
	}

	stats.APICallsUsed = b.client.APICalls() - callsAtStart
	stats.Elapsed = b.nowFn().Sub(start)
	return g, stats, nil
}

// seed creates the victim and first-hop nodes plus the hack-transaction edge.
func (b *Builder) seed(g *Graph, incident *domain.Incident) {
	now := b.nowFn().UnixMilli()
	g.AddNode(&domain.Node{
		Address:         incident.VictimAddress,
		EntityType:      domain.EntityUnknown,
		ConfidenceScore: 100,
		DepthFromHack:   0,
		FirstSeenBlock:  incident.SeedBlockNumber,
		CreatedAt:       now,
	})
	g.AddNode(&domain.Node{
		Address:        incident.HackToAddress,
		EntityType:     domain.EntityUnknown,
		DepthFromHack:  0,
		FirstSeenBlock: incident.SeedBlockNumber,
		CreatedAt:      now,
	})
	g.AddEdge(domain.Edge{
		FromAddress:     incident.VictimAddress,
		ToAddress:       incident.HackToAddress,
		TransactionHash: incident.HackTxHash,
		ValueEth:        incident.StolenAmountEth,
		PriorityScore:   100,
		BlockNumber:     incident.SeedBlockNumber,
		FilterReason:    domain.FilterInitialHackTx,
		CreatedAt:       now,
	})
}

// nextBatch dequeues up to the prefetch width of explorable items. Items
// the pre-fetch classification settles are marked terminal without
// spending a provider call.
func (b *Builder) nextBatch(queue *[]queueItem, processed map[string]bool, g *Graph, incident *domain.Incident, budget int) []queueItem {
	limit := b.prefetch
	if budget < limit {
		limit = budget
	}

	var batch []queueItem
	inBatch := make(map[string]bool)
	for len(*queue) > 0 && len(batch) < limit {
		item := (*queue)[0]
		*queue = (*queue)[1:]
		// An address reached through two parents sits in the queue twice;
		// it is fetched once.
		if processed[item.address] || inBatch[item.address] {
			continue
		}
		node, ok := g.Node(item.address)
		if !ok || node.Terminal() {
			continue
		}

		verdict := b.classifier.Classify(classify.Input{
			Address: item.address,
			Depth:   item.depth,
		})
		if verdict.Terminal {
			b.applyVerdict(node, verdict)
			processed[item.address] = true
			continue
		}
		batch = append(batch, item)
		inBatch[item.address] = true
	}
	return batch
}

// fetchBatch runs the provider calls for a batch concurrently. Results come
// back in batch order; graph mutation stays with the caller.
func (b *Builder) fetchBatch(ctx context.Context, g *Graph, batch []queueItem) []fetchResult {
	results := make([]fetchResult, len(batch))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.prefetch)
	for i, item := range batch {
		node, _ := g.Node(item.address)
		startBlock := node.FirstSeenBlock
		eg.Go(func() error {
			txs, err := b.client.FetchOutgoing(egCtx, item.address, startBlock)
			results[i] = fetchResult{item: item, txs: txs, err: err}
			return nil
		})
	}
	// Goroutines never return errors; failures travel in fetchResult.
	_ = eg.Wait()
	return results
}

// absorb applies one node's fetched transactions to the graph: filter
// pipeline, edge creation, enqueueing and final classification.
func (b *Builder) absorb(g *Graph, incident *domain.Incident, node *domain.Node, res fetchResult, queue *[]queueItem) {
	node.TransactionCount = len(res.txs)

	fundedAt := node.FundedAt
	if fundedAt == 0 && len(res.txs) > 0 {
		// Seed nodes carry no funding timestamp; anchor the time buckets
		// on the earliest observed activity instead.
		fundedAt = res.txs[0].Timestamp
		for _, tx := range res.txs {
			if tx.Timestamp < fundedAt {
				fundedAt = tx.Timestamp
			}
		}
		node.FundedAt = fundedAt
	}

	out := b.pipeline.Apply(filter.Input{
		NodeAddress:     node.Address,
		Candidates:      res.txs,
		FundedAt:        fundedAt,
		FundedAtBlock:   node.FirstSeenBlock,
		StolenAmountEth: incident.StolenAmountEth,
		PctThreshold:    incident.MinPercentageThreshold(),
		TargetCount:     g.TargetCount,
		DailyTxRate:     b.dailyTxRate,
	})

	now := b.nowFn().UnixMilli()
	for _, sel := range out.Selected {
		if g.NodeCount() >= b.limits.MaxNodes {
			break
		}
		to := strings.ToLower(sel.Tx.To)
		child, exists := g.Node(to)
		if !exists {
			child = &domain.Node{
				Address:        to,
				EntityType:     domain.EntityUnknown,
				DepthFromHack:  res.item.depth + 1,
				FirstSeenBlock: sel.Tx.BlockNumber,
				FundedAt:       sel.Tx.Timestamp,
				CreatedAt:      now,
			}
			g.AddNode(child)
		}

		g.AddEdge(domain.Edge{
			FromAddress:     node.Address,
			ToAddress:       to,
			TransactionHash: sel.Tx.Hash,
			ValueEth:        sel.Tx.ValueEth,
			PriorityScore:   sel.PriorityScore,
			BlockNumber:     sel.Tx.BlockNumber,
			Timestamp:       sel.Tx.Timestamp,
			GasUsed:         sel.Tx.GasUsed,
			GasPrice:        sel.Tx.GasPrice,
			FilterReason:    sel.FilterReason,
			CreatedAt:       now,
		})

		switch {
		case sel.HighFrequencyDest:
			// Edge recorded, destination not explored further.
			if !child.Terminal() {
				child.EntityType = domain.EntityHighFrequencyService
				child.ConfidenceScore = 60
				child.TerminationReason = domain.ReasonHighFrequencyService
				child.ManualExplorationReady = true
			}
		case sel.ConsolidationDest:
			if !child.Terminal() {
				child.EntityType = domain.EntityConsolidationPoint
				if child.ConfidenceScore < 70 {
					child.ConfidenceScore = 70
				}
			}
			fallthrough
		default:
			if !child.Terminal() {
				*queue = append(*queue, queueItem{address: to, depth: child.DepthFromHack})
			}
		}
	}

	verdict := b.classifier.Classify(classify.Input{
		Address:              node.Address,
		Depth:                res.item.depth,
		HasChainData:         true,
		OutgoingTxCount:      len(res.txs),
		PrimarySurvivors:     out.PrimarySurvivors,
		CumulativeOutflowEth: g.Outflow(node.Address),
		StolenAmountEth:      incident.StolenAmountEth,
	})
	if verdict.Terminal {
		b.applyVerdict(node, verdict)
	}
}

func (b *Builder) applyVerdict(node *domain.Node, v classify.Verdict) {
	node.EntityType = v.EntityType
	node.EntityName = v.EntityName
	node.ConfidenceScore = v.Confidence
	node.TerminationReason = v.Reason
	// Every terminal node stays marked for manual follow-up, except dead
	// ends with nothing significant to follow.
	node.ManualExplorationReady = v.Reason != domain.ReasonNoSignificantTx
}

func (b *Builder) progress(percent int, step string) {
	if b.onProgress != nil {
		b.onProgress(percent, step)
	}
}
