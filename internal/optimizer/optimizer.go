// Package optimizer post-processes a constructed trace graph: dead-end
// removal, entity consolidation, flow analysis and path ranking. It runs
// after traversal finishes, including on partial graphs from a timeout.
package optimizer

import (
	"sort"
	"strings"

	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/graph"
)

// TopPathCount limits how many ranked paths the optimizer emits.
const TopPathCount = 10

// Flow tier cutoffs, as percentage of the stolen amount.
const (
	criticalFlowPct    = 10.0
	significantFlowPct = 2.0
)

// maxPathDepth bounds path enumeration. Traversal depth is already capped
// below this; the bound only guards against consolidation-created cycles.
const maxPathDepth = 16

// Optimizer rewrites a trace graph in place.
type Optimizer struct {
	stolenAmountEth float64
}

// New creates an optimizer for an incident's stolen amount.
func New(stolenAmountEth float64) *Optimizer {
	return &Optimizer{stolenAmountEth: stolenAmountEth}
}

// Optimize runs all rewrite passes in order. Idempotent: a second run on
// the same graph changes nothing.
func (o *Optimizer) Optimize(g *graph.Graph) {
	o.RemoveDeadEnds(g)
	o.ConsolidateEntities(g)
	o.AnalyzeFlows(g)
}

// RemoveDeadEnds deletes nodes that were discovered but never explored:
// zero outgoing edges and no termination verdict. Terminal nodes are kept
// whatever their degree, as are nodes whose provider fetch failed, since
// both carry information a human reviewer needs.
func (o *Optimizer) RemoveDeadEnds(g *graph.Graph) {
	var remove []string
	for _, addr := range g.SortedAddresses() {
		n, ok := g.Node(addr)
		if !ok {
			continue
		}
		if n.Terminal() || n.FetchFailed {
			continue
		}
		if n.DepthFromHack == 0 {
			// Seed nodes anchor the graph.
			continue
		}
		if g.OutDegree(n.Address) == 0 {
			remove = append(remove, n.Address)
		}
	}
	for _, addr := range remove {
		g.RemoveNode(addr)
	}
}

// ConsolidateEntities merges nodes sharing a detected entity name into a
// single master node. The master is the first-discovered address of the
// group; the others' balances, counts and edges all move to it.
func (o *Optimizer) ConsolidateEntities(g *graph.Graph) {
	groups := make(map[string][]*domain.Node)
	for _, n := range g.Nodes() { // insertion order, master comes first
		if n.EntityName == "" {
			continue
		}
		key := strings.ToLower(n.EntityName)
		groups[key] = append(groups[key], n)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		members := groups[name]
		if len(members) < 2 {
			continue
		}
		master := members[0]
		for _, other := range members[1:] {
			master.BalanceEth += other.BalanceEth
			master.TransactionCount += other.TransactionCount
			master.ConsolidatedAddresses = append(master.ConsolidatedAddresses, other.Address)
			master.ConsolidatedAddresses = append(master.ConsolidatedAddresses, other.ConsolidatedAddresses...)
			if other.ConfidenceScore > master.ConfidenceScore {
				master.ConfidenceScore = other.ConfidenceScore
			}
			g.RedirectEdges(other.Address, master.Address)
			g.RemoveNode(other.Address)
		}
	}
}

// AnalyzeFlows stamps every node and edge with its share of the stolen
// amount and the matching tier. A node's share is the value arriving at it
// over all incoming edges.
func (o *Optimizer) AnalyzeFlows(g *graph.Graph) {
	if o.stolenAmountEth <= 0 {
		return
	}
	for _, n := range g.Nodes() {
		incoming := g.IncomingValue(n.Address)
		n.FlowPercentage = incoming / o.stolenAmountEth * 100
		n.FlowTier = flowTier(n.FlowPercentage)
	}

	g.UpdateEdges(func(e *domain.Edge) {
		e.FlowPercentage = e.ValueEth / o.stolenAmountEth * 100
		e.FlowTier = flowTier(e.FlowPercentage)
	})
}

func flowTier(pct float64) domain.FlowTier {
	switch {
	case pct > criticalFlowPct:
		return domain.FlowCritical
	case pct > significantFlowPct:
		return domain.FlowSignificant
	default:
		return domain.FlowMinor
	}
}

// endpointTypeScore weighs how actionable a path's final node is.
var endpointTypeScore = map[domain.EntityType]float64{
	domain.EntityCEX:                  1.0,
	domain.EntityDEX:                  1.0,
	domain.EntityMixer:                1.0,
	domain.EntityBridge:               1.0,
	domain.EntityPotentialEndpoint:    0.7,
	domain.EntityHighFrequencyService: 0.6,
	domain.EntityConsolidationPoint:   0.6,
	domain.EntityUnknown:              0.4,
	domain.EntityNonPromisingEndpoint: 0.2,
}

type rawPath struct {
	addresses  []string
	bottleneck float64
	lastSeen   int64
	endpoint   *domain.Node
}

// RankPaths enumerates seed-to-terminal paths and scores each as
// 0.5*value + 0.3*recency + 0.2*endpointType, components normalized to
// 0-1 across the enumerated set. Returns at most TopPathCount paths,
// highest score first.
func (o *Optimizer) RankPaths(g *graph.Graph, seedAddress string) []domain.RankedPath {
	seed := strings.ToLower(seedAddress)
	if _, ok := g.Node(seed); !ok {
		return nil
	}

	outgoing := make(map[string][]domain.Edge)
	for _, e := range g.Edges() {
		outgoing[e.FromAddress] = append(outgoing[e.FromAddress], e)
	}

	var paths []rawPath
	var walk func(addr string, trail []string, onTrail map[string]bool, bottleneck float64, lastSeen int64)
	walk = func(addr string, trail []string, onTrail map[string]bool, bottleneck float64, lastSeen int64) {
		node, ok := g.Node(addr)
		if !ok {
			return
		}
		next := outgoing[addr]
		if node.Terminal() || len(next) == 0 {
			if len(trail) > 1 {
				paths = append(paths, rawPath{
					addresses:  append([]string(nil), trail...),
					bottleneck: bottleneck,
					lastSeen:   lastSeen,
					endpoint:   node,
				})
			}
			return
		}
		if len(trail) > maxPathDepth {
			return
		}
		for _, e := range next {
			if onTrail[e.ToAddress] {
				continue
			}
			b := bottleneck
			if b == 0 || e.ValueEth < b {
				b = e.ValueEth
			}
			ls := lastSeen
			if e.Timestamp > ls {
				ls = e.Timestamp
			}
			onTrail[e.ToAddress] = true
			walk(e.ToAddress, append(trail, e.ToAddress), onTrail, b, ls)
			delete(onTrail, e.ToAddress)
		}
	}
	walk(seed, []string{seed}, map[string]bool{seed: true}, 0, 0)

	if len(paths) == 0 {
		return nil
	}

	var maxValue float64
	minSeen, maxSeen := paths[0].lastSeen, paths[0].lastSeen
	for _, p := range paths {
		if p.bottleneck > maxValue {
			maxValue = p.bottleneck
		}
		if p.lastSeen < minSeen {
			minSeen = p.lastSeen
		}
		if p.lastSeen > maxSeen {
			maxSeen = p.lastSeen
		}
	}

	ranked := make([]domain.RankedPath, 0, len(paths))
	for _, p := range paths {
		valueScore := 0.0
		if maxValue > 0 {
			valueScore = p.bottleneck / maxValue
		}
		recencyScore := 1.0
		if maxSeen > minSeen {
			recencyScore = float64(p.lastSeen-minSeen) / float64(maxSeen-minSeen)
		}
		typeScore := endpointTypeScore[p.endpoint.EntityType]

		pct := 0.0
		if o.stolenAmountEth > 0 {
			pct = p.bottleneck / o.stolenAmountEth * 100
		}
		ranked = append(ranked, domain.RankedPath{
			Addresses:          p.addresses,
			ValueEth:           p.bottleneck,
			ValuePercentage:    pct,
			HopCount:           len(p.addresses) - 1,
			EndpointType:       p.endpoint.EntityType,
			EndpointConfidence: p.endpoint.ConfidenceScore,
			Score:              0.5*valueScore + 0.3*recencyScore + 0.2*typeScore,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ValueEth > ranked[j].ValueEth
	})
	if len(ranked) > TopPathCount {
		ranked = ranked[:TopPathCount]
	}
	for i := range ranked {
		ranked[i].PathID = i + 1
	}
	return ranked
}
