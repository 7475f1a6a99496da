// Package graph holds the per-incident trace graph and the builder that
// populates it from chain data.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"eth-trace-lab/internal/domain"
)

type edgeKey struct {
	from, to, txHash string
}

// Graph is an in-memory arena of nodes and edges for one incident. Nodes
// are indexed by lowercase address; the edge set is a multigraph keyed by
// (from, to, txHash). Not safe for concurrent use; the builder mutates it
// from a single goroutine.
type Graph struct {
	incidentID string

	nodes map[string]*domain.Node
	order []string // insertion order, for deterministic iteration

	edges    []domain.Edge
	edgeKeys map[edgeKey]struct{}

	// targetCounts tracks how often an address appears as an edge target,
	// feeding the consolidation-point detection.
	targetCounts map[string]int

	// outflow accumulates the total ETH each address forwarded onward.
	outflow map[string]float64
}

// New creates an empty graph for one incident.
func New(incidentID string) *Graph {
	return &Graph{
		incidentID:   incidentID,
		nodes:        make(map[string]*domain.Node),
		edgeKeys:     make(map[edgeKey]struct{}),
		targetCounts: make(map[string]int),
		outflow:      make(map[string]float64),
	}
}

// IncidentID returns the incident this graph belongs to.
func (g *Graph) IncidentID() string { return g.incidentID }

// AddNode inserts a node, normalizing its address to lowercase. Returns
// false if the address is already present; the existing node is untouched.
func (g *Graph) AddNode(n *domain.Node) bool {
	addr := strings.ToLower(n.Address)
	if _, ok := g.nodes[addr]; ok {
		return false
	}
	n.Address = addr
	n.IncidentID = g.incidentID
	g.nodes[addr] = n
	g.order = append(g.order, addr)
	return true
}

// Node returns the node for an address, if present.
func (g *Graph) Node(address string) (*domain.Node, bool) {
	n, ok := g.nodes[strings.ToLower(address)]
	return n, ok
}

// AddEdge inserts an edge and updates the target and outflow accounting.
// Both endpoints must already exist; a missing endpoint is a programming
// error in the traversal and panics. Returns false for a duplicate
// (from, to, txHash) triple.
func (g *Graph) AddEdge(e domain.Edge) bool {
	from := strings.ToLower(e.FromAddress)
	to := strings.ToLower(e.ToAddress)
	if _, ok := g.nodes[from]; !ok {
		panic(fmt.Sprintf("graph: edge source %s not in graph", from))
	}
	if _, ok := g.nodes[to]; !ok {
		panic(fmt.Sprintf("graph: edge target %s not in graph", to))
	}

	key := edgeKey{from, to, e.TransactionHash}
	if _, dup := g.edgeKeys[key]; dup {
		return false
	}
	e.FromAddress = from
	e.ToAddress = to
	e.IncidentID = g.incidentID
	g.edgeKeys[key] = struct{}{}
	g.edges = append(g.edges, e)
	g.targetCounts[to]++
	g.outflow[from] += e.ValueEth
	return true
}

// RemoveNode deletes a node together with every edge touching it.
func (g *Graph) RemoveNode(address string) {
	addr := strings.ToLower(address)
	if _, ok := g.nodes[addr]; !ok {
		return
	}
	delete(g.nodes, addr)
	for i, a := range g.order {
		if a == addr {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.FromAddress == addr || e.ToAddress == addr {
			delete(g.edgeKeys, edgeKey{e.FromAddress, e.ToAddress, e.TransactionHash})
			g.targetCounts[e.ToAddress]--
			g.outflow[e.FromAddress] -= e.ValueEth
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
}

// RedirectEdges rewrites every edge touching oldAddr to point at newAddr,
// dropping would-be self-loops. Used by entity consolidation.
func (g *Graph) RedirectEdges(oldAddr, newAddr string) {
	oldA := strings.ToLower(oldAddr)
	newA := strings.ToLower(newAddr)
	if oldA == newA {
		return
	}

	kept := g.edges[:0]
	var moved []domain.Edge
	for _, e := range g.edges {
		if e.FromAddress != oldA && e.ToAddress != oldA {
			kept = append(kept, e)
			continue
		}
		delete(g.edgeKeys, edgeKey{e.FromAddress, e.ToAddress, e.TransactionHash})
		g.targetCounts[e.ToAddress]--
		g.outflow[e.FromAddress] -= e.ValueEth

		if e.FromAddress == oldA {
			e.FromAddress = newA
		}
		if e.ToAddress == oldA {
			e.ToAddress = newA
		}
		if e.FromAddress == e.ToAddress {
			continue // self-loop after redirect, drop
		}
		moved = append(moved, e)
	}
	g.edges = kept
	for _, e := range moved {
		key := edgeKey{e.FromAddress, e.ToAddress, e.TransactionHash}
		if _, dup := g.edgeKeys[key]; dup {
			continue
		}
		g.edgeKeys[key] = struct{}{}
		g.edges = append(g.edges, e)
		g.targetCounts[e.ToAddress]++
		g.outflow[e.FromAddress] += e.ValueEth
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*domain.Node {
	out := make([]*domain.Node, 0, len(g.order))
	for _, addr := range g.order {
		out = append(out, g.nodes[addr])
	}
	return out
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []domain.Edge {
	out := make([]domain.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// UpdateEdges applies fn to every stored edge in place. The identifying
// fields (endpoints, transaction hash) must not be changed by fn.
func (g *Graph) UpdateEdges(fn func(*domain.Edge)) {
	for i := range g.edges {
		fn(&g.edges[i])
	}
}

// OutDegree counts the edges leaving an address.
func (g *Graph) OutDegree(address string) int {
	addr := strings.ToLower(address)
	n := 0
	for _, e := range g.edges {
		if e.FromAddress == addr {
			n++
		}
	}
	return n
}

// IncomingValue sums the ETH arriving at an address over all its edges.
func (g *Graph) IncomingValue(address string) float64 {
	addr := strings.ToLower(address)
	var sum float64
	for _, e := range g.edges {
		if e.ToAddress == addr {
			sum += e.ValueEth
		}
	}
	return sum
}

// TargetCount reports how many edges point at an address.
func (g *Graph) TargetCount(address string) int {
	return g.targetCounts[strings.ToLower(address)]
}

// Outflow reports the total ETH an address forwarded onward.
func (g *Graph) Outflow(address string) float64 {
	return g.outflow[strings.ToLower(address)]
}

// MaxDepth returns the deepest DepthFromHack across all nodes.
func (g *Graph) MaxDepth() int {
	max := 0
	for _, n := range g.nodes {
		if n.DepthFromHack > max {
			max = n.DepthFromHack
		}
	}
	return max
}

// TotalValueTraced sums the value across all edges.
func (g *Graph) TotalValueTraced() float64 {
	var sum float64
	for _, e := range g.edges {
		sum += e.ValueEth
	}
	return sum
}

// EndpointSummary counts nodes per entity type.
func (g *Graph) EndpointSummary() map[string]int {
	out := make(map[string]int)
	for _, n := range g.nodes {
		out[string(n.EntityType)]++
	}
	return out
}

// SortedAddresses returns all node addresses in lexical order.
func (g *Graph) SortedAddresses() []string {
	out := make([]string, 0, len(g.nodes))
	for addr := range g.nodes {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
