package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"eth-trace-lab/internal/chaindata"
	"eth-trace-lab/internal/chaindata/stub"
	"eth-trace-lab/internal/classify"
	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/filter"
)

const (
	victimAddr = "0x1111111111111111111111111111111111111111"
	hackerAddr = "0x2222222222222222222222222222222222222222"
	hackTx     = "0xdeadbeef00000000000000000000000000000000000000000000000000000001"
	seedBlock  = int64(18_000_000)
	seedTime   = int64(1_700_000_000)
)

func testIncident(stolen float64) *domain.Incident {
	return &domain.Incident{
		ID:              "inc-1",
		VictimAddress:   victimAddr,
		HackTxHash:      hackTx,
		HackToAddress:   hackerAddr,
		StolenAmountEth: stolen,
		SeedBlockNumber: seedBlock,
	}
}

func buildTx(hash, from, to string, valueEth float64, blockOffset int64) domain.Transaction {
	return domain.Transaction{
		Hash:        hash,
		From:        from,
		To:          to,
		ValueWei:    fmt.Sprintf("%.0f", valueEth*1e18),
		ValueEth:    valueEth,
		BlockNumber: seedBlock + blockOffset,
		Timestamp:   seedTime + blockOffset*12,
		GasUsed:     21000,
		GasPrice:    30_000_000_000,
	}
}

func newBuilder(client chaindata.Client, opts ...BuilderOption) *Builder {
	return NewBuilder(client, filter.NewPipeline(false), classify.NewClassifier(), opts...)
}

func TestBuildSingleHop(t *testing.T) {
	dest := "0x3333333333333333333333333333333333333333"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, dest, 10, 5))

	b := newBuilder(client)
	g, stats, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Seed nodes plus the discovered destination.
	if g.NodeCount() != 3 {
		t.Fatalf("NodeCount = %d, want 3", g.NodeCount())
	}
	seedEdgeFound := false
	for _, e := range g.Edges() {
		if e.TransactionHash == hackTx {
			seedEdgeFound = true
			if e.FilterReason != domain.FilterInitialHackTx || e.PriorityScore != 100 {
				t.Fatalf("seed edge = %+v", e)
			}
		}
	}
	if !seedEdgeFound {
		t.Fatal("seed edge missing")
	}

	child, ok := g.Node(dest)
	if !ok {
		t.Fatal("destination node not created")
	}
	if child.DepthFromHack != 1 {
		t.Fatalf("child depth = %d, want 1", child.DepthFromHack)
	}

	hacker, _ := g.Node(hackerAddr)
	if hacker.Terminal() {
		t.Fatalf("hacker should not be terminal, got reason %q", hacker.TerminationReason)
	}
	if hacker.DepthFromHack != 0 {
		t.Fatalf("hacker depth = %d, want 0", hacker.DepthFromHack)
	}

	if stats.NodesProcessed == 0 || stats.APICallsUsed == 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestBuildDepthMonotonic(t *testing.T) {
	// Chain hacker -> d1 -> d2; depth must increase along the path.
	d1 := "0x3333333333333333333333333333333333333333"
	d2 := "0x4444444444444444444444444444444444444444"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, d1, 10, 5))
	client.Add(d1, buildTx("0xaaa2", d1, d2, 8, 10))

	b := newBuilder(client)
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, e := range g.Edges() {
		from, _ := g.Node(e.FromAddress)
		to, _ := g.Node(e.ToAddress)
		if from == nil || to == nil {
			t.Fatalf("edge references missing node: %+v", e)
		}
		if to.DepthFromHack < from.DepthFromHack {
			t.Fatalf("depth decreased along %s -> %s: %d -> %d",
				e.FromAddress, e.ToAddress, from.DepthFromHack, to.DepthFromHack)
		}
	}
	n2, ok := g.Node(d2)
	if !ok || n2.DepthFromHack != 2 {
		t.Fatalf("d2 node = %+v, ok=%v, want depth 2", n2, ok)
	}
}

func TestBuildKnownExchangeStopsWithoutFetch(t *testing.T) {
	binance := "0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, binance, 10, 5))

	b := newBuilder(client)
	g, stats, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n, ok := g.Node(binance)
	if !ok {
		t.Fatal("exchange node missing")
	}
	if !n.Terminal() || n.EntityType != domain.EntityCEX || n.EntityName != "Binance" {
		t.Fatalf("exchange node = %+v", n)
	}
	// Only the hacker fetch spends budget; the exchange is settled by
	// reputation before any provider call.
	if stats.APICallsUsed != 1 {
		t.Fatalf("APICallsUsed = %d, want 1", stats.APICallsUsed)
	}
}

func TestBuildTimeoutReturnsPartial(t *testing.T) {
	dest := "0x3333333333333333333333333333333333333333"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, dest, 10, 5))

	// Clock jumps past the deadline after the first read.
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return time.Unix(seedTime, 0)
		}
		return time.Unix(seedTime, 0).Add(time.Minute)
	}

	b := newBuilder(client, WithClock(clock))
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	// Partial graph retains at least the seed structure.
	if g == nil || g.NodeCount() < 2 || g.EdgeCount() < 1 {
		t.Fatalf("partial graph = %+v", g)
	}
}

func TestBuildProviderOutage(t *testing.T) {
	// Hacker fans out to three destinations; every child fetch fails.
	client := stub.NewClient()
	var dests []string
	for i := 0; i < 3; i++ {
		d := fmt.Sprintf("0x%040d", 100+i)
		dests = append(dests, d)
		client.Add(hackerAddr, buildTx(fmt.Sprintf("0xaaa%d", i), hackerAddr, d, 3, int64(i+1)))
		client.Errors[d] = chaindata.ErrUnavailable
	}

	b := newBuilder(client)
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if !errors.Is(err, ErrChainDataUnavailable) {
		t.Fatalf("err = %v, want ErrChainDataUnavailable", err)
	}
	for _, d := range dests[:1] {
		n, ok := g.Node(d)
		if !ok || !n.FetchFailed {
			t.Fatalf("failed node %s = %+v, want FetchFailed", d, n)
		}
	}
}

func TestBuildIsolatedFailure(t *testing.T) {
	// One child fetch fails, the other succeeds; the build completes and
	// only the failed node is marked.
	bad := "0x3333333333333333333333333333333333333333"
	good := "0x4444444444444444444444444444444444444444"
	leaf := "0x5555555555555555555555555555555555555555"
	client := stub.NewClient()
	client.Add(hackerAddr,
		buildTx("0xaaa1", hackerAddr, bad, 5, 1),
		buildTx("0xaaa2", hackerAddr, good, 5, 2),
	)
	client.Errors[bad] = chaindata.ErrUnavailable
	client.Add(good, buildTx("0xaaa3", good, leaf, 4, 10))

	b := newBuilder(client)
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	badNode, _ := g.Node(bad)
	if badNode == nil || !badNode.FetchFailed {
		t.Fatalf("bad node = %+v, want FetchFailed", badNode)
	}
	if _, ok := g.Node(leaf); !ok {
		t.Fatal("healthy branch was not explored")
	}
}

func TestBuildAPIBudget(t *testing.T) {
	// Deep chain but only one provider call allowed.
	d1 := "0x3333333333333333333333333333333333333333"
	d2 := "0x4444444444444444444444444444444444444444"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, d1, 10, 5))
	client.Add(d1, buildTx("0xaaa2", d1, d2, 8, 10))

	limits := DefaultLimits()
	limits.MaxAPICalls = 1
	b := newBuilder(client, WithLimits(limits))
	g, stats, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.APICallsUsed != 1 {
		t.Fatalf("APICallsUsed = %d, want 1", stats.APICallsUsed)
	}
	if _, ok := g.Node(d2); ok {
		t.Fatal("d2 discovered despite exhausted budget")
	}
}

func TestBuildNodeCap(t *testing.T) {
	client := stub.NewClient()
	for i := 0; i < 5; i++ {
		d := fmt.Sprintf("0x%040d", 200+i)
		client.Add(hackerAddr, buildTx(fmt.Sprintf("0xbbb%d", i), hackerAddr, d, 3, int64(i+1)))
	}

	limits := DefaultLimits()
	limits.MaxNodes = 4 // victim + hacker + 2 children
	b := newBuilder(client, WithLimits(limits))
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NodeCount() > 4 {
		t.Fatalf("NodeCount = %d, want <= 4", g.NodeCount())
	}
}

func TestBuildHighFrequencyDestination(t *testing.T) {
	svc := "0x3333333333333333333333333333333333333333"
	client := stub.NewClient()
	client.Add(hackerAddr, buildTx("0xaaa1", hackerAddr, svc, 10, 5))
	// The service's own history must never be fetched.
	client.Add(svc, buildTx("0xaaa2", svc, "0x4444444444444444444444444444444444444444", 9, 10))

	b := newBuilder(client, WithDailyTxRate(func(address string) (int, bool) {
		if address == svc {
			return 500, true
		}
		return 0, false
	}))
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n, _ := g.Node(svc)
	if n == nil || n.EntityType != domain.EntityHighFrequencyService {
		t.Fatalf("service node = %+v", n)
	}
	if !n.Terminal() {
		t.Fatal("high-frequency destination must be terminal")
	}
	// Edge to the service is recorded, but nothing beyond it.
	if _, ok := g.Node("0x4444444444444444444444444444444444444444"); ok {
		t.Fatal("explored beyond a terminal high-frequency service")
	}
}

func TestBuildManualExplorationFlag(t *testing.T) {
	busy := "0x5555555555555555555555555555555555555555"
	quiet := "0x6666666666666666666666666666666666666666"
	client := stub.NewClient()
	client.Add(hackerAddr,
		buildTx("0xaaa1", hackerAddr, busy, 10, 5),
		buildTx("0xaaa2", hackerAddr, quiet, 10, 6),
	)
	// Over the outgoing-volume cutoff, nothing above the value floor.
	for i := 0; i < 201; i++ {
		client.Add(busy, buildTx(fmt.Sprintf("0xbb%03d", i), busy,
			fmt.Sprintf("0xc%039d", i), 0.01, int64(10+i)))
	}
	// Dead end: a short history with nothing above the value floor.
	for i := 0; i < 3; i++ {
		client.Add(quiet, buildTx(fmt.Sprintf("0xdd%03d", i), quiet,
			fmt.Sprintf("0xe%039d", i), 0.01, int64(10+i)))
	}

	b := newBuilder(client)
	g, _, err := b.Build(context.Background(), testIncident(10.5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n, _ := g.Node(busy)
	if n == nil || n.TerminationReason != domain.ReasonHighTransactionVolume {
		t.Fatalf("busy node = %+v", n)
	}
	if !n.ManualExplorationReady {
		t.Fatal("high-volume endpoint must stay open for manual follow-up")
	}

	n, _ = g.Node(quiet)
	if n == nil || n.TerminationReason != domain.ReasonNoSignificantTx {
		t.Fatalf("quiet node = %+v", n)
	}
	if n.ManualExplorationReady {
		t.Fatal("dead end with no significant activity must not be flagged for follow-up")
	}
}

func TestBuildConsolidationThirdEdge(t *testing.T) {
	parents := []string{
		"0x5555555555555555555555555555555555555551",
		"0x5555555555555555555555555555555555555552",
		"0x5555555555555555555555555555555555555553",
	}
	sink := "0x6666666666666666666666666666666666666666"
	leaf := "0x7777777777777777777777777777777777777777"

	client := stub.NewClient()
	for i, p := range parents {
		client.Add(hackerAddr, buildTx(fmt.Sprintf("0xaa%d", i), hackerAddr, p, 10, int64(5+i)))
		client.Add(p, buildTx(fmt.Sprintf("0xbb%d", i), p, sink, 5, int64(10+i)))
	}
	client.Add(sink, buildTx("0xcc1", sink, leaf, 4, 20))

	b := newBuilder(client)
	g, _, err := b.Build(context.Background(), testIncident(35))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n, _ := g.Node(sink)
	if n == nil || n.EntityType != domain.EntityConsolidationPoint {
		t.Fatalf("sink node = %+v", n)
	}
	if n.ConfidenceScore < 70 {
		t.Fatalf("sink confidence = %v, want >= 70", n.ConfidenceScore)
	}

	// The edge that brings the reuse count to three carries the mark;
	// the two earlier ones keep their own reasons.
	var reasons []string
	for _, e := range g.Edges() {
		if e.ToAddress == sink {
			reasons = append(reasons, e.FilterReason)
		}
	}
	if len(reasons) != 3 {
		t.Fatalf("edges into sink = %d, want 3", len(reasons))
	}
	if reasons[0] == domain.FilterConsolidation || reasons[1] == domain.FilterConsolidation {
		t.Fatalf("early edge marked as consolidation: %v", reasons)
	}
	if reasons[2] != domain.FilterConsolidation {
		t.Fatalf("third edge reason = %q, want %q", reasons[2], domain.FilterConsolidation)
	}
}

func TestBuildSharedChildFetchedOnce(t *testing.T) {
	a := "0x5555555555555555555555555555555555555551"
	bAddr := "0x5555555555555555555555555555555555555552"
	shared := "0x6666666666666666666666666666666666666666"

	client := stub.NewClient()
	client.Add(hackerAddr,
		buildTx("0xaa1", hackerAddr, a, 10, 5),
		buildTx("0xaa2", hackerAddr, bAddr, 10, 6),
	)
	client.Add(a, buildTx("0xbb1", a, shared, 5, 10))
	client.Add(bAddr, buildTx("0xbb2", bAddr, shared, 5, 11))

	b := newBuilder(client)
	_, stats, err := b.Build(context.Background(), testIncident(25))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// hacker, a, b and the shared child: one fetch each, even though the
	// child sits in the queue twice.
	if stats.APICallsUsed != 4 {
		t.Fatalf("APICallsUsed = %d, want 4", stats.APICallsUsed)
	}
	if stats.NodesProcessed != 4 {
		t.Fatalf("NodesProcessed = %d, want 4", stats.NodesProcessed)
	}
}
