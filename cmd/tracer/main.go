// Package main traces a theft incident into a transaction flow graph.
// Runs one incident end to end: seed → traversal → optimization →
// persistence, then prints the job summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eth-trace-lab/internal/chaindata"
	"eth-trace-lab/internal/chaindata/stub"
	"eth-trace-lab/internal/domain"
	"eth-trace-lab/internal/jobs"
	"eth-trace-lab/internal/storage/clickhouse"
	"eth-trace-lab/internal/storage/memory"
	"eth-trace-lab/internal/storage/migrations"
	"eth-trace-lab/internal/storage/postgres"
)

func main() {
	// Optional .env for local runs; flags and real env still win.
	_ = godotenv.Load()

	incidentID := flag.String("incident-id", "demo-incident", "Incident identifier")
	victim := flag.String("victim", "", "Victim wallet address")
	hackTx := flag.String("hack-tx", "", "Hash of the hack transaction")
	hackTo := flag.String("hack-to", "", "First address the stolen funds landed on")
	stolenEth := flag.Float64("stolen-eth", 0, "Total stolen amount in ETH")
	seedBlock := flag.Int64("seed-block", 0, "Block number of the hack transaction")

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN; empty uses in-memory stores")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for flow analytics; empty uses in-memory")
	etherscanKey := flag.String("etherscan-key", os.Getenv("ETHERSCAN_API_KEY"), "Etherscan API key")
	etherscanURL := flag.String("etherscan-url", "", "Etherscan API base URL override")

	fixture := flag.Bool("fixture", false, "Run against built-in fixture data instead of the live API")
	maxDepth := flag.Int("max-depth", 0, "Traversal depth limit override")
	maxAPICalls := flag.Int("max-api-calls", 0, "API call budget override")
	timeout := flag.Duration("timeout", 0, "Wall-clock budget override")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling...\n", sig)
		cancel()
	}()

	stores, cleanup, err := buildStores(ctx, *postgresDSN, *clickhouseDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Storage setup error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var client chaindata.Client
	incident := &domain.Incident{
		ID:              *incidentID,
		VictimAddress:   *victim,
		HackTxHash:      *hackTx,
		HackToAddress:   *hackTo,
		StolenAmountEth: *stolenEth,
		SeedBlockNumber: *seedBlock,
	}
	if *fixture {
		client, incident = fixtureRun(*incidentID)
	} else {
		if *victim == "" || *hackTx == "" || *hackTo == "" || *stolenEth <= 0 {
			fmt.Fprintln(os.Stderr, "Required: -victim, -hack-tx, -hack-to, -stolen-eth (or -fixture)")
			os.Exit(1)
		}
		client = chaindata.NewEtherscanClient(*etherscanURL, *etherscanKey,
			chaindata.WithCache(chaindata.NewCache(chaindata.DefaultCacheTTL)))
	}

	if err := stores.Incidents.Insert(ctx, incident); err != nil {
		fmt.Fprintf(os.Stderr, "Insert incident error: %v\n", err)
		os.Exit(1)
	}

	manager := jobs.NewManager(stores, client, jobs.WithVerbose(*verbose))
	jobID, err := manager.StartProcessing(ctx, incident.ID, jobs.Options{
		MaxDepth:    *maxDepth,
		MaxAPICalls: *maxAPICalls,
		Timeout:     *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Start processing error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Trace job %s (incident %s) ===\n", jobID, incident.ID)
	manager.Wait()

	job, err := manager.GetJobStatus(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Job status error: %v\n", err)
		os.Exit(1)
	}
	printSummary(job)
	if job.Status != domain.JobCompleted {
		os.Exit(1)
	}
}

// buildStores wires the persistence layer: PostgreSQL plus ClickHouse when
// DSNs are given, in-memory otherwise.
func buildStores(ctx context.Context, postgresDSN, clickhouseDSN string) (jobs.Stores, func(), error) {
	stores := jobs.Stores{
		Incidents: memory.NewIncidentStore(),
		Nodes:     memory.NewNodeStore(),
		Edges:     memory.NewEdgeStore(),
		Jobs:      memory.NewGraphJobStore(),
		Flows:     memory.NewFlowStore(),
	}
	cleanup := func() {}

	if postgresDSN != "" {
		pool, err := postgres.NewPool(ctx, postgresDSN)
		if err != nil {
			return stores, cleanup, fmt.Errorf("postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return stores, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Incidents = postgres.NewIncidentStore(pool)
		stores.Nodes = postgres.NewNodeStore(pool)
		stores.Edges = postgres.NewEdgeStore(pool)
		stores.Jobs = postgres.NewGraphJobStore(pool)
		cleanup = pool.Close
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return stores, func() {}, fmt.Errorf("clickhouse: %w", err)
		}
		stores.Flows = clickhouse.NewFlowStore(conn)
		prev := cleanup
		cleanup = func() {
			_ = conn.Close()
			prev()
		}
	}
	return stores, cleanup, nil
}

// fixtureRun seeds a small deterministic trace: the hacker splits the
// funds, one branch cashes out at a known exchange, one goes cold.
func fixtureRun(incidentID string) (chaindata.Client, *domain.Incident) {
	const (
		victim  = "0x1111111111111111111111111111111111111111"
		hacker  = "0x2222222222222222222222222222222222222222"
		mule    = "0x3333333333333333333333333333333333333333"
		cold    = "0x4444444444444444444444444444444444444444"
		binance = "0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be"
	)
	base := time.Now().Add(-24 * time.Hour).Unix()
	block := int64(18_000_000)

	client := stub.NewClient()
	client.Add(hacker,
		fixtureTx("0xf1", hacker, mule, 60, block+5, base+60),
		fixtureTx("0xf2", hacker, cold, 20, block+8, base+100),
	)
	client.Add(mule,
		fixtureTx("0xf3", mule, binance, 55, block+40, base+600),
	)

	incident := &domain.Incident{
		ID:              incidentID,
		VictimAddress:   victim,
		HackTxHash:      "0xf0",
		HackToAddress:   hacker,
		StolenAmountEth: 85,
		SeedBlockNumber: block,
	}
	return client, incident
}

func fixtureTx(hash, from, to string, valueEth float64, block, ts int64) domain.Transaction {
	return domain.Transaction{
		Hash:        hash,
		From:        from,
		To:          to,
		ValueWei:    fmt.Sprintf("%.0f", valueEth*1e18),
		ValueEth:    valueEth,
		BlockNumber: block,
		Timestamp:   ts,
		GasUsed:     21000,
		GasPrice:    30_000_000_000,
	}
}

func printSummary(job *domain.GraphJob) {
	fmt.Printf("Status: %s\n", job.Status)
	if job.ErrorCode != "" {
		fmt.Printf("Error: %s (%s)\n", job.ErrorCode, job.ErrorMessage)
	}
	fmt.Printf("  Nodes: %d\n", job.TotalNodes)
	fmt.Printf("  Edges: %d\n", job.TotalEdges)
	fmt.Printf("  Max depth: %d\n", job.MaxDepth)
	fmt.Printf("  Value traced: %.4f ETH\n", job.TotalValueTraced)
	fmt.Printf("  API calls: %d\n", job.APICallsUsed)
	fmt.Printf("  Processing time: %dms\n", job.ProcessingTimeMs)

	if len(job.EndpointSummary) > 0 {
		fmt.Println("  Endpoints:")
		for entity, count := range job.EndpointSummary {
			fmt.Printf("    %-22s %d\n", entity, count)
		}
	}
	if len(job.TopPaths) > 0 {
		fmt.Println("  Top paths:")
		for _, p := range job.TopPaths {
			fmt.Printf("    #%d %.4f ETH (%.1f%%) %d hops -> %s (confidence %.0f, score %.2f)\n",
				p.PathID, p.ValueEth, p.ValuePercentage, p.HopCount,
				p.EndpointType, p.EndpointConfidence, p.Score)
		}
	}
}
