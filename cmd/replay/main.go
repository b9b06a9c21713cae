// Package main replays the operations journal onto a fresh ledger and
// checks the result for internal consistency.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reflection-token-lab/internal/config"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/replay"
	"reflection-token-lab/internal/reporting"
	"reflection-token-lab/internal/storage"
	chstore "reflection-token-lab/internal/storage/clickhouse"
	"reflection-token-lab/internal/storage/memory"
	pgstore "reflection-token-lab/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (optional, cross-checks tax)")
	toSeq := flag.Int64("to-seq", 0, "Replay up to this seq (0 = whole journal)")
	useMemory := flag.Bool("use-memory", false, "Use an empty in-memory journal")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	markdown := flag.Bool("markdown", false, "Print a Markdown report instead of the summary")
	verbose := flag.Bool("verbose", false, "Log every replayed operation")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for an empty journal)")
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Fatalf("ledger config: %v", err)
	}
	router, err := cfg.RouterAddress()
	if err != nil {
		logger.Fatalf("router address: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	var ops storage.OperationStore = memory.NewOperationStore()
	var taxEvents storage.TaxEventStore
	if !*useMemory {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		ops = pgstore.NewOperationStore(pool)

		if *clickhouseDSN != "" {
			conn, err := chstore.NewConn(ctx, *clickhouseDSN)
			if err != nil {
				logger.Fatalf("connect to clickhouse: %v", err)
			}
			defer conn.Close()
			taxEvents = chstore.NewTaxEventStore(conn)
		}
	}

	engine, err := replay.NewLedgerEngine(ledgerCfg, router, nil)
	if err != nil {
		logger.Fatalf("create engine: %v", err)
	}
	logging := &loggingEngine{next: engine, verbose: *verbose && !*outputJSON, stats: ReplayStats{ByKind: map[string]int{}}}

	runner := replay.NewRunner(ops)
	if *toSeq > 0 {
		logger.Printf("Replaying journal up to seq %d", *toSeq)
		_, err = runner.Run(ctx, 1, *toSeq, logging)
	} else {
		logger.Println("Replaying whole journal")
		_, err = runner.RunAll(ctx, logging)
	}
	if err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	state := engine.State()
	result, err := check(ctx, ops, taxEvents, state)
	if err != nil {
		logger.Fatalf("check failed: %v", err)
	}

	stats := logging.stats
	stats.LastSeq = engine.LastSeq()
	stats.Consistent = result.Match
	stats.Problems = result.Divergences

	switch {
	case *outputJSON:
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
	case *markdown:
		report, err := reporting.NewGenerator(ops, taxEvents).Generate(ctx, ledgerCfg, state)
		if err != nil {
			logger.Fatalf("generate report: %v", err)
		}
		report.AddVerification(result)
		fmt.Print(reporting.RenderMarkdown(report))
	default:
		printSummary(stats)
	}

	if !result.Match {
		os.Exit(2)
	}
}

// check runs the integrity checks on the replayed state. When a tax event
// store is configured its total must equal the replayed tax.
func check(ctx context.Context, ops storage.OperationStore, taxEvents storage.TaxEventStore, state domain.State) (*replay.Report, error) {
	all, err := ops.GetRange(ctx, 1, state.LastSeq)
	if err != nil {
		return nil, err
	}

	var problems []replay.FieldDivergence
	problems = append(problems, replay.CheckOperationIDs(all)...)
	problems = append(problems, replay.CheckConservation(state)...)

	if taxEvents != nil {
		total, err := taxEvents.TotalTax(ctx)
		if err != nil {
			return nil, fmt.Errorf("total tax: %w", err)
		}
		if !total.Eq(domain.ZeroIfNil(state.TaxCollected)) {
			problems = append(problems, replay.FieldDivergence{
				Field:    "tax_events.total",
				Expected: domain.ZeroIfNil(state.TaxCollected).Dec(),
				Actual:   total.Dec(),
			})
		}
	}

	return &replay.Report{
		Match:       len(problems) == 0,
		Applied:     len(all),
		LastSeq:     state.LastSeq,
		Divergences: problems,
		Replayed:    state,
	}, nil
}

func printSummary(stats ReplayStats) {
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Total Operations:  %d\n", stats.TotalOperations)
	for _, kind := range []domain.OperationKind{
		domain.OperationTransfer, domain.OperationLaunch, domain.OperationSetPair, domain.OperationSetExempt,
	} {
		fmt.Printf("  %-16s %d\n", string(kind)+":", stats.ByKind[string(kind)])
	}
	fmt.Printf("Last Seq:          %d\n", stats.LastSeq)
	if stats.TotalOperations > 0 {
		fmt.Printf("First Operation:   %s\n", time.UnixMilli(stats.FirstMs).UTC().Format(time.RFC3339))
		fmt.Printf("Last Operation:    %s\n", time.UnixMilli(stats.LastMs).UTC().Format(time.RFC3339))
	} else {
		fmt.Printf("First Operation:   N/A\n")
		fmt.Printf("Last Operation:    N/A\n")
	}
	if stats.Consistent {
		fmt.Printf("Consistency:       OK\n")
		return
	}
	fmt.Printf("Consistency:       FAILED\n")
	for _, p := range stats.Problems {
		fmt.Printf("  %s: expected %s, got %s\n", p.Field, p.Expected, p.Actual)
	}
}

// ReplayStats holds replay statistics.
type ReplayStats struct {
	TotalOperations int                      `json:"total_operations"`
	ByKind          map[string]int           `json:"by_kind"`
	FirstMs         int64                    `json:"first_ms"`
	LastMs          int64                    `json:"last_ms"`
	LastSeq         int64                    `json:"last_seq"`
	Consistent      bool                     `json:"consistent"`
	Problems        []replay.FieldDivergence `json:"problems,omitempty"`
}

// loggingEngine counts and optionally prints operations before passing
// them on.
type loggingEngine struct {
	next    *replay.LedgerEngine
	verbose bool
	stats   ReplayStats
}

func (e *loggingEngine) LastSeq() int64 { return e.next.LastSeq() }

func (e *loggingEngine) OnOperation(ctx context.Context, op *domain.Operation) error {
	if err := e.next.OnOperation(ctx, op); err != nil {
		return err
	}

	e.stats.TotalOperations++
	e.stats.ByKind[string(op.Kind)]++
	if e.stats.TotalOperations == 1 || op.TimestampMs < e.stats.FirstMs {
		e.stats.FirstMs = op.TimestampMs
	}
	if op.TimestampMs > e.stats.LastMs {
		e.stats.LastMs = op.TimestampMs
	}

	if e.verbose {
		fmt.Printf("[%s] seq=%d kind=%s from=%s to=%s amount=%s tax=%s\n",
			time.UnixMilli(op.TimestampMs).UTC().Format(time.RFC3339Nano),
			op.Seq, op.Kind, op.From, op.To,
			domain.ZeroIfNil(op.Amount).Dec(), domain.ZeroIfNil(op.Tax).Dec(),
		)
	}
	return nil
}

// Ensure loggingEngine implements replay.Engine
var _ replay.Engine = (*loggingEngine)(nil)
