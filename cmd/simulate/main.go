// Package main runs the launch-day scenario against an in-memory ledger on
// a manual clock and prints the resulting report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/config"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/idhash"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/reflection"
	"reflection-token-lab/internal/replay"
	"reflection-token-lab/internal/reporting"
	"reflection-token-lab/internal/service"
	"reflection-token-lab/internal/simulation"
	"reflection-token-lab/internal/storage/memory"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	start := flag.String("start", "2024-01-15T12:00:00Z", "Scenario start time (RFC3339)")
	quote := flag.String("quote-seed", "WBNB", "Seed of the quote token the pair trades against")
	outputDir := flag.String("output-dir", "", "Write REPORT.md and HOLDERS.csv here instead of printing")
	verbose := flag.Bool("verbose", false, "Log every step")
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		logger.Fatalf("parse start: %v", err)
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Fatalf("ledger config: %v", err)
	}
	router, err := cfg.RouterAddress()
	if err != nil {
		logger.Fatalf("router address: %v", err)
	}

	pair, bump, err := idhash.DerivePairAddress(ledgerCfg.Self, domain.AddressFromSeed(*quote), router)
	if err != nil {
		logger.Fatalf("derive pair: %v", err)
	}
	logger.Printf("Pair %s (bump %d)", pair, bump)

	accounts := simulation.Accounts{
		Owner: ledgerCfg.Owner,
		Holders: []domain.Address{
			domain.AddressFromSeed("holder-1"),
			domain.AddressFromSeed("holder-2"),
			domain.AddressFromSeed("holder-3"),
		},
		Pair: pair,
	}

	ctx := context.Background()
	clk := clock.NewManual(startTime)
	l, err := ledger.New(ledgerCfg, clk)
	if err != nil {
		logger.Fatalf("create ledger: %v", err)
	}

	ops := memory.NewOperationStore()
	taxEvents := memory.NewTaxEventStore()
	svc, err := service.New(ctx, service.Options{
		Ledger:     l,
		Tracker:    reflection.New(ledgerCfg.Self, router),
		Operations: ops,
		TaxEvents:  taxEvents,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("create service: %v", err)
	}

	runner := simulation.NewRunner(simulation.RunnerOptions{Service: svc, Clock: clk})
	outcomes, err := runner.Run(ctx, simulation.LaunchScenario(accounts, ledgerCfg.Decimals))
	if *verbose {
		for _, o := range outcomes {
			logOutcome(logger, o, ledgerCfg.Decimals)
		}
	}
	if err != nil {
		logger.Fatalf("scenario failed: %v", err)
	}

	// Generate report with deterministic timestamp
	state := svc.State()
	report, err := reporting.NewGenerator(ops, taxEvents).
		WithClock(func() time.Time { return startTime }).
		Generate(ctx, ledgerCfg, state)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}

	verification, err := replay.NewRunner(ops).Verify(ctx, ledgerCfg, router, state)
	if err != nil {
		logger.Fatalf("verify: %v", err)
	}
	report.AddVerification(verification)

	md := reporting.RenderMarkdown(report)
	if *outputDir == "" {
		fmt.Print(md)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}
	files := map[string]string{
		"REPORT.md":   md,
		"HOLDERS.csv": reporting.RenderCSV(report.Holders),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(content), 0o644); err != nil {
			logger.Fatalf("write %s: %v", name, err)
		}
	}

	fmt.Println("Simulation report generated successfully:")
	fmt.Printf("  - %s/REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/HOLDERS.csv\n", *outputDir)
}

func logOutcome(logger *log.Logger, o simulation.Outcome, decimals uint8) {
	at := o.At.UTC().Format(time.RFC3339)
	switch {
	case o.Step.Kind == simulation.StepAdvance:
		logger.Printf("[%s] advance %v", at, o.Step.Advance)
	case o.Err != nil:
		logger.Printf("[%s] %s rejected: %v", at, o.Step.Kind, o.Err)
	case o.Operation.Kind == domain.OperationTransfer:
		logger.Printf("[%s] seq=%d transfer %s -> %s gross=%s tax=%s", at, o.Operation.Seq,
			o.Operation.From, o.Operation.To,
			domain.FormatUnits(o.Operation.Amount, decimals), domain.FormatUnits(o.Operation.Tax, decimals))
	default:
		logger.Printf("[%s] seq=%d %s", at, o.Operation.Seq, o.Operation.Kind)
	}
}
