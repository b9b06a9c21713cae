package main

import (
	"context"
	"fmt"
	"time"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/reflection"
	"reflection-token-lab/internal/replay"
	"reflection-token-lab/internal/storage"
)

type restoredLedger struct {
	ledger  *ledger.Ledger
	tracker *reflection.Tracker
	applied int
}

// restore replays the journal onto a fresh ledger whose clock follows the
// journaled timestamps and then switches to wall time.
func restore(ctx context.Context, ops storage.OperationStore, cfg ledger.Config, router domain.Address) (*restoredLedger, error) {
	clk := clock.NewHandover(time.UnixMilli(0))
	engine, err := replay.NewLedgerEngine(cfg, router, clk)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	applied, err := replay.NewRunner(ops).RunAll(ctx, engine)
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	clk.GoLive()

	return &restoredLedger{
		ledger:  engine.Ledger(),
		tracker: engine.Tracker(),
		applied: applied,
	}, nil
}
