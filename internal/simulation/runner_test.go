package simulation

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/reflection"
	"reflection-token-lab/internal/service"
	"reflection-token-lab/internal/storage/memory"
)

var accounts = Accounts{
	Owner: domain.AddressFromSeed("owner"),
	Holders: []domain.Address{
		domain.AddressFromSeed("addr1"),
		domain.AddressFromSeed("addr2"),
		domain.AddressFromSeed("addr3"),
	},
	Pair: domain.AddressFromSeed("pair"),
}

func newRunner(t *testing.T) (*Runner, *service.Service) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	l, err := ledger.New(ledger.DefaultConfig(accounts.Owner, domain.AddressFromSeed("token")), clk)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	svc, err := service.New(context.Background(), service.Options{
		Ledger:     l,
		Tracker:    reflection.New(l.Address(), domain.ZeroAddress),
		Operations: memory.NewOperationStore(),
		Metrics:    observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return NewRunner(RunnerOptions{Service: svc, Clock: clk}), svc
}

func units(s string) string {
	return domain.MustParseUnits(s, 18).Dec()
}

func TestRunner_LaunchScenario(t *testing.T) {
	runner, svc := newRunner(t)
	steps := LaunchScenario(accounts, 18)

	outcomes, err := runner.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outcomes) != len(steps) {
		t.Fatalf("expected %d outcomes, got %d", len(steps), len(outcomes))
	}

	l := svc.Ledger()
	h1, h2, h3 := accounts.Holders[0], accounts.Holders[1], accounts.Holders[2]

	if got := l.BalanceOf(h1).Dec(); got != units("890") {
		t.Errorf("h1 balance = %s, want 890 tokens", got)
	}
	if got := l.BalanceOf(h2).Dec(); got != units("1010") {
		t.Errorf("h2 balance = %s, want 1010 tokens", got)
	}
	// sale pays 5, buy of 50 pays 2.5
	if got := l.BalanceOf(accounts.Pair).Dec(); got != units("45") {
		t.Errorf("pair balance = %s, want 45 tokens", got)
	}
	if got := l.BalanceOf(h3).Dec(); got != units("147.5") {
		t.Errorf("h3 balance = %s, want 147.5 tokens", got)
	}
	if got := l.TaxCollected().Dec(); got != units("7.5") {
		t.Errorf("tax = %s, want 7.5 tokens", got)
	}

	// h2 never traded with the pair and earns from both taxed trades
	if !svc.Tracker().BalanceOf(h2).Gt(l.BalanceOf(h2)) {
		t.Error("h2 reflection should exceed its real balance")
	}

	// rejected steps are not journaled
	if svc.LastSeq() != 8 {
		t.Errorf("last seq = %d, want 8", svc.LastSeq())
	}
}

func TestRunner_OutcomeTimes(t *testing.T) {
	runner, _ := newRunner(t)
	outcomes, err := runner.Run(context.Background(), LaunchScenario(accounts, 18))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	first, last := outcomes[0].At, outcomes[len(outcomes)-1].At
	if last.Sub(first) != 10*time.Minute {
		t.Errorf("scenario spans %v, want 10m", last.Sub(first))
	}
	for _, o := range outcomes {
		if o.Err == nil && o.Step.Kind != StepAdvance && o.Operation == nil {
			t.Errorf("successful %s step has no operation", o.Step.Kind)
		}
		if o.Err != nil && o.Operation != nil {
			t.Errorf("failed %s step has an operation", o.Step.Kind)
		}
	}
}

func TestRunner_StopsOnUnexpectedResult(t *testing.T) {
	runner, svc := newRunner(t)
	h1 := accounts.Holders[0]

	steps := []Step{
		{Kind: StepTransfer, From: accounts.Owner, To: h1, Amount: domain.MustParseUnits("1", 18)},
		{Kind: StepLaunch, Caller: accounts.Owner, ExpectErr: ledger.ErrUnauthorized},
		{Kind: StepLaunch, Caller: accounts.Owner},
	}
	outcomes, err := runner.Run(context.Background(), steps)
	if !errors.Is(err, ErrUnexpectedResult) {
		t.Fatalf("expected ErrUnexpectedResult, got %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(outcomes))
	}
	// the unexpected launch still happened
	if !svc.Ledger().LaunchState().Launched {
		t.Error("expected ledger to be launched")
	}
}

func TestRunner_UnknownStep(t *testing.T) {
	runner, _ := newRunner(t)
	_, err := runner.Run(context.Background(), []Step{{Kind: "mint"}})
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}
