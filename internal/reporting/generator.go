package reporting

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/metrics"
	"reflection-token-lab/internal/replay"
	"reflection-token-lab/internal/storage"
)

// Generator produces reports from a state snapshot and stored data.
type Generator struct {
	operations storage.OperationStore
	taxEvents  storage.TaxEventStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. taxEvents may be nil, in
// which case tax rows are derived from the journal.
func NewGenerator(operations storage.OperationStore, taxEvents storage.TaxEventStore) *Generator {
	return &Generator{
		operations: operations,
		taxEvents:  taxEvents,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for state under cfg.
func (g *Generator) Generate(ctx context.Context, cfg ledger.Config, state domain.State) (*Report, error) {
	ops, err := g.operations.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	units := func(v *uint256.Int) string { return domain.FormatUnits(domain.ZeroIfNil(v), cfg.Decimals) }

	r := &Report{
		GeneratedAt: g.now(),
		Token: TokenSummary{
			Name:        cfg.Name,
			Symbol:      cfg.Symbol,
			Decimals:    cfg.Decimals,
			TotalSupply: units(state.Supply),
			Owner:       cfg.Owner.String(),
			Address:     cfg.Self.String(),
			SellTax:     cfg.SellTaxPercent,
			BuyTax:      cfg.BuyTaxPercent,
		},
		Launch: LaunchSummary{
			Launched:        state.Launch.Launched,
			LaunchedAtMs:    state.Launch.LaunchedAtMs,
			AntiSnipeWindow: cfg.AntiSnipeWindow,
		},
	}

	pairs := make(map[domain.Address]bool, len(state.Pairs))
	for _, p := range state.Pairs {
		pairs[p] = true
		r.Launch.Pairs = append(r.Launch.Pairs, p.String())
	}

	r.Activity = summarizeActivity(ops)
	r.Activity.TaxCollected = units(state.TaxCollected)
	r.Activity.Dust = units(state.Dust)

	var distributed *uint256.Int
	r.Holders, distributed = holderRows(state.Holders, pairs, units)
	r.Activity.Distributed = units(distributed)

	exclude := map[domain.Address]bool{cfg.Self: true}
	for p := range pairs {
		exclude[p] = true
	}
	r.Distribution = DistributionSection(metrics.ComputeDistribution(state.Holders, exclude, state.Supply, cfg.Decimals))

	events, err := g.loadTaxEvents(ctx, ops)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		r.TaxEvents = append(r.TaxEvents, TaxEventRow{
			Seq:         e.Seq,
			Seller:      e.Seller.String(),
			Pair:        e.Pair.String(),
			Gross:       units(e.Gross),
			Tax:         units(e.Tax),
			TimestampMs: e.TimestampMs,
		})
	}
	for _, t := range metrics.AggregateBySeller(events) {
		r.TaxPayers = append(r.TaxPayers, TaxPayerRow{
			Seller: t.Seller.String(),
			Events: t.Events,
			Gross:  units(t.Gross),
			Tax:    units(t.Tax),
		})
	}

	return r, nil
}

// AddVerification attaches a replay report.
func (r *Report) AddVerification(v *replay.Report) {
	if v == nil {
		return
	}
	section := &VerificationSection{
		Match:   v.Match,
		Applied: v.Applied,
		LastSeq: v.LastSeq,
	}
	for _, d := range v.Divergences {
		section.Divergences = append(section.Divergences, DivergenceRow{
			Field:    d.Field,
			Expected: d.Expected,
			Actual:   d.Actual,
		})
	}
	r.Verification = section
}

func summarizeActivity(ops []*domain.Operation) ActivitySummary {
	var a ActivitySummary
	a.Operations = len(ops)
	for i, op := range ops {
		if i == 0 || op.TimestampMs < a.FirstMs {
			a.FirstMs = op.TimestampMs
		}
		if op.TimestampMs > a.LastMs {
			a.LastMs = op.TimestampMs
		}
		if op.Kind != domain.OperationTransfer {
			continue
		}
		a.Transfers++
		if op.Tax != nil && !op.Tax.IsZero() {
			a.TaxedTransfers++
		}
	}
	return a
}

// holderRows also returns the total reward paid out, i.e. the sum of
// reflection above real balance over non-pair holders.
func holderRows(
	holders []domain.Holder,
	pairs map[domain.Address]bool,
	units func(*uint256.Int) string,
) ([]HolderRow, *uint256.Int) {
	sorted := make([]domain.Holder, len(holders))
	copy(sorted, holders)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := domain.ZeroIfNil(sorted[i].Balance), domain.ZeroIfNil(sorted[j].Balance)
		if !bi.Eq(bj) {
			return bi.Gt(bj)
		}
		return sorted[i].Address.Less(sorted[j].Address)
	})

	distributed := new(uint256.Int)
	rows := make([]HolderRow, 0, len(sorted))
	for _, h := range sorted {
		bal, refl := domain.ZeroIfNil(h.Balance), domain.ZeroIfNil(h.Reflection)
		reward := new(uint256.Int)
		if refl.Gt(bal) && !pairs[h.Address] {
			reward.Sub(refl, bal)
			distributed.Add(distributed, reward)
		}
		rows = append(rows, HolderRow{
			Address:    h.Address.String(),
			Balance:    units(bal),
			Reflection: units(refl),
			Reward:     units(reward),
			Pair:       pairs[h.Address],
		})
	}
	return rows, distributed
}

func (g *Generator) loadTaxEvents(ctx context.Context, ops []*domain.Operation) ([]*domain.TaxEvent, error) {
	var events []*domain.TaxEvent
	if g.taxEvents != nil {
		var err error
		events, err = g.taxEvents.GetByTimeRange(ctx, 0, math.MaxInt64)
		if err != nil {
			return nil, err
		}
	} else {
		events = taxEventsFromJournal(ops)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// taxEventsFromJournal derives tax rows when no analytics store is
// configured. Pair flags are tracked from set_pair entries.
func taxEventsFromJournal(ops []*domain.Operation) []*domain.TaxEvent {
	pairs := make(map[domain.Address]bool)
	var out []*domain.TaxEvent
	for _, op := range ops {
		switch op.Kind {
		case domain.OperationSetPair:
			pairs[op.To] = op.Flag
		case domain.OperationTransfer:
			if op.Tax == nil || op.Tax.IsZero() {
				continue
			}
			seller, pair := op.From, op.To
			if pairs[op.From] && !pairs[op.To] {
				seller, pair = op.To, op.From
			}
			out = append(out, &domain.TaxEvent{
				OperationID: op.OperationID,
				Seq:         op.Seq,
				Seller:      seller,
				Pair:        pair,
				Gross:       op.Amount,
				Tax:         op.Tax,
				TimestampMs: op.TimestampMs,
			})
		}
	}
	return out
}
