package replay

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// FieldDivergence represents a mismatch between live and replayed values.
type FieldDivergence struct {
	Field    string // e.g. "supply" or "balance[<addr>]"
	Expected string // live value
	Actual   string // replayed value
}

// Report is the result of verifying a live state against its journal.
type Report struct {
	Match       bool
	Applied     int
	LastSeq     int64
	Divergences []FieldDivergence
	Replayed    domain.State
}

// Verify replays the whole journal on a fresh ledger built from cfg and
// compares the result with live.
func (r *Runner) Verify(ctx context.Context, cfg ledger.Config, router domain.Address, live domain.State) (*Report, error) {
	engine, err := NewLedgerEngine(cfg, router, nil)
	if err != nil {
		return nil, err
	}
	applied, err := r.RunAll(ctx, engine)
	if err != nil {
		return nil, err
	}

	replayed := engine.State()
	divergences := CompareStates(live, replayed)
	return &Report{
		Match:       len(divergences) == 0,
		Applied:     applied,
		LastSeq:     engine.LastSeq(),
		Divergences: divergences,
		Replayed:    replayed,
	}, nil
}

// CompareStates compares two states and returns divergences.
func CompareStates(expected, actual domain.State) []FieldDivergence {
	var d []FieldDivergence

	cmpAmount := func(field string, e, a *uint256.Int) {
		e, a = domain.ZeroIfNil(e), domain.ZeroIfNil(a)
		if !e.Eq(a) {
			d = append(d, FieldDivergence{Field: field, Expected: e.Dec(), Actual: a.Dec()})
		}
	}

	if expected.LastSeq != actual.LastSeq {
		d = append(d, FieldDivergence{
			Field:    "last_seq",
			Expected: fmt.Sprint(expected.LastSeq),
			Actual:   fmt.Sprint(actual.LastSeq),
		})
	}
	cmpAmount("supply", expected.Supply, actual.Supply)
	cmpAmount("tax_collected", expected.TaxCollected, actual.TaxCollected)
	cmpAmount("dust", expected.Dust, actual.Dust)

	if expected.Launch != actual.Launch {
		d = append(d, FieldDivergence{
			Field:    "launch",
			Expected: fmt.Sprintf("%t@%d", expected.Launch.Launched, expected.Launch.LaunchedAtMs),
			Actual:   fmt.Sprintf("%t@%d", actual.Launch.Launched, actual.Launch.LaunchedAtMs),
		})
	}

	if fmt.Sprint(expected.Pairs) != fmt.Sprint(actual.Pairs) {
		d = append(d, FieldDivergence{
			Field:    "pairs",
			Expected: fmt.Sprint(expected.Pairs),
			Actual:   fmt.Sprint(actual.Pairs),
		})
	}

	// Holders are sorted; walk both lists like a merge
	i, j := 0, 0
	for i < len(expected.Holders) || j < len(actual.Holders) {
		var e, a domain.Holder
		switch {
		case j >= len(actual.Holders) || (i < len(expected.Holders) && expected.Holders[i].Address.Less(actual.Holders[j].Address)):
			e = expected.Holders[i]
			a = domain.Holder{Address: e.Address}
			i++
		case i >= len(expected.Holders) || actual.Holders[j].Address.Less(expected.Holders[i].Address):
			a = actual.Holders[j]
			e = domain.Holder{Address: a.Address}
			j++
		default:
			e, a = expected.Holders[i], actual.Holders[j]
			i++
			j++
		}
		cmpAmount("balance["+e.Address.String()+"]", e.Balance, a.Balance)
		cmpAmount("reflection["+e.Address.String()+"]", e.Reflection, a.Reflection)
	}

	return d
}
