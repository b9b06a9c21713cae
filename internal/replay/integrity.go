package replay

import (
	"fmt"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/idhash"
)

// CheckOperationIDs recomputes the id of every journal entry.
func CheckOperationIDs(ops []*domain.Operation) []FieldDivergence {
	var d []FieldDivergence
	for _, op := range ops {
		if want := idhash.OperationIDOf(op); op.OperationID != want {
			d = append(d, FieldDivergence{
				Field:    fmt.Sprintf("operation_id[%d]", op.Seq),
				Expected: want,
				Actual:   op.OperationID,
			})
		}
	}
	return d
}

// CheckConservation checks that real balances sum to the supply and that
// reflection balances plus dust do too.
func CheckConservation(s domain.State) []FieldDivergence {
	balances := new(uint256.Int)
	reflections := new(uint256.Int).Set(domain.ZeroIfNil(s.Dust))
	for _, h := range s.Holders {
		balances.Add(balances, domain.ZeroIfNil(h.Balance))
		reflections.Add(reflections, domain.ZeroIfNil(h.Reflection))
	}

	supply := domain.ZeroIfNil(s.Supply)
	var d []FieldDivergence
	if !balances.Eq(supply) {
		d = append(d, FieldDivergence{Field: "sum(balance)", Expected: supply.Dec(), Actual: balances.Dec()})
	}
	if !reflections.Eq(supply) {
		d = append(d, FieldDivergence{Field: "sum(reflection)+dust", Expected: supply.Dec(), Actual: reflections.Dec()})
	}
	return d
}
