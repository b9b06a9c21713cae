package metrics

import (
	"sort"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// SellerTax totals the tax one account paid.
type SellerTax struct {
	Seller domain.Address
	Events int
	Gross  *uint256.Int
	Tax    *uint256.Int
}

// AggregateBySeller groups tax events by seller, largest tax first with
// ties broken by address.
func AggregateBySeller(events []*domain.TaxEvent) []SellerTax {
	bySeller := make(map[domain.Address]*SellerTax)
	for _, e := range events {
		agg, ok := bySeller[e.Seller]
		if !ok {
			agg = &SellerTax{Seller: e.Seller, Gross: new(uint256.Int), Tax: new(uint256.Int)}
			bySeller[e.Seller] = agg
		}
		agg.Events++
		agg.Gross.Add(agg.Gross, domain.ZeroIfNil(e.Gross))
		agg.Tax.Add(agg.Tax, domain.ZeroIfNil(e.Tax))
	}

	out := make([]SellerTax, 0, len(bySeller))
	for _, agg := range bySeller {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Tax.Eq(out[j].Tax) {
			return out[i].Tax.Gt(out[j].Tax)
		}
		return out[i].Seller.Less(out[j].Seller)
	})
	return out
}
