package reflection

import (
	"sort"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// Capture merges real and reflection balances into one state. Accounts
// present on either side are listed. Callers must not mutate l
// concurrently if they need the two sides to agree.
func Capture(l *ledger.Ledger, t *Tracker) domain.State {
	balances := l.Balances()
	var refl map[domain.Address]*uint256.Int
	dust := new(uint256.Int)
	if t != nil {
		refl = t.Balances()
		dust = t.Dust()
	}

	seen := make(map[domain.Address]bool, len(balances)+len(refl))
	holders := make([]domain.Holder, 0, len(balances)+len(refl))
	add := func(a domain.Address) {
		if seen[a] {
			return
		}
		seen[a] = true
		holders = append(holders, domain.Holder{
			Address:    a,
			Balance:    domain.ZeroIfNil(balances[a]).Clone(),
			Reflection: domain.ZeroIfNil(refl[a]).Clone(),
		})
	}
	for a := range balances {
		add(a)
	}
	for a := range refl {
		add(a)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Address.Less(holders[j].Address) })

	return domain.State{
		Supply:       l.TotalSupply(),
		TaxCollected: l.TaxCollected(),
		Dust:         dust,
		Launch:       l.LaunchState(),
		Pairs:        l.Pairs(),
		Holders:      holders,
	}
}
