// Package reflection tracks reward balances that mirror real token holdings
// and grow for holders whenever transfer tax is collected.
//
// The tax itself stays physically with the token; here it is redistributed
// virtually, pro rata to each eligible holder's reflection balance, with
// floor division. The undistributable remainder is kept as dust, so at all
// times
//
//	sum(reflection balances) + dust == total supply
package reflection

import (
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// Tracker is the reward distributor. It implements ledger.Listener.
type Tracker struct {
	token  domain.Address
	router domain.Address

	mu          sync.RWMutex
	self        domain.Address
	supply      *uint256.Int
	balances    map[domain.Address]*uint256.Int
	excluded    map[domain.Address]bool
	dust        *uint256.Int
	distributed *uint256.Int
}

var _ ledger.Listener = (*Tracker)(nil)

// New creates a tracker for the given token. router is kept as configuration
// only; the tracker does not interact with it.
func New(token, router domain.Address) *Tracker {
	return &Tracker{
		token:       token,
		router:      router,
		self:        token,
		supply:      new(uint256.Int),
		balances:    make(map[domain.Address]*uint256.Int),
		excluded:    make(map[domain.Address]bool),
		dust:        new(uint256.Int),
		distributed: new(uint256.Int),
	}
}

// Token returns the token address the tracker was created for.
func (t *Tracker) Token() domain.Address { return t.token }

// Router returns the configured exchange router address.
func (t *Tracker) Router() domain.Address { return t.router }

// BalanceOf returns the reflection balance of addr.
func (t *Tracker) BalanceOf(addr domain.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[addr]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// TotalTracked returns the sum of all reflection balances.
func (t *Tracker) TotalTracked() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := new(uint256.Int)
	for _, b := range t.balances {
		total.Add(total, b)
	}
	return total
}

// Dust returns tax that could not be distributed because of rounding or
// because no eligible holder existed.
func (t *Tracker) Dust() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dust.Clone()
}

// Distributed returns the total tax credited to holders.
func (t *Tracker) Distributed() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.distributed.Clone()
}

// Supply returns the total supply seen at Sync.
func (t *Tracker) Supply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.Clone()
}

// IsExcluded reports whether addr is excluded from reward distribution.
func (t *Tracker) IsExcluded(addr domain.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.excluded[addr]
}

// Balances returns a copy of all non-zero reflection balances.
func (t *Tracker) Balances() map[domain.Address]*uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[domain.Address]*uint256.Int, len(t.balances))
	for a, b := range t.balances {
		out[a] = b.Clone()
	}
	return out
}

// Sync resets the tracker to mirror the given ledger state. Tax already held
// by the ledger's own address is counted as dust.
func (t *Tracker) Sync(s domain.LedgerSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.self = s.Self
	t.supply = domain.ZeroIfNil(s.Supply).Clone()
	t.balances = make(map[domain.Address]*uint256.Int, len(s.Balances))
	t.excluded = make(map[domain.Address]bool, len(s.Pairs))
	t.dust = new(uint256.Int)
	t.distributed = new(uint256.Int)

	for a, b := range s.Balances {
		if b == nil || b.IsZero() {
			continue
		}
		if a == s.Self {
			t.dust.Set(b)
			continue
		}
		t.balances[a] = b.Clone()
	}
	for _, p := range s.Pairs {
		t.excluded[p] = true
	}
}

// OnPairUpdated excludes pairs from reward distribution. Pair holdings are
// still mirrored.
func (t *Tracker) OnPairUpdated(addr domain.Address, isPair bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isPair {
		t.excluded[addr] = true
	} else {
		delete(t.excluded, addr)
	}
}

// OnTransfer mirrors a committed transfer:
//  1. the sender's reflection drops by the gross amount;
//  2. the receiver's reflection grows by the net amount;
//  3. any tax is spread over every other eligible holder.
func (t *Tracker) OnTransfer(r *domain.TransferResult) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	gross := domain.ZeroIfNil(r.Gross)
	net := domain.ZeroIfNil(r.Net)
	tax := domain.ZeroIfNil(r.Tax)

	if r.From != t.self {
		t.debitLocked(r.From, gross)
	}
	if r.To != t.self {
		t.creditLocked(r.To, net)
	}
	if !tax.IsZero() {
		t.distributeLocked(tax, r.From, r.To)
	}
}

// distributeLocked credits each eligible holder floor(tax * bal / eligible)
// and books the remainder as dust. Shares are computed from balances before
// any of them is credited.
func (t *Tracker) distributeLocked(tax *uint256.Int, from, to domain.Address) {
	holders := make([]domain.Address, 0, len(t.balances))
	eligible := new(uint256.Int)
	for a, b := range t.balances {
		if a == from || a == to || t.excluded[a] {
			continue
		}
		holders = append(holders, a)
		eligible.Add(eligible, b)
	}

	if eligible.IsZero() {
		t.dust.Add(t.dust, tax)
		return
	}

	shares := make([]*uint256.Int, len(holders))
	paid := new(uint256.Int)
	for i, a := range holders {
		share, _ := new(uint256.Int).MulDivOverflow(tax, t.balances[a], eligible)
		shares[i] = share
		paid.Add(paid, share)
	}
	for i, a := range holders {
		t.creditLocked(a, shares[i])
	}

	t.distributed.Add(t.distributed, paid)
	t.dust.Add(t.dust, new(uint256.Int).Sub(tax, paid))
}

// debitLocked saturates at zero. A reflection balance is never below the
// matching real balance once seeded, so saturation only triggers when the
// tracker was attached with a stale snapshot.
func (t *Tracker) debitLocked(addr domain.Address, v *uint256.Int) {
	b, ok := t.balances[addr]
	if !ok {
		return
	}
	if b.Lt(v) {
		delete(t.balances, addr)
		return
	}
	b.Sub(b, v)
	if b.IsZero() {
		delete(t.balances, addr)
	}
}

func (t *Tracker) creditLocked(addr domain.Address, v *uint256.Int) {
	if v.IsZero() {
		return
	}
	if b, ok := t.balances[addr]; ok {
		b.Add(b, v)
		return
	}
	t.balances[addr] = v.Clone()
}

// Holders returns the reflection balances sorted by address.
func (t *Tracker) Holders() []domain.Holder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Holder, 0, len(t.balances))
	for a, b := range t.balances {
		out = append(out, domain.Holder{Address: a, Reflection: b.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}
