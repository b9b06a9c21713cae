// Package ledger implements the token's real balance ledger: pair tax,
// owner-controlled settings and the time-gated launch.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/domain"
)

var hundred = uint256.NewInt(100)

// Ledger holds real balances. All methods are safe for concurrent use;
// mutations are applied one at a time.
type Ledger struct {
	mu    sync.Mutex
	cfg   Config
	clock clock.Clock

	balances     map[domain.Address]*uint256.Int
	pairs        map[domain.Address]bool
	exempt       map[domain.Address]bool
	launch       domain.LaunchState
	taxCollected *uint256.Int
	listener     Listener
}

// New creates a ledger and mints the total supply to the owner.
// Owner and Self start tax-exempt.
func New(cfg Config, clk clock.Clock) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}

	l := &Ledger{
		cfg:          cfg,
		clock:        clk,
		balances:     make(map[domain.Address]*uint256.Int),
		pairs:        make(map[domain.Address]bool),
		exempt:       make(map[domain.Address]bool),
		taxCollected: new(uint256.Int),
	}
	l.balances[cfg.Owner] = cfg.TotalSupply.Clone()
	l.exempt[cfg.Owner] = true
	l.exempt[cfg.Self] = true
	return l, nil
}

// Config returns the ledger configuration.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Owner returns the controlling address.
func (l *Ledger) Owner() domain.Address {
	return l.cfg.Owner
}

// Address returns the ledger's own address (the tax collector).
func (l *Ledger) Address() domain.Address {
	return l.cfg.Self
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// TotalSupply returns the fixed total supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.cfg.TotalSupply.Clone()
}

// BalanceOf returns the real balance of addr.
func (l *Ledger) BalanceOf(addr domain.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(addr).Clone()
}

// TaxCollected returns the total tax collected so far.
func (l *Ledger) TaxCollected() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taxCollected.Clone()
}

// IsPair reports whether addr is flagged as a liquidity pair.
func (l *Ledger) IsPair(addr domain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairs[addr]
}

// TaxEventOf describes the tax paid by a journaled taxed transfer. The
// seller is the non-pair side; on a buy that is the receiver. Pair flags
// are read as they stand now.
func (l *Ledger) TaxEventOf(op *domain.Operation) *domain.TaxEvent {
	seller, pair := op.From, op.To
	if l.IsPair(op.From) && !l.IsPair(op.To) {
		seller, pair = op.To, op.From
	}
	return &domain.TaxEvent{
		OperationID: op.OperationID,
		Seq:         op.Seq,
		Seller:      seller,
		Pair:        pair,
		Gross:       op.Amount,
		Tax:         op.Tax,
		TimestampMs: op.TimestampMs,
	}
}

// IsExempt reports whether addr is exempt from tax and launch gating.
func (l *Ledger) IsExempt(addr domain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exempt[addr]
}

// LaunchState returns the launch flag and timestamp.
func (l *Ledger) LaunchState() domain.LaunchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launch
}

// Balances returns a copy of all non-zero balances.
func (l *Ledger) Balances() map[domain.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balancesLocked()
}

// Pairs returns the flagged pair addresses, sorted.
func (l *Ledger) Pairs() []domain.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairsLocked()
}

// Transfer moves amount from one account to another.
//
// Transfers into a pair from a non-exempt sender pay SellTaxPercent; transfers
// out of a pair to a non-exempt receiver pay BuyTaxPercent. The tax is withheld
// from the receiver's credit and booked to the ledger's own address. All other
// transfers move the full amount.
func (l *Ledger) Transfer(from, to domain.Address, amount *uint256.Int) (*domain.TransferResult, error) {
	if amount == nil {
		return nil, ErrInvalidAmount
	}
	if from.IsZero() || to.IsZero() {
		return nil, ErrZeroAddress
	}
	if from == l.cfg.Self || to == l.cfg.Self {
		return nil, ErrReservedAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UnixMilli()
	if err := l.checkTradingLocked(from, to, now); err != nil {
		return nil, err
	}

	bal := l.balanceLocked(from)
	if bal.Lt(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}

	tax := l.taxLocked(from, to, amount)
	net := new(uint256.Int).Sub(amount, tax)

	l.debitLocked(from, amount)
	l.creditLocked(to, net)
	if !tax.IsZero() {
		l.creditLocked(l.cfg.Self, tax)
		l.taxCollected.Add(l.taxCollected, tax)
	}

	res := &domain.TransferResult{
		From:        from,
		To:          to,
		Gross:       amount.Clone(),
		Net:         net,
		Tax:         tax,
		TimestampMs: now,
	}
	if l.listener != nil {
		l.listener.OnTransfer(res)
	}
	return res, nil
}

// Launch opens trading. It can succeed only once.
func (l *Ledger) Launch(caller domain.Address) (domain.LaunchState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Owner {
		return l.launch, ErrUnauthorized
	}
	if l.launch.Launched {
		return l.launch, ErrAlreadyLaunched
	}

	l.launch = domain.LaunchState{
		Launched:     true,
		LaunchedAtMs: l.clock.Now().UnixMilli(),
	}
	return l.launch, nil
}

// SetPair flags or unflags addr as a liquidity pair. Owner only.
func (l *Ledger) SetPair(caller, addr domain.Address, isPair bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Owner {
		return ErrUnauthorized
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	if addr == l.cfg.Self {
		return ErrReservedAddress
	}

	if isPair {
		l.pairs[addr] = true
	} else {
		delete(l.pairs, addr)
	}
	if l.listener != nil {
		l.listener.OnPairUpdated(addr, isPair)
	}
	return nil
}

// SetExempt sets the tax and launch-gate exemption of addr. Owner only.
func (l *Ledger) SetExempt(caller, addr domain.Address, exempt bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Owner {
		return ErrUnauthorized
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}

	if exempt {
		l.exempt[addr] = true
	} else {
		delete(l.exempt, addr)
	}
	return nil
}

// SetRewardDistributor attaches the listener that tracks reflection balances
// and seeds it with the current state. Owner only. A nil listener detaches.
func (l *Ledger) SetRewardDistributor(caller domain.Address, listener Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Owner {
		return ErrUnauthorized
	}

	l.listener = listener
	if listener != nil {
		listener.Sync(domain.LedgerSnapshot{
			Self:     l.cfg.Self,
			Supply:   l.cfg.TotalSupply.Clone(),
			Balances: l.balancesLocked(),
			Pairs:    l.pairsLocked(),
		})
	}
	return nil
}

// checkTradingLocked applies launch gating. Exempt accounts are never gated.
// Before launch only exempt accounts may move tokens. During the anti-snipe
// window pair trades stay closed; at elapsed == window they open.
func (l *Ledger) checkTradingLocked(from, to domain.Address, nowMs int64) error {
	if l.exempt[from] || l.exempt[to] {
		return nil
	}
	if !l.launch.Launched {
		return ErrNotLaunched
	}
	if !l.pairs[from] && !l.pairs[to] {
		return nil
	}
	if nowMs-l.launch.LaunchedAtMs < l.cfg.AntiSnipeWindow.Milliseconds() {
		return ErrAntiSnipe
	}
	return nil
}

func (l *Ledger) taxLocked(from, to domain.Address, amount *uint256.Int) *uint256.Int {
	var percent uint64
	switch {
	case l.pairs[to] && !l.exempt[from]:
		percent = l.cfg.SellTaxPercent
	case l.pairs[from] && !l.exempt[to]:
		percent = l.cfg.BuyTaxPercent
	}
	if percent == 0 {
		return new(uint256.Int)
	}
	tax, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(percent), hundred)
	return tax
}

func (l *Ledger) balanceLocked(addr domain.Address) *uint256.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *Ledger) debitLocked(addr domain.Address, v *uint256.Int) {
	if v.IsZero() {
		return
	}
	b := l.balances[addr]
	b.Sub(b, v)
	if b.IsZero() {
		delete(l.balances, addr)
	}
}

func (l *Ledger) creditLocked(addr domain.Address, v *uint256.Int) {
	if v.IsZero() {
		return
	}
	if b, ok := l.balances[addr]; ok {
		b.Add(b, v)
		return
	}
	l.balances[addr] = v.Clone()
}

func (l *Ledger) balancesLocked() map[domain.Address]*uint256.Int {
	out := make(map[domain.Address]*uint256.Int, len(l.balances))
	for a, b := range l.balances {
		out[a] = b.Clone()
	}
	return out
}

func (l *Ledger) pairsLocked() []domain.Address {
	out := make([]domain.Address, 0, len(l.pairs))
	for a := range l.pairs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
