package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/domain"
)

var (
	owner = domain.AddressFromSeed("owner")
	self  = domain.AddressFromSeed("qrb-token")
	addr1 = domain.AddressFromSeed("addr1")
	addr2 = domain.AddressFromSeed("addr2")
	addr3 = domain.AddressFromSeed("addr3")
	pair  = domain.AddressFromSeed("pair")
)

func units(s string) *uint256.Int {
	return domain.MustParseUnits(s, domain.DefaultDecimals)
}

func newTestLedger(t *testing.T) (*Ledger, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	l, err := New(DefaultConfig(owner, self), clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, clk
}

// launchedWithPair launches, waits out the anti-snipe window and flags pair.
func launchedWithPair(t *testing.T, l *Ledger, clk *clock.Manual) {
	t.Helper()
	if _, err := l.Launch(owner); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := clk.Advance(10 * time.Minute); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := l.SetPair(owner, pair, true); err != nil {
		t.Fatalf("SetPair failed: %v", err)
	}
}

func sumBalances(l *Ledger) *uint256.Int {
	total := new(uint256.Int)
	for _, b := range l.Balances() {
		total.Add(total, b)
	}
	return total
}

func TestNew_MintsSupplyToOwner(t *testing.T) {
	l, _ := newTestLedger(t)

	if got := l.TotalSupply(); !got.Eq(units("1000000")) {
		t.Errorf("TotalSupply = %s, want 1e24", got.Dec())
	}
	if got := l.BalanceOf(owner); !got.Eq(l.TotalSupply()) {
		t.Errorf("owner balance = %s, want total supply", got.Dec())
	}
	if !l.IsExempt(owner) || !l.IsExempt(self) {
		t.Error("owner and self should start exempt")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero owner", func(c *Config) { c.Owner = domain.ZeroAddress }},
		{"zero self", func(c *Config) { c.Self = domain.ZeroAddress }},
		{"owner is self", func(c *Config) { c.Self = c.Owner }},
		{"nil supply", func(c *Config) { c.TotalSupply = nil }},
		{"tax above 100", func(c *Config) { c.SellTaxPercent = 101 }},
		{"negative window", func(c *Config) { c.AntiSnipeWindow = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(owner, self)
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestTransfer_OwnerToHolder(t *testing.T) {
	l, _ := newTestLedger(t)

	res, err := l.Transfer(owner, addr1, units("1000"))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !l.BalanceOf(addr1).Eq(units("1000")) {
		t.Errorf("addr1 balance = %s, want 1000e18", l.BalanceOf(addr1).Dec())
	}
	if res.Taxed() {
		t.Error("owner transfer should not be taxed")
	}
}

func TestTransfer_WalletToWalletNoTax(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("1000"))
	launchedWithPair(t, l, clk)

	res := mustTransfer(t, l, addr1, addr2, units("10"))

	if !l.BalanceOf(addr1).Eq(units("990")) {
		t.Errorf("addr1 balance = %s, want 990e18", l.BalanceOf(addr1).Dec())
	}
	if !l.BalanceOf(addr2).Eq(units("10")) {
		t.Errorf("addr2 balance = %s, want 10e18", l.BalanceOf(addr2).Dec())
	}
	if res.Taxed() {
		t.Error("wallet-to-wallet transfer should not be taxed")
	}
}

func TestTransfer_SellIsTaxedFivePercent(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("1000"))
	launchedWithPair(t, l, clk)

	res := mustTransfer(t, l, addr1, pair, units("100"))

	if got := l.BalanceOf(pair).Dec(); got != "95000000000000000000" {
		t.Errorf("pair balance = %s, want 95000000000000000000", got)
	}
	if !res.Tax.Eq(units("5")) || !res.Net.Eq(units("95")) || !res.Gross.Eq(units("100")) {
		t.Errorf("unexpected split: gross=%s net=%s tax=%s", res.Gross.Dec(), res.Net.Dec(), res.Tax.Dec())
	}
	if !l.BalanceOf(self).Eq(units("5")) {
		t.Errorf("collector balance = %s, want 5e18", l.BalanceOf(self).Dec())
	}
	if !l.TaxCollected().Eq(units("5")) {
		t.Errorf("TaxCollected = %s, want 5e18", l.TaxCollected().Dec())
	}
	if !sumBalances(l).Eq(l.TotalSupply()) {
		t.Error("sum of balances must equal total supply")
	}
}

func TestTransfer_BuyIsTaxed(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, pair, units("1000"))
	launchedWithPair(t, l, clk)

	res := mustTransfer(t, l, pair, addr1, units("200"))

	if !res.Tax.Eq(units("10")) {
		t.Errorf("buy tax = %s, want 10e18", res.Tax.Dec())
	}
	if !l.BalanceOf(addr1).Eq(units("190")) {
		t.Errorf("addr1 balance = %s, want 190e18", l.BalanceOf(addr1).Dec())
	}
}

func TestTransfer_ExemptSellerNotTaxed(t *testing.T) {
	l, clk := newTestLedger(t)
	launchedWithPair(t, l, clk)

	res := mustTransfer(t, l, owner, pair, units("100"))
	if res.Taxed() {
		t.Error("exempt owner should not be taxed")
	}
	if !l.BalanceOf(pair).Eq(units("100")) {
		t.Errorf("pair balance = %s, want 100e18", l.BalanceOf(pair).Dec())
	}
}

func TestTransfer_TaxRoundsDown(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, uint256.NewInt(1000))
	launchedWithPair(t, l, clk)

	res := mustTransfer(t, l, addr1, pair, uint256.NewInt(39))
	if res.Tax.Uint64() != 1 || res.Net.Uint64() != 38 {
		t.Errorf("39 units: tax=%d net=%d, want 1/38", res.Tax.Uint64(), res.Net.Uint64())
	}

	res = mustTransfer(t, l, addr1, pair, uint256.NewInt(19))
	if res.Taxed() || res.Net.Uint64() != 19 {
		t.Errorf("19 units: tax=%d net=%d, want 0/19", res.Tax.Uint64(), res.Net.Uint64())
	}
}

func TestTransfer_InsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("10"))
	launchedWithPair(t, l, clk)

	before := l.Balances()
	_, err := l.Transfer(addr1, addr2, units("11"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	assertBalancesEqual(t, before, l.Balances())
}

func TestTransfer_InvalidEndpoints(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		name    string
		from    domain.Address
		to      domain.Address
		amount  *uint256.Int
		wantErr error
	}{
		{"nil amount", owner, addr1, nil, ErrInvalidAmount},
		{"zero from", domain.ZeroAddress, addr1, units("1"), ErrZeroAddress},
		{"zero to", owner, domain.ZeroAddress, units("1"), ErrZeroAddress},
		{"to self", owner, self, units("1"), ErrReservedAddress},
		{"from self", self, owner, units("1"), ErrReservedAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Transfer(tt.from, tt.to, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransfer_ZeroAmount(t *testing.T) {
	l, _ := newTestLedger(t)

	res := mustTransfer(t, l, owner, addr1, new(uint256.Int))
	if !res.Net.IsZero() {
		t.Errorf("net = %s, want 0", res.Net.Dec())
	}
	if _, ok := l.Balances()[addr1]; ok {
		t.Error("zero transfer should not create a balance entry")
	}
}

func TestLaunchGating(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("100"))
	if err := l.SetPair(owner, pair, true); err != nil {
		t.Fatalf("SetPair failed: %v", err)
	}

	// Before launch: non-exempt accounts cannot move tokens.
	if _, err := l.Transfer(addr1, addr2, units("1")); !errors.Is(err, ErrNotLaunched) {
		t.Errorf("pre-launch wallet transfer: expected ErrNotLaunched, got %v", err)
	}
	// Exempt owner can.
	mustTransfer(t, l, owner, addr2, units("1"))

	if _, err := l.Launch(owner); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	// Inside the window: wallet transfers open, pair trades closed.
	mustTransfer(t, l, addr1, addr2, units("1"))
	if _, err := l.Transfer(addr1, pair, units("1")); !errors.Is(err, ErrAntiSnipe) {
		t.Errorf("sell inside window: expected ErrAntiSnipe, got %v", err)
	}

	if err := clk.Advance(10*time.Minute - time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Transfer(addr1, pair, units("1")); !errors.Is(err, ErrAntiSnipe) {
		t.Errorf("sell 1ms before window end: expected ErrAntiSnipe, got %v", err)
	}

	// Boundary: elapsed == window opens trading.
	if err := clk.Advance(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	mustTransfer(t, l, addr1, pair, units("1"))
}

func TestLaunch_Twice(t *testing.T) {
	l, clk := newTestLedger(t)

	first, err := l.Launch(owner)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := clk.Advance(time.Hour); err != nil {
		t.Fatal(err)
	}

	state, err := l.Launch(owner)
	if !errors.Is(err, ErrAlreadyLaunched) {
		t.Fatalf("expected ErrAlreadyLaunched, got %v", err)
	}
	if state != first || l.LaunchState() != first {
		t.Errorf("launch state changed after failed call: %+v != %+v", l.LaunchState(), first)
	}
}

func TestOwnerOnlyOperations(t *testing.T) {
	l, _ := newTestLedger(t)

	if _, err := l.Launch(addr1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Launch by non-owner: expected ErrUnauthorized, got %v", err)
	}
	if l.LaunchState().Launched {
		t.Error("failed Launch should not launch")
	}

	if err := l.SetPair(addr1, pair, true); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetPair by non-owner: expected ErrUnauthorized, got %v", err)
	}
	if l.IsPair(pair) || len(l.Pairs()) != 0 {
		t.Error("pair registry changed after unauthorized SetPair")
	}

	if err := l.SetExempt(addr1, addr1, true); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetExempt by non-owner: expected ErrUnauthorized, got %v", err)
	}
	if err := l.SetRewardDistributor(addr1, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetRewardDistributor by non-owner: expected ErrUnauthorized, got %v", err)
	}
}

func TestSetPair_Unflag(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("100"))
	launchedWithPair(t, l, clk)

	if err := l.SetPair(owner, pair, false); err != nil {
		t.Fatalf("SetPair(false) failed: %v", err)
	}
	if err := l.SetPair(owner, self, true); !errors.Is(err, ErrReservedAddress) {
		t.Errorf("SetPair(self): expected ErrReservedAddress, got %v", err)
	}

	res := mustTransfer(t, l, addr1, pair, units("100"))
	if res.Taxed() {
		t.Error("transfer to unflagged pair should not be taxed")
	}
}

func TestSetExempt(t *testing.T) {
	l, clk := newTestLedger(t)
	mustTransfer(t, l, owner, addr1, units("100"))
	launchedWithPair(t, l, clk)

	if err := l.SetExempt(owner, addr1, true); err != nil {
		t.Fatalf("SetExempt failed: %v", err)
	}
	if res := mustTransfer(t, l, addr1, pair, units("50")); res.Taxed() {
		t.Error("exempt seller should not be taxed")
	}

	if err := l.SetExempt(owner, addr1, false); err != nil {
		t.Fatalf("SetExempt(false) failed: %v", err)
	}
	if res := mustTransfer(t, l, addr1, pair, units("50")); !res.Taxed() {
		t.Error("seller should be taxed after exemption removed")
	}
}

type recordingListener struct {
	synced    []domain.LedgerSnapshot
	transfers []*domain.TransferResult
	pairs     map[domain.Address]bool
}

func (r *recordingListener) Sync(s domain.LedgerSnapshot) { r.synced = append(r.synced, s) }
func (r *recordingListener) OnTransfer(res *domain.TransferResult) {
	r.transfers = append(r.transfers, res)
}
func (r *recordingListener) OnPairUpdated(addr domain.Address, isPair bool) {
	if r.pairs == nil {
		r.pairs = make(map[domain.Address]bool)
	}
	r.pairs[addr] = isPair
}

func TestRewardDistributor_Notified(t *testing.T) {
	l, clk := newTestLedger(t)
	rec := &recordingListener{}

	if err := l.SetRewardDistributor(owner, rec); err != nil {
		t.Fatalf("SetRewardDistributor failed: %v", err)
	}
	if len(rec.synced) != 1 || rec.synced[0].Self != self {
		t.Fatalf("expected one sync with self address, got %+v", rec.synced)
	}
	if !rec.synced[0].Balances[owner].Eq(l.TotalSupply()) {
		t.Error("sync snapshot should hold the minted supply")
	}

	mustTransfer(t, l, owner, addr1, units("1000"))
	launchedWithPair(t, l, clk)
	mustTransfer(t, l, addr1, pair, units("100"))

	if len(rec.transfers) != 2 {
		t.Fatalf("expected 2 transfer notifications, got %d", len(rec.transfers))
	}
	last := rec.transfers[1]
	if last.From != addr1 || last.To != pair || !last.Tax.Eq(units("5")) || !last.Net.Eq(units("95")) {
		t.Errorf("unexpected notification: %+v", last)
	}
	if !rec.pairs[pair] {
		t.Error("listener should see pair flag")
	}

	// Failed transfers are not notified.
	_, _ = l.Transfer(addr3, addr1, units("1"))
	if len(rec.transfers) != 2 {
		t.Error("failed transfer must not notify listener")
	}
}

func mustTransfer(t *testing.T, l *Ledger, from, to domain.Address, amount *uint256.Int) *domain.TransferResult {
	t.Helper()
	res, err := l.Transfer(from, to, amount)
	if err != nil {
		t.Fatalf("Transfer(%s -> %s, %s) failed: %v", from, to, amount.Dec(), err)
	}
	return res
}

func assertBalancesEqual(t *testing.T, want, got map[domain.Address]*uint256.Int) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("balance count = %d, want %d", len(got), len(want))
	}
	for a, w := range want {
		g, ok := got[a]
		if !ok || !g.Eq(w) {
			t.Errorf("balance of %s changed", a)
		}
	}
}

func TestTaxEventOf(t *testing.T) {
	l, clk := newTestLedger(t)
	launchedWithPair(t, l, clk)

	sell := &domain.Operation{OperationID: "sell", Seq: 3, From: addr1, To: pair, Amount: units("100"), Tax: units("5")}
	ev := l.TaxEventOf(sell)
	if ev.Seller != addr1 || ev.Pair != pair {
		t.Errorf("sell: seller=%s pair=%s", ev.Seller, ev.Pair)
	}
	if !ev.Gross.Eq(units("100")) || !ev.Tax.Eq(units("5")) || ev.Seq != 3 {
		t.Errorf("sell: unexpected event %+v", ev)
	}

	buy := &domain.Operation{OperationID: "buy", Seq: 4, From: pair, To: addr2, Amount: units("20"), Tax: units("1")}
	ev = l.TaxEventOf(buy)
	if ev.Seller != addr2 || ev.Pair != pair {
		t.Errorf("buy: seller=%s pair=%s", ev.Seller, ev.Pair)
	}
}
