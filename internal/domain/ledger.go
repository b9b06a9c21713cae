package domain

import "github.com/holiman/uint256"

// TransferResult describes a committed ledger transfer.
// Gross = Net + Tax. Tax is zero for untaxed transfers.
type TransferResult struct {
	From        Address
	To          Address
	Gross       *uint256.Int
	Net         *uint256.Int
	Tax         *uint256.Int
	TimestampMs int64
}

// Taxed reports whether any tax was collected.
func (r *TransferResult) Taxed() bool {
	return r.Tax != nil && !r.Tax.IsZero()
}

// LaunchState is the one-way trading switch of the ledger.
type LaunchState struct {
	Launched     bool
	LaunchedAtMs int64 // zero until launched
}

// Holder is a point-in-time view of one account.
type Holder struct {
	Address    Address
	Balance    *uint256.Int // real balance
	Reflection *uint256.Int // derived reward-tracking balance
}

// LedgerSnapshot is the state a reward distributor is seeded with
// when it is attached to a ledger.
type LedgerSnapshot struct {
	Self     Address // tax collector; never mirrored
	Supply   *uint256.Int
	Balances map[Address]*uint256.Int
	Pairs    []Address
}

// State is a point-in-time view of a ledger and its reward tracker.
// Live and replayed states are compared field by field.
type State struct {
	Supply       *uint256.Int
	TaxCollected *uint256.Int
	Dust         *uint256.Int
	Launch       LaunchState
	Pairs        []Address
	Holders      []Holder // sorted by address
	LastSeq      int64
}
