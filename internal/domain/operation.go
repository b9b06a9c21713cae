package domain

import "github.com/holiman/uint256"

// OperationKind identifies a journaled ledger mutation.
type OperationKind string

const (
	OperationTransfer  OperationKind = "transfer"
	OperationLaunch    OperationKind = "launch"
	OperationSetPair   OperationKind = "set_pair"
	OperationSetExempt OperationKind = "set_exempt"
)

// IsValid checks if the kind is a known value.
func (k OperationKind) IsValid() bool {
	switch k {
	case OperationTransfer, OperationLaunch, OperationSetPair, OperationSetExempt:
		return true
	}
	return false
}

// Operation is one entry of the append-only ledger journal.
// Corresponds to operations table in PostgreSQL.
//
// Field use by kind:
//   - transfer: From, To, Amount, Net, Tax
//   - launch: Caller
//   - set_pair, set_exempt: Caller, To (target), Flag
type Operation struct {
	Seq         int64  // 1-based, gapless
	OperationID string // deterministic hash, see idhash.ComputeOperationID
	Kind        OperationKind
	Caller      Address
	From        Address
	To          Address
	Amount      *uint256.Int
	Net         *uint256.Int
	Tax         *uint256.Int
	Flag        bool
	TimestampMs int64 // ledger clock at execution
}

// TaxEvent is an analytics point for one taxed transfer.
// Corresponds to tax_events table in ClickHouse.
type TaxEvent struct {
	OperationID string
	Seq         int64
	Seller      Address // account that paid the tax
	Pair        Address // pair side of the transfer
	Gross       *uint256.Int
	Tax         *uint256.Int
	TimestampMs int64
}
