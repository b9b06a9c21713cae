package ledger

import "reflection-token-lab/internal/domain"

// Listener receives ledger state changes. It is the reward distributor hook.
//
// Callbacks run synchronously under the ledger lock, after the change is
// committed, so a listener sees changes in ledger order. A listener must not
// call back into the ledger.
type Listener interface {
	// Sync seeds the listener with the current ledger state when it is attached.
	Sync(s domain.LedgerSnapshot)
	// OnTransfer is called for every committed transfer.
	OnTransfer(r *domain.TransferResult)
	// OnPairUpdated is called when a pair flag changes.
	OnPairUpdated(addr domain.Address, isPair bool)
}
