package ledger

import "errors"

// Ledger errors. Every failed operation leaves state unchanged.
var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthorized is returned when a non-owner calls an owner-only operation.
	ErrUnauthorized = errors.New("unauthorized: caller is not the owner")

	// ErrAlreadyLaunched is returned by a second Launch call.
	ErrAlreadyLaunched = errors.New("already launched")

	// ErrNotLaunched is returned for transfers between non-exempt accounts before launch.
	ErrNotLaunched = errors.New("trading not launched")

	// ErrAntiSnipe is returned for pair trades by non-exempt accounts
	// while the post-launch window is still open.
	ErrAntiSnipe = errors.New("anti-snipe window active")

	// ErrZeroAddress is returned when an operation names the zero address.
	ErrZeroAddress = errors.New("zero address")

	// ErrReservedAddress is returned for transfers touching the ledger's own
	// address, which holds collected tax.
	ErrReservedAddress = errors.New("reserved address")

	// ErrInvalidAmount is returned for a nil amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidConfig is returned by New for unusable configuration.
	ErrInvalidConfig = errors.New("invalid ledger config")
)
