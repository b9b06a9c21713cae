package service

import (
	"errors"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// ErrJournalBehind is returned while committed operations are still waiting
// to be written to the journal. No new operation is accepted until they are.
var ErrJournalBehind = errors.New("journal write pending")

// Reason maps an operation error to a short metric label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrJournalBehind):
		return "journal_behind"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrAlreadyLaunched):
		return "already_launched"
	case errors.Is(err, ledger.ErrNotLaunched):
		return "not_launched"
	case errors.Is(err, ledger.ErrAntiSnipe):
		return "anti_snipe"
	case errors.Is(err, ledger.ErrZeroAddress), errors.Is(err, ledger.ErrReservedAddress),
		errors.Is(err, domain.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}
