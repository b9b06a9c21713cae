package replay

import "errors"

var (
	// ErrInvalidOrdering is returned when the journal has gaps, duplicate
	// seqs or timestamps that move backwards.
	ErrInvalidOrdering = errors.New("operations are not in journal order")

	// ErrMismatch is returned when a replayed transfer does not reproduce
	// the journaled net and tax amounts.
	ErrMismatch = errors.New("replayed operation does not match journal")
)
