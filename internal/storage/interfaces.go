package storage

import (
	"context"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// OperationStore provides access to the append-only operations journal.
type OperationStore interface {
	// Insert adds a new operation. Returns ErrDuplicateKey if seq or operation_id exists.
	Insert(ctx context.Context, op *domain.Operation) error

	// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, ops []*domain.Operation) error

	// GetBySeq retrieves an operation by sequence number. Returns ErrNotFound if not exists.
	GetBySeq(ctx context.Context, seq int64) (*domain.Operation, error)

	// GetRange retrieves operations with seq in [fromSeq, toSeq] (inclusive), ordered by seq ASC.
	GetRange(ctx context.Context, fromSeq, toSeq int64) ([]*domain.Operation, error)

	// GetAll retrieves the full journal ordered by seq ASC.
	GetAll(ctx context.Context) ([]*domain.Operation, error)

	// LastSeq returns the highest stored seq, or 0 for an empty journal.
	LastSeq(ctx context.Context) (int64, error)
}

// TaxEventStore provides access to tax_events analytics storage.
type TaxEventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate operation_id.
	InsertBulk(ctx context.Context, events []*domain.TaxEvent) error

	// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TaxEvent, error)

	// GetBySeller retrieves all events paid by seller, ordered by timestamp ASC.
	GetBySeller(ctx context.Context, seller domain.Address) ([]*domain.TaxEvent, error)

	// TotalTax returns the sum of collected tax over all events.
	TotalTax(ctx context.Context) (*uint256.Int, error)
}

// ValidOperation reports whether op carries the fields every store requires.
func ValidOperation(op *domain.Operation) bool {
	return op != nil && op.Seq > 0 && op.OperationID != "" && op.Kind.IsValid()
}

// ValidTaxEvent reports whether e carries the fields every store requires.
func ValidTaxEvent(e *domain.TaxEvent) bool {
	return e != nil && e.OperationID != "" && e.Tax != nil && e.Gross != nil
}
