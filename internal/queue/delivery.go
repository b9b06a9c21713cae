package queue

import (
	"context"

	"reflection-token-lab/internal/domain"
)

// Delivery is one received operation. Until it is committed the source may
// deliver it again, for example after a restart.
type Delivery struct {
	Op     *domain.Operation
	commit func(ctx context.Context) error
}

// NewDelivery wraps op. A nil commit makes Commit a no-op, for sources
// without acknowledgement.
func NewDelivery(op *domain.Operation, commit func(ctx context.Context) error) Delivery {
	return Delivery{Op: op, commit: commit}
}

// Commit acknowledges that the receiver has durably handled the operation.
// Committing twice is harmless.
func (d Delivery) Commit(ctx context.Context) error {
	if d.commit == nil {
		return nil
	}
	return d.commit(ctx)
}
