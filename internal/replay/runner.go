package replay

import (
	"context"
	"fmt"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

// Runner loads the journal from storage and replays it in seq order.
type Runner struct {
	store storage.OperationStore
}

// NewRunner creates a new replay runner.
func NewRunner(store storage.OperationStore) *Runner {
	return &Runner{store: store}
}

// RunAll replays the whole journal through engine. Returns the number of
// operations applied.
func (r *Runner) RunAll(ctx context.Context, engine Engine) (int, error) {
	ops, err := r.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	return Apply(ctx, ops, 0, engine)
}

// Run replays operations with seq in [fromSeq, toSeq]. engine must already
// hold the state after fromSeq-1.
func (r *Runner) Run(ctx context.Context, fromSeq, toSeq int64, engine Engine) (int, error) {
	ops, err := r.store.GetRange(ctx, fromSeq, toSeq)
	if err != nil {
		return 0, fmt.Errorf("load journal range: %w", err)
	}
	return Apply(ctx, ops, fromSeq-1, engine)
}

// Apply checks that ops continue the journal after afterSeq and feeds them
// to engine. Nothing is applied if the ordering check fails.
func Apply(ctx context.Context, ops []*domain.Operation, afterSeq int64, engine Engine) (int, error) {
	if s, ok := engine.(interface{ LastSeq() int64 }); ok && s.LastSeq() != afterSeq {
		return 0, fmt.Errorf("%w: engine is at seq %d, journal resumes after %d", ErrInvalidOrdering, s.LastSeq(), afterSeq)
	}
	SortOperations(ops)
	if err := CheckOrdering(ops, afterSeq); err != nil {
		return 0, err
	}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := engine.OnOperation(ctx, op); err != nil {
			return i, err
		}
	}
	return len(ops), nil
}
