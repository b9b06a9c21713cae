// Package ingestion mirrors a token's operations journal from a live
// stream into local storage and a shadow ledger.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/queue"
	"reflection-token-lab/internal/replay"
	"reflection-token-lab/internal/storage"
)

// Runner errors
var (
	ErrSourceClosed = errors.New("operation source closed")
	ErrOperationID  = errors.New("operation id does not match content")
)

// Runner consumes operations, restores seq order and applies them to a
// shadow ledger. Each applied operation is written to the mirror journal,
// and taxed transfers also to the tax event store. A delivery is committed
// only after its operation is in the mirror journal.
type Runner struct {
	source        OperationSource
	operations    storage.OperationStore
	taxEvents     storage.TaxEventStore
	upstream      storage.OperationStore
	engine        *replay.LedgerEngine
	buffer        *SeqBuffer
	deliveries    map[int64][]queue.Delivery // uncommitted, by seq
	flushInterval time.Duration
	metrics       *observability.Metrics
	logger        *log.Logger

	stats RunnerStats
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source       OperationSource
	Operations   storage.OperationStore // mirror journal, required
	TaxEvents    storage.TaxEventStore  // optional
	Upstream     storage.OperationStore // optional, used to fill seq gaps
	LedgerConfig ledger.Config
	Router       domain.Address
	// FlushInterval is how often a pending gap is backfilled from Upstream.
	// Default: 5s.
	FlushInterval time.Duration
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// RunnerStats counts what a runner did.
type RunnerStats struct {
	Restored   int // operations replayed from the mirror journal at start
	Applied    int64
	Duplicates int64
	Backfilled int64
}

// NewRunner creates a runner and rebuilds the shadow ledger from the
// operations already in the mirror journal.
func NewRunner(ctx context.Context, opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil || opts.Operations == nil {
		return nil, errors.New("ingestion: source and operations store are required")
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	engine, err := replay.NewLedgerEngine(opts.LedgerConfig, opts.Router, nil)
	if err != nil {
		return nil, fmt.Errorf("build shadow ledger: %w", err)
	}
	restored, err := replay.NewRunner(opts.Operations).RunAll(ctx, engine)
	if err != nil {
		return nil, fmt.Errorf("restore shadow ledger: %w", err)
	}

	return &Runner{
		source:        opts.Source,
		operations:    opts.Operations,
		taxEvents:     opts.TaxEvents,
		upstream:      opts.Upstream,
		engine:        engine,
		buffer:        NewSeqBuffer(engine.LastSeq()),
		deliveries:    make(map[int64][]queue.Delivery),
		flushInterval: flushInterval,
		metrics:       metrics,
		logger:        logger,
		stats:         RunnerStats{Restored: restored},
	}, nil
}

// Run mirrors operations until ctx is cancelled, the source closes or an
// operation fails to apply.
func (r *Runner) Run(ctx context.Context) error {
	opsCh, err := r.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	r.logger.Printf("Mirror started at seq %d, flush interval: %v", r.engine.LastSeq(), r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			if n := r.buffer.Len(); n > 0 {
				r.logger.Printf("Mirror stopping with %d operations behind seq %d", n, r.buffer.Next())
			}
			return ctx.Err()

		case d, ok := <-opsCh:
			if !ok {
				return ErrSourceClosed
			}
			if err := r.handle(ctx, d); err != nil {
				return err
			}

		case <-flushTicker.C:
			if err := r.backfill(ctx); err != nil {
				return err
			}
		}
	}
}

// State returns the shadow ledger state.
func (r *Runner) State() domain.State { return r.engine.State() }

// LastSeq returns the seq of the last applied operation.
func (r *Runner) LastSeq() int64 { return r.engine.LastSeq() }

// Stats returns runner counters.
func (r *Runner) Stats() RunnerStats { return r.stats }

func (r *Runner) handle(ctx context.Context, d queue.Delivery) error {
	op := d.Op
	if !r.buffer.Push(op) {
		r.stats.Duplicates++
		r.metrics.MirrorDuplicates.Inc()
		if op.Seq < r.buffer.Next() {
			r.commit(ctx, op.Seq, d)
		} else {
			// the buffered copy is not applied yet
			r.deliveries[op.Seq] = append(r.deliveries[op.Seq], d)
		}
		return nil
	}
	r.deliveries[op.Seq] = append(r.deliveries[op.Seq], d)
	return r.drain(ctx)
}

func (r *Runner) commit(ctx context.Context, seq int64, ds ...queue.Delivery) {
	for _, d := range ds {
		if err := d.Commit(ctx); err != nil {
			r.logger.Printf("commit seq %d: %v", seq, err)
		}
	}
}

func (r *Runner) drain(ctx context.Context) error {
	defer func() { r.metrics.MirrorPending.Set(float64(r.buffer.Len())) }()
	for _, op := range r.buffer.Ready() {
		if err := r.apply(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// backfill fetches the missing range before the buffered operations from
// the upstream journal.
func (r *Runner) backfill(ctx context.Context) error {
	if r.upstream == nil {
		return nil
	}
	from, to, ok := r.buffer.Gap()
	if !ok {
		return nil
	}

	ops, err := r.upstream.GetRange(ctx, from, to)
	if err != nil {
		r.logger.Printf("backfill [%d, %d]: %v", from, to, err)
		return nil
	}
	for _, op := range ops {
		if r.buffer.Push(op) {
			r.stats.Backfilled++
			r.metrics.MirrorBackfilled.Inc()
		}
	}
	r.logger.Printf("Backfilled %d operations for [%d, %d]", len(ops), from, to)
	return r.drain(ctx)
}

func (r *Runner) apply(ctx context.Context, op *domain.Operation) error {
	if d := replay.CheckOperationIDs([]*domain.Operation{op}); len(d) > 0 {
		return fmt.Errorf("%w: seq %d", ErrOperationID, op.Seq)
	}
	if err := r.engine.OnOperation(ctx, op); err != nil {
		return err
	}

	if err := r.operations.Insert(ctx, op); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("store seq %d: %w", op.Seq, err)
	}

	if r.taxEvents != nil && op.Kind == domain.OperationTransfer && !domain.ZeroIfNil(op.Tax).IsZero() {
		ev := r.engine.Ledger().TaxEventOf(op)
		if err := r.taxEvents.InsertBulk(ctx, []*domain.TaxEvent{ev}); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Printf("store tax event seq %d: %v", op.Seq, err)
		}
	}

	r.commit(ctx, op.Seq, r.deliveries[op.Seq]...)
	delete(r.deliveries, op.Seq)

	r.stats.Applied++
	r.metrics.MirrorApplied.Inc()
	r.metrics.RecordOperation(string(op.Kind), op.Seq)
	return nil
}
