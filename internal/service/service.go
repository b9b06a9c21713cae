// Package service runs ledger operations and fans committed results out to
// the journal, analytics, queue, feed and cache sinks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/api"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/idhash"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/queue"
	"reflection-token-lab/internal/reflection"
	"reflection-token-lab/internal/storage"
	"reflection-token-lab/internal/storage/memory"
)

// Broadcaster receives feed events.
type Broadcaster interface {
	Broadcast(ev api.Event)
}

// BalanceCache is a read-through copy of holder balances.
type BalanceCache interface {
	Put(ctx context.Context, holders ...domain.Holder) error
	Get(ctx context.Context, addr domain.Address) (domain.Holder, bool, error)
	Invalidate(ctx context.Context, addrs ...domain.Address) error
}

// Service serialises ledger operations and journals each committed one
// under a gapless seq.
type Service struct {
	ledger     *ledger.Ledger
	tracker    *reflection.Tracker
	operations storage.OperationStore
	taxEvents  storage.TaxEventStore
	publisher  queue.Publisher
	feed       Broadcaster
	cache      BalanceCache
	metrics    *observability.Metrics
	logger     *log.Logger

	mu      sync.Mutex
	lastSeq int64
	// unjournaled holds committed operations whose journal write failed,
	// in seq order.
	unjournaled []*domain.Operation
}

// Options contains configuration for creating a Service.
type Options struct {
	Ledger  *ledger.Ledger      // required
	Tracker *reflection.Tracker // attached as reward distributor unless AttachedTracker

	// AttachedTracker reports that Tracker is already installed on Ledger,
	// e.g. after a journal replay.
	AttachedTracker bool

	Operations storage.OperationStore // default: in-memory
	TaxEvents  storage.TaxEventStore  // optional
	Publisher  queue.Publisher        // optional
	Feed       Broadcaster            // optional
	Cache      BalanceCache           // optional
	Metrics    *observability.Metrics // default: observability.DefaultMetrics
	Logger     *log.Logger
}

// New creates a service. The journal's last seq is read from Operations so
// numbering continues after a restart.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Ledger == nil {
		return nil, errors.New("service: ledger is required")
	}

	operations := opts.Operations
	if operations == nil {
		operations = memory.NewOperationStore()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	if opts.Tracker != nil && !opts.AttachedTracker {
		if err := opts.Ledger.SetRewardDistributor(opts.Ledger.Owner(), opts.Tracker); err != nil {
			return nil, fmt.Errorf("attach tracker: %w", err)
		}
	}

	lastSeq, err := operations.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last seq: %w", err)
	}

	s := &Service{
		ledger:     opts.Ledger,
		tracker:    opts.Tracker,
		operations: operations,
		taxEvents:  opts.TaxEvents,
		publisher:  opts.Publisher,
		feed:       opts.Feed,
		cache:      opts.Cache,
		metrics:    metrics,
		logger:     logger,
		lastSeq:    lastSeq,
	}
	s.updateGauges()
	return s, nil
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Tracker returns the reward tracker, nil if none.
func (s *Service) Tracker() *reflection.Tracker { return s.tracker }

// Operations returns the journal store.
func (s *Service) Operations() storage.OperationStore { return s.operations }

// Transfer moves amount from one account to another.
func (s *Service) Transfer(ctx context.Context, from, to domain.Address, amount *uint256.Int) (*domain.Operation, error) {
	start := time.Now()
	defer func() { s.metrics.TransferDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		s.rejected(domain.OperationTransfer, err)
		return nil, err
	}

	res, err := s.ledger.Transfer(from, to, amount)
	if err != nil {
		s.rejected(domain.OperationTransfer, err)
		return nil, err
	}

	op := s.nextLocked(&domain.Operation{
		Kind:        domain.OperationTransfer,
		Caller:      from,
		From:        from,
		To:          to,
		Amount:      res.Gross,
		Net:         res.Net,
		Tax:         res.Tax,
		TimestampMs: res.TimestampMs,
	})
	s.commitLocked(ctx, op, res)
	return op, nil
}

// Launch opens trading.
func (s *Service) Launch(ctx context.Context, caller domain.Address) (*domain.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		s.rejected(domain.OperationLaunch, err)
		return nil, err
	}

	st, err := s.ledger.Launch(caller)
	if err != nil {
		s.rejected(domain.OperationLaunch, err)
		return nil, err
	}

	op := s.nextLocked(&domain.Operation{
		Kind:        domain.OperationLaunch,
		Caller:      caller,
		Flag:        true,
		TimestampMs: st.LaunchedAtMs,
	})
	s.commitLocked(ctx, op, nil)
	return op, nil
}

// SetPair flags or unflags addr as a liquidity pair.
func (s *Service) SetPair(ctx context.Context, caller, addr domain.Address, isPair bool) (*domain.Operation, error) {
	return s.setFlag(ctx, domain.OperationSetPair, caller, addr, isPair, s.ledger.SetPair)
}

// SetExempt sets the tax and launch-gate exemption of addr.
func (s *Service) SetExempt(ctx context.Context, caller, addr domain.Address, exempt bool) (*domain.Operation, error) {
	return s.setFlag(ctx, domain.OperationSetExempt, caller, addr, exempt, s.ledger.SetExempt)
}

func (s *Service) setFlag(
	ctx context.Context,
	kind domain.OperationKind,
	caller, addr domain.Address,
	flag bool,
	apply func(caller, addr domain.Address, flag bool) error,
) (*domain.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		s.rejected(kind, err)
		return nil, err
	}

	if err := apply(caller, addr, flag); err != nil {
		s.rejected(kind, err)
		return nil, err
	}

	op := s.nextLocked(&domain.Operation{
		Kind:        kind,
		Caller:      caller,
		To:          addr,
		Flag:        flag,
		TimestampMs: s.ledgerNowMs(),
	})
	s.commitLocked(ctx, op, nil)
	return op, nil
}

// Balance returns the real and reflection balance of addr. The cache is
// consulted first; the ledger answers on a miss or cache error. The miss is
// backfilled under the service lock so a concurrent commit cannot be
// overwritten with an older value.
func (s *Service) Balance(ctx context.Context, addr domain.Address) domain.Holder {
	if s.cache != nil {
		h, ok, err := s.cache.Get(ctx, addr)
		if err != nil {
			s.logger.Printf("cache get %s: %v", addr, err)
		}
		if ok {
			return h
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.holder(addr)
	if s.cache != nil {
		if err := s.cache.Put(ctx, h); err != nil {
			s.logger.Printf("cache backfill %s: %v", addr, err)
		}
	}
	return h
}

// Holders returns every account with a real or reflection balance.
func (s *Service) Holders() []domain.Holder {
	return s.State().Holders
}

// State captures the current ledger and tracker state.
func (s *Service) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := reflection.Capture(s.ledger, s.tracker)
	st.LastSeq = s.lastSeq
	return st
}

// Status is a summary of the token.
type Status struct {
	Name         string
	Symbol       string
	Decimals     uint8
	TotalSupply  *uint256.Int
	Holders      int
	Launched     bool
	LaunchedAtMs int64
	TaxCollected *uint256.Int
	Dust         *uint256.Int
	Distributed  *uint256.Int
	Pairs        []domain.Address
	LastSeq      int64
}

// Status returns a summary of the token.
func (s *Service) Status() Status {
	st := s.State()
	cfg := s.ledger.Config()

	distributed := new(uint256.Int)
	if s.tracker != nil {
		distributed = s.tracker.Distributed()
	}

	holders := 0
	for _, h := range st.Holders {
		if !h.Balance.IsZero() {
			holders++
		}
	}

	return Status{
		Name:         cfg.Name,
		Symbol:       cfg.Symbol,
		Decimals:     cfg.Decimals,
		TotalSupply:  st.Supply,
		Holders:      holders,
		Launched:     st.Launch.Launched,
		LaunchedAtMs: st.Launch.LaunchedAtMs,
		TaxCollected: st.TaxCollected,
		Dust:         st.Dust,
		Distributed:  distributed,
		Pairs:        st.Pairs,
		LastSeq:      st.LastSeq,
	}
}

// Flush retries journal writes that failed earlier. It returns
// ErrJournalBehind while any remain.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Unjournaled returns how many committed operations are waiting for the
// journal.
func (s *Service) Unjournaled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unjournaled)
}

// LastSeq returns the seq of the last committed operation.
func (s *Service) LastSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

func (s *Service) nextLocked(op *domain.Operation) *domain.Operation {
	s.lastSeq++
	op.Seq = s.lastSeq
	op.OperationID = idhash.OperationIDOf(op)
	return op
}

// commitLocked writes op to every configured sink. Sink failures are
// logged and counted; the ledger change stands.
func (s *Service) commitLocked(ctx context.Context, op *domain.Operation, res *domain.TransferResult) {
	s.metrics.RecordOperation(string(op.Kind), op.Seq)

	if err := s.journalLocked(ctx, op); err != nil {
		s.unjournaled = append(s.unjournaled, op)
	}

	if res != nil && res.Taxed() {
		s.metrics.TaxedTransfers.Inc()
		if s.taxEvents != nil {
			ev := s.ledger.TaxEventOf(op)
			s.sink("tax_events", func() error { return s.taxEvents.InsertBulk(ctx, []*domain.TaxEvent{ev}) })
		}
	}

	if s.publisher != nil {
		s.sink("kafka", func() error { return s.publisher.Publish(ctx, op) })
	}

	if s.feed != nil {
		ev := api.Event{Type: string(op.Kind), Operation: api.FromOperation(op)}
		if res != nil {
			tr := api.FromTransfer(op.Seq, res)
			ev.Transfer = &tr
		}
		s.feed.Broadcast(ev)
	}

	if s.cache != nil {
		s.refreshCacheLocked(ctx, op, res)
	}

	s.updateGauges()
}

// journalLocked writes op to the journal. A duplicate means an earlier
// attempt already landed.
func (s *Service) journalLocked(ctx context.Context, op *domain.Operation) error {
	var err error
	s.sink("journal", func() error {
		err = s.operations.Insert(ctx, op)
		if errors.Is(err, storage.ErrDuplicateKey) {
			err = nil
		}
		return err
	})
	return err
}

// flushLocked writes unjournaled operations oldest first and stops at the
// first failure, so the journal never has a gap.
func (s *Service) flushLocked(ctx context.Context) error {
	for len(s.unjournaled) > 0 {
		op := s.unjournaled[0]
		if err := s.journalLocked(ctx, op); err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrJournalBehind, op.Seq, err)
		}
		s.unjournaled = s.unjournaled[1:]
		s.logger.Printf("journaled seq %d on retry", op.Seq)
	}
	return nil
}

// refreshCacheLocked rewrites touched accounts. A taxed transfer changes
// the reflection of every holder, so all of them are rewritten.
func (s *Service) refreshCacheLocked(ctx context.Context, op *domain.Operation, res *domain.TransferResult) {
	var touched []domain.Address
	switch {
	case res != nil && res.Taxed():
		for _, h := range reflection.Capture(s.ledger, s.tracker).Holders {
			touched = append(touched, h.Address)
		}
	case res != nil:
		touched = []domain.Address{op.From, op.To}
	default:
		return
	}

	holders := make([]domain.Holder, 0, len(touched))
	for _, a := range touched {
		holders = append(holders, s.holder(a))
	}
	s.sink("redis", func() error {
		err := s.cache.Put(ctx, holders...)
		if err != nil {
			// Stale entries must not outlive a failed refresh
			if ierr := s.cache.Invalidate(ctx, touched...); ierr != nil {
				s.logger.Printf("cache invalidate: %v", ierr)
			}
		}
		return err
	})
}

func (s *Service) sink(name string, write func() error) {
	start := time.Now()
	err := write()
	s.metrics.RecordSink(name, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Printf("sink %s: %v", name, err)
	}
}

func (s *Service) holder(addr domain.Address) domain.Holder {
	h := domain.Holder{
		Address:    addr,
		Balance:    s.ledger.BalanceOf(addr),
		Reflection: new(uint256.Int),
	}
	if s.tracker != nil {
		h.Reflection = s.tracker.BalanceOf(addr)
	}
	return h
}

func (s *Service) ledgerNowMs() int64 {
	return s.ledger.Now().UnixMilli()
}

func (s *Service) rejected(kind domain.OperationKind, err error) {
	s.metrics.RecordOperationError(string(kind), Reason(err))
}

func (s *Service) updateGauges() {
	cfg := s.ledger.Config()
	dust := new(uint256.Int)
	if s.tracker != nil {
		dust = s.tracker.Dust()
	}
	s.metrics.UpdateLedger(
		tokens(s.ledger.TaxCollected(), cfg.Decimals),
		tokens(dust, cfg.Decimals),
		len(s.ledger.Balances()),
		s.ledger.LaunchState().Launched,
	)
}

func tokens(v *uint256.Int, decimals uint8) float64 {
	f, _ := strconv.ParseFloat(domain.FormatUnits(v, decimals), 64)
	return f
}
