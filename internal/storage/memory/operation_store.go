package memory

import (
	"context"
	"sort"
	"sync"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

// OperationStore is an in-memory implementation of storage.OperationStore.
type OperationStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Operation // keyed by seq
	ids  map[string]int64            // operation_id -> seq
}

// NewOperationStore creates a new in-memory operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		data: make(map[int64]*domain.Operation),
		ids:  make(map[string]int64),
	}
}

// Insert adds a new operation. Returns ErrDuplicateKey if seq or operation_id exists.
func (s *OperationStore) Insert(_ context.Context, op *domain.Operation) error {
	if !storage.ValidOperation(op) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.existsLocked(op) {
		return storage.ErrDuplicateKey
	}
	s.putLocked(op)
	return nil
}

// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
func (s *OperationStore) InsertBulk(_ context.Context, ops []*domain.Operation) error {
	for _, op := range ops {
		if !storage.ValidOperation(op) {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates against stored data and within the batch
	seqs := make(map[int64]bool, len(ops))
	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		if s.existsLocked(op) || seqs[op.Seq] || ids[op.OperationID] {
			return storage.ErrDuplicateKey
		}
		seqs[op.Seq] = true
		ids[op.OperationID] = true
	}

	for _, op := range ops {
		s.putLocked(op)
	}
	return nil
}

// GetBySeq retrieves an operation by sequence number. Returns ErrNotFound if not exists.
func (s *OperationStore) GetBySeq(_ context.Context, seq int64) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.data[seq]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneOperation(op), nil
}

// GetRange retrieves operations with seq in [fromSeq, toSeq], ordered by seq ASC.
func (s *OperationStore) GetRange(_ context.Context, fromSeq, toSeq int64) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Operation
	for seq, op := range s.data {
		if seq >= fromSeq && seq <= toSeq {
			result = append(result, cloneOperation(op))
		}
	}
	sortBySeq(result)
	return result, nil
}

// GetAll retrieves the full journal ordered by seq ASC.
func (s *OperationStore) GetAll(_ context.Context) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Operation, 0, len(s.data))
	for _, op := range s.data {
		result = append(result, cloneOperation(op))
	}
	sortBySeq(result)
	return result, nil
}

// LastSeq returns the highest stored seq, or 0 for an empty journal.
func (s *OperationStore) LastSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last int64
	for seq := range s.data {
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

func (s *OperationStore) existsLocked(op *domain.Operation) bool {
	if _, ok := s.data[op.Seq]; ok {
		return true
	}
	_, ok := s.ids[op.OperationID]
	return ok
}

func (s *OperationStore) putLocked(op *domain.Operation) {
	s.data[op.Seq] = cloneOperation(op)
	s.ids[op.OperationID] = op.Seq
}

func sortBySeq(ops []*domain.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Seq < ops[j].Seq
	})
}

// cloneOperation copies op including its amounts so callers cannot
// mutate stored state.
func cloneOperation(op *domain.Operation) *domain.Operation {
	c := *op
	if op.Amount != nil {
		c.Amount = op.Amount.Clone()
	}
	if op.Net != nil {
		c.Net = op.Net.Clone()
	}
	if op.Tax != nil {
		c.Tax = op.Tax.Clone()
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.OperationStore = (*OperationStore)(nil)
