package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

// TaxEventStore is an in-memory implementation of storage.TaxEventStore.
type TaxEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TaxEvent // keyed by operation_id
}

// NewTaxEventStore creates a new in-memory tax event store.
func NewTaxEventStore() *TaxEventStore {
	return &TaxEventStore{
		data: make(map[string]*domain.TaxEvent),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *TaxEventStore) InsertBulk(_ context.Context, events []*domain.TaxEvent) error {
	for _, e := range events {
		if !storage.ValidTaxEvent(e) {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]bool, len(events))
	for _, e := range events {
		if _, exists := s.data[e.OperationID]; exists || batch[e.OperationID] {
			return storage.ErrDuplicateKey
		}
		batch[e.OperationID] = true
	}

	for _, e := range events {
		s.data[e.OperationID] = cloneTaxEvent(e)
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *TaxEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.TaxEvent, error) {
	return s.filter(func(e *domain.TaxEvent) bool {
		return e.TimestampMs >= start && e.TimestampMs <= end
	}), nil
}

// GetBySeller retrieves all events paid by seller.
func (s *TaxEventStore) GetBySeller(_ context.Context, seller domain.Address) ([]*domain.TaxEvent, error) {
	return s.filter(func(e *domain.TaxEvent) bool {
		return e.Seller == seller
	}), nil
}

// TotalTax returns the sum of collected tax over all events.
func (s *TaxEventStore) TotalTax(_ context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := new(uint256.Int)
	for _, e := range s.data {
		total.Add(total, e.Tax)
	}
	return total, nil
}

func (s *TaxEventStore) filter(match func(*domain.TaxEvent) bool) []*domain.TaxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TaxEvent
	for _, e := range s.data {
		if match(e) {
			result = append(result, cloneTaxEvent(e))
		}
	}

	// Sort by timestamp ASC, seq breaks ties
	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].Seq < result[j].Seq
	})
	return result
}

func cloneTaxEvent(e *domain.TaxEvent) *domain.TaxEvent {
	c := *e
	c.Gross = e.Gross.Clone()
	c.Tax = e.Tax.Clone()
	return &c
}

// Verify interface compliance at compile time.
var _ storage.TaxEventStore = (*TaxEventStore)(nil)
