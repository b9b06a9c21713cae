package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

// TaxEventStore implements storage.TaxEventStore using ClickHouse.
// Amounts are stored as UInt256.
type TaxEventStore struct {
	conn *Conn
}

// NewTaxEventStore creates a new TaxEventStore.
func NewTaxEventStore(conn *Conn) *TaxEventStore {
	return &TaxEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TaxEventStore = (*TaxEventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate operation_id.
func (s *TaxEventStore) InsertBulk(ctx context.Context, events []*domain.TaxEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if !storage.ValidTaxEvent(e) {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.OperationID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.OperationID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness
	for _, e := range events {
		exists, err := s.exists(ctx, e.OperationID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tax_events (
			operation_id, seq, seller, pair, gross, tax, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.OperationID, e.Seq, e.Seller.String(), e.Pair.String(),
			e.Gross.ToBig(), e.Tax.ToBig(), e.TimestampMs,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TaxEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TaxEvent, error) {
	query := `
		SELECT operation_id, seq, seller, pair, gross, tax, timestamp_ms
		FROM tax_events
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTaxEvents(rows)
}

// GetBySeller retrieves all events paid by seller, ordered by timestamp ASC.
func (s *TaxEventStore) GetBySeller(ctx context.Context, seller domain.Address) ([]*domain.TaxEvent, error) {
	query := `
		SELECT operation_id, seq, seller, pair, gross, tax, timestamp_ms
		FROM tax_events
		WHERE seller = ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, seller.String())
	if err != nil {
		return nil, fmt.Errorf("query by seller: %w", err)
	}
	defer rows.Close()

	return scanTaxEvents(rows)
}

// TotalTax returns the sum of collected tax over all events.
func (s *TaxEventStore) TotalTax(ctx context.Context) (*uint256.Int, error) {
	var total big.Int
	if err := s.conn.QueryRow(ctx, `SELECT sum(tax) FROM tax_events`).Scan(&total); err != nil {
		return nil, fmt.Errorf("sum tax: %w", err)
	}
	v, overflow := uint256.FromBig(&total)
	if overflow {
		return nil, fmt.Errorf("sum tax: overflow")
	}
	return v, nil
}

// exists checks if an event with the given operation_id exists.
func (s *TaxEventStore) exists(ctx context.Context, operationID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM tax_events WHERE operation_id = ?`, operationID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTaxEvents scans multiple rows.
func scanTaxEvents(rows chRows) ([]*domain.TaxEvent, error) {
	var events []*domain.TaxEvent

	for rows.Next() {
		var (
			e            domain.TaxEvent
			seller, pair string
			gross, tax   big.Int
		)
		if err := rows.Scan(&e.OperationID, &e.Seq, &seller, &pair, &gross, &tax, &e.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		var err error
		if e.Seller, err = domain.ParseAddress(seller); err != nil {
			return nil, fmt.Errorf("seller: %w", err)
		}
		if e.Pair, err = domain.ParseAddress(pair); err != nil {
			return nil, fmt.Errorf("pair: %w", err)
		}
		var overflow bool
		if e.Gross, overflow = uint256.FromBig(&gross); overflow {
			return nil, fmt.Errorf("gross of %s: overflow", e.OperationID)
		}
		if e.Tax, overflow = uint256.FromBig(&tax); overflow {
			return nil, fmt.Errorf("tax of %s: overflow", e.OperationID)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return events, nil
}
