package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

// OperationStore implements storage.OperationStore using PostgreSQL.
type OperationStore struct {
	pool *Pool
}

// NewOperationStore creates a new OperationStore.
func NewOperationStore(pool *Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OperationStore = (*OperationStore)(nil)

const insertOperationQuery = `
	INSERT INTO operations (
		seq, operation_id, kind, caller, from_addr, to_addr,
		amount, net, tax, flag, timestamp_ms
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7::text::numeric, $8::text::numeric, $9::text::numeric, $10, $11
	)
`

const selectOperationColumns = `
	SELECT seq, operation_id, kind, caller, from_addr, to_addr,
		amount::text, net::text, tax::text, flag, timestamp_ms
	FROM operations
`

// Insert adds a new operation. Returns ErrDuplicateKey if seq or operation_id exists.
func (s *OperationStore) Insert(ctx context.Context, op *domain.Operation) error {
	if !storage.ValidOperation(op) {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertOperationQuery, operationArgs(op)...)
	return insertError(err, "insert operation")
}

// InsertBulk adds multiple operations atomically. Fails entire batch on any duplicate.
func (s *OperationStore) InsertBulk(ctx context.Context, ops []*domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if !storage.ValidOperation(op) {
			return storage.ErrInvalidInput
		}
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, op := range ops {
			_, err := tx.Exec(ctx, insertOperationQuery, operationArgs(op)...)
			if err := insertError(err, "insert operation in bulk"); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case isOutOfRangeError(err):
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// GetBySeq retrieves an operation by sequence number. Returns ErrNotFound if not exists.
func (s *OperationStore) GetBySeq(ctx context.Context, seq int64) (*domain.Operation, error) {
	row := s.pool.QueryRow(ctx, selectOperationColumns+` WHERE seq = $1`, seq)
	op, err := scanOperation(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

// GetRange retrieves operations with seq in [fromSeq, toSeq], ordered by seq ASC.
func (s *OperationStore) GetRange(ctx context.Context, fromSeq, toSeq int64) ([]*domain.Operation, error) {
	return s.query(ctx, selectOperationColumns+` WHERE seq >= $1 AND seq <= $2 ORDER BY seq ASC`, fromSeq, toSeq)
}

// GetAll retrieves the full journal ordered by seq ASC.
func (s *OperationStore) GetAll(ctx context.Context) ([]*domain.Operation, error) {
	return s.query(ctx, selectOperationColumns+` ORDER BY seq ASC`)
}

// LastSeq returns the highest stored seq, or 0 for an empty journal.
func (s *OperationStore) LastSeq(ctx context.Context) (int64, error) {
	var last int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM operations`).Scan(&last); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return last, nil
}

func (s *OperationStore) query(ctx context.Context, query string, args ...any) ([]*domain.Operation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var result []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return result, nil
}

func operationArgs(op *domain.Operation) []any {
	return []any{
		op.Seq, op.OperationID, string(op.Kind),
		op.Caller.String(), op.From.String(), op.To.String(),
		numericText(op.Amount), numericText(op.Net), numericText(op.Tax),
		op.Flag, op.TimestampMs,
	}
}

func scanOperation(row pgx.Row) (*domain.Operation, error) {
	var (
		op               domain.Operation
		kind             string
		caller, from, to string
		amount, net, tax *string
	)
	err := row.Scan(
		&op.Seq, &op.OperationID, &kind, &caller, &from, &to,
		&amount, &net, &tax, &op.Flag, &op.TimestampMs,
	)
	if err != nil {
		return nil, err
	}
	op.Kind = domain.OperationKind(kind)

	if op.Caller, err = domain.ParseAddress(caller); err != nil {
		return nil, fmt.Errorf("caller: %w", err)
	}
	if op.From, err = domain.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("from_addr: %w", err)
	}
	if op.To, err = domain.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("to_addr: %w", err)
	}
	if op.Amount, err = parseNumeric(amount); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if op.Net, err = parseNumeric(net); err != nil {
		return nil, fmt.Errorf("net: %w", err)
	}
	if op.Tax, err = parseNumeric(tax); err != nil {
		return nil, fmt.Errorf("tax: %w", err)
	}
	return &op, nil
}

// numericText renders an amount for a NUMERIC column. nil maps to NULL.
func numericText(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

func parseNumeric(s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	return uint256.FromDecimal(*s)
}
