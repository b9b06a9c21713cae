package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/storage"
)

func newTransferOp(seq int64, amount string) *domain.Operation {
	a := domain.MustParseUnits(amount, domain.DefaultDecimals)
	tax := new(uint256.Int).Div(new(uint256.Int).Mul(a, uint256.NewInt(5)), uint256.NewInt(100))
	return &domain.Operation{
		Seq:         seq,
		OperationID: fmt.Sprintf("op-%03d", seq),
		Kind:        domain.OperationTransfer,
		Caller:      domain.AddressFromSeed("addr1"),
		From:        domain.AddressFromSeed("addr1"),
		To:          domain.AddressFromSeed("pair"),
		Amount:      a,
		Net:         new(uint256.Int).Sub(a, tax),
		Tax:         tax,
		TimestampMs: 1700000000000 + seq*1000,
	}
}

func TestOperationStore_InsertAndGetBySeq(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)
	ctx := context.Background()

	// 1,000,000e18 does not fit in int64, exercises NUMERIC(78,0)
	op := newTransferOp(1, "1000000")
	require.NoError(t, store.Insert(ctx, op))

	got, err := store.GetBySeq(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, op.OperationID, got.OperationID)
	assert.Equal(t, op.Kind, got.Kind)
	assert.Equal(t, op.Caller, got.Caller)
	assert.Equal(t, op.From, got.From)
	assert.Equal(t, op.To, got.To)
	assert.True(t, op.Amount.Eq(got.Amount), "amount %s != %s", op.Amount, got.Amount)
	assert.True(t, op.Net.Eq(got.Net))
	assert.True(t, op.Tax.Eq(got.Tax))
	assert.Equal(t, op.TimestampMs, got.TimestampMs)
}

func TestOperationStore_NullAmounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)
	ctx := context.Background()

	op := &domain.Operation{
		Seq:         1,
		OperationID: "launch-1",
		Kind:        domain.OperationLaunch,
		Caller:      domain.AddressFromSeed("owner"),
		TimestampMs: 1700000000000,
	}
	require.NoError(t, store.Insert(ctx, op))

	got, err := store.GetBySeq(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got.Amount)
	assert.Nil(t, got.Tax)
	assert.True(t, got.From.IsZero())
}

func TestOperationStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTransferOp(1, "10")))

	err := store.Insert(ctx, newTransferOp(1, "10"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	dupID := newTransferOp(2, "10")
	dupID.OperationID = "op-001"
	err = store.Insert(ctx, dupID)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestOperationStore_GetBySeqNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)

	_, err := store.GetBySeq(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOperationStore_InsertBulkRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTransferOp(3, "1")))

	err := store.InsertBulk(ctx, []*domain.Operation{
		newTransferOp(1, "1"),
		newTransferOp(2, "1"),
		newTransferOp(3, "1"),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed batch must not leave rows behind")
}

func TestOperationStore_RangeAndLastSeq(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOperationStore(pool)
	ctx := context.Background()

	last, err := store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	var ops []*domain.Operation
	for seq := int64(1); seq <= 5; seq++ {
		ops = append(ops, newTransferOp(seq, "100"))
	}
	require.NoError(t, store.InsertBulk(ctx, ops))

	got, err := store.GetRange(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].Seq)
	assert.Equal(t, int64(4), got[2].Seq)

	last, err = store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestNewPool_ApplicationName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	var name string
	err := pool.QueryRow(context.Background(), `SELECT current_setting('application_name')`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, ApplicationName, name)
}
