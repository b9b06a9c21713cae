package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// ComputeOperationID computes a deterministic operation_id using SHA256.
// Formula: SHA256(seq|kind|caller|from|to|amount|timestamp_ms)
// Returns hex-encoded hash (64 characters). A nil amount hashes as 0.
func ComputeOperationID(
	seq int64,
	kind domain.OperationKind,
	caller, from, to domain.Address,
	amount *uint256.Int,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%d",
		seq,
		string(kind),
		caller.String(),
		from.String(),
		to.String(),
		domain.ZeroIfNil(amount).Dec(),
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// OperationIDOf computes the ID of a journal entry from its own fields.
func OperationIDOf(op *domain.Operation) string {
	return ComputeOperationID(op.Seq, op.Kind, op.Caller, op.From, op.To, op.Amount, op.TimestampMs)
}
