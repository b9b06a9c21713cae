package replay

import (
	"fmt"
	"sort"

	"reflection-token-lab/internal/domain"
)

// SortOperations orders operations by seq ASC.
func SortOperations(ops []*domain.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Seq < ops[j].Seq
	})
}

// CheckOrdering verifies that ops continue the journal after afterSeq:
// seqs are afterSeq+1, afterSeq+2, ... without gaps, and timestamps never
// decrease.
func CheckOrdering(ops []*domain.Operation, afterSeq int64) error {
	want := afterSeq + 1
	var lastTs int64
	for i, op := range ops {
		if op.Seq != want {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrInvalidOrdering, want, op.Seq)
		}
		if i > 0 && op.TimestampMs < lastTs {
			return fmt.Errorf("%w: seq %d timestamp %d before %d", ErrInvalidOrdering, op.Seq, op.TimestampMs, lastTs)
		}
		lastTs = op.TimestampMs
		want++
	}
	return nil
}
