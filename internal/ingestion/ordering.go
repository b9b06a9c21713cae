package ingestion

import (
	"sort"

	"reflection-token-lab/internal/domain"
)

// SeqBuffer holds operations received ahead of a seq gap and releases them
// once the journal is contiguous.
type SeqBuffer struct {
	next    int64 // seq expected next
	pending map[int64]*domain.Operation
}

// NewSeqBuffer creates a buffer expecting afterSeq+1 next.
func NewSeqBuffer(afterSeq int64) *SeqBuffer {
	return &SeqBuffer{next: afterSeq + 1, pending: make(map[int64]*domain.Operation)}
}

// Next returns the seq the buffer waits for.
func (b *SeqBuffer) Next() int64 { return b.next }

// Len returns the number of buffered operations.
func (b *SeqBuffer) Len() int { return len(b.pending) }

// Push buffers op. It returns false for an operation already released or
// already buffered.
func (b *SeqBuffer) Push(op *domain.Operation) bool {
	if op.Seq < b.next {
		return false
	}
	if _, ok := b.pending[op.Seq]; ok {
		return false
	}
	b.pending[op.Seq] = op
	return true
}

// Ready removes and returns the contiguous run starting at Next.
func (b *SeqBuffer) Ready() []*domain.Operation {
	var out []*domain.Operation
	for {
		op, ok := b.pending[b.next]
		if !ok {
			return out
		}
		delete(b.pending, b.next)
		out = append(out, op)
		b.next++
	}
}

// Gap returns the missing seq range [from, to] before the lowest buffered
// operation. ok is false when nothing is missing.
func (b *SeqBuffer) Gap() (from, to int64, ok bool) {
	if len(b.pending) == 0 {
		return 0, 0, false
	}
	lowest := b.Seqs()[0]
	if lowest == b.next {
		return 0, 0, false
	}
	return b.next, lowest - 1, true
}

// Seqs returns the buffered seqs in ascending order.
func (b *SeqBuffer) Seqs() []int64 {
	seqs := make([]int64, 0, len(b.pending))
	for seq := range b.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
