package ingestion

import (
	"testing"

	"reflection-token-lab/internal/domain"
)

func op(seq int64) *domain.Operation {
	return &domain.Operation{Seq: seq}
}

func seqsOf(ops []*domain.Operation) []int64 {
	out := make([]int64, len(ops))
	for i, o := range ops {
		out[i] = o.Seq
	}
	return out
}

func equalSeqs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeqBuffer_ReleasesContiguousRun(t *testing.T) {
	b := NewSeqBuffer(0)

	b.Push(op(3))
	b.Push(op(2))
	if got := b.Ready(); len(got) != 0 {
		t.Fatalf("Ready before seq 1 = %v, want none", seqsOf(got))
	}

	b.Push(op(1))
	if got := seqsOf(b.Ready()); !equalSeqs(got, []int64{1, 2, 3}) {
		t.Errorf("Ready = %v, want [1 2 3]", got)
	}
	if b.Next() != 4 {
		t.Errorf("Next = %d, want 4", b.Next())
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestSeqBuffer_RejectsDuplicates(t *testing.T) {
	b := NewSeqBuffer(5)

	if b.Push(op(5)) {
		t.Error("Push of released seq should return false")
	}
	if !b.Push(op(7)) {
		t.Error("first Push of seq 7 should return true")
	}
	if b.Push(op(7)) {
		t.Error("second Push of seq 7 should return false")
	}
}

func TestSeqBuffer_Gap(t *testing.T) {
	b := NewSeqBuffer(2)

	if _, _, ok := b.Gap(); ok {
		t.Error("empty buffer should report no gap")
	}

	b.Push(op(9))
	b.Push(op(6))
	from, to, ok := b.Gap()
	if !ok || from != 3 || to != 5 {
		t.Errorf("Gap = (%d, %d, %v), want (3, 5, true)", from, to, ok)
	}

	b.Push(op(3))
	b.Push(op(4))
	b.Push(op(5))
	if _, _, ok := b.Gap(); ok {
		t.Error("contiguous head should report no gap")
	}
	if got := seqsOf(b.Ready()); !equalSeqs(got, []int64{3, 4, 5, 6}) {
		t.Errorf("Ready = %v, want [3 4 5 6]", got)
	}
	if from, to, _ := b.Gap(); from != 7 || to != 8 {
		t.Errorf("Gap = (%d, %d), want (7, 8)", from, to)
	}
}
