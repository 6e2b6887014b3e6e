package search

import (
	"slices"
	"testing"
)

func TestSequencesDuplicatePrompt(t *testing.T) {
	t.Parallel()

	s := NewSequences([]int32{1, 2, 3, 4, 5, 6}, 2, 2, 3, 8)

	if s.Length() != 3 {
		t.Fatalf("initial length = %d, want 3", s.Length())
	}
	want := [][]int32{{1, 2, 3}, {1, 2, 3}, {4, 5, 6}, {4, 5, 6}}
	for i, w := range want {
		if got := s.GetSequence(i); !slices.Equal(got, w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
}

func TestAppendGrowsByOne(t *testing.T) {
	t.Parallel()

	s := NewSequences([]int32{1, 2}, 2, 1, 1, 4)
	s.Append([]int32{7, 8})

	if s.Length() != 2 {
		t.Fatalf("length = %d, want 2", s.Length())
	}
	if got := s.GetSequence(0); !slices.Equal(got, []int32{1, 7}) {
		t.Fatalf("row 0 = %v", got)
	}
	if got := s.GetSequence(1); !slices.Equal(got, []int32{2, 8}) {
		t.Fatalf("row 1 = %v", got)
	}

	// Prior prefix survives further appends.
	s.Append([]int32{9, 9})
	if got := s.GetSequence(0); !slices.Equal(got, []int32{1, 7, 9}) {
		t.Fatalf("row 0 after second append = %v", got)
	}
}

func TestAppendReindexedFollowsParent(t *testing.T) {
	t.Parallel()

	// One batch entry, three beams.
	s := NewSequences([]int32{1, 2}, 1, 3, 2, 6)
	s.AppendReindexed([]int32{0, 0, 0}, []int32{10, 11, 12})
	// Rows now [1 2 10], [1 2 11], [1 2 12].

	old := make([][]int32, 3)
	for i := range old {
		old[i] = slices.Clone(s.GetSequence(i))
	}

	next := []int32{2, 0, 2}
	tokens := []int32{20, 21, 22}
	s.AppendReindexed(next, tokens)

	for i := range tokens {
		want := append(slices.Clone(old[next[i]]), tokens[i])
		if got := s.GetSequence(i); !slices.Equal(got, want) {
			t.Fatalf("row %d = %v, want %v", i, got, want)
		}
	}
	if s.Length() != 4 {
		t.Fatalf("length = %d, want 4", s.Length())
	}
}
