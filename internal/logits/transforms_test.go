package logits

import (
	"math"
	"testing"
)

func TestTopKOrderingAndTies(t *testing.T) {
	t.Parallel()

	row := []float32{1, 4, 4, 2, 9}
	idx, val := TopK(row, 3, 1, nil, nil)

	wantIdx := []int32{4, 1, 2}
	wantVal := []float32{9, 4, 4}
	for i := range wantIdx {
		if idx[i] != wantIdx[i] || val[i] != wantVal[i] {
			t.Fatalf("slot %d: got (%d, %v), want (%d, %v)", i, idx[i], val[i], wantIdx[i], wantVal[i])
		}
	}
}

func TestTopKClampsToRow(t *testing.T) {
	t.Parallel()

	row := []float32{3, 1}
	idx, _ := TopK(row, 10, 1, nil, nil)
	if len(idx) != 2 {
		t.Fatalf("got %d entries, want 2", len(idx))
	}
}

func TestTopKAppliesInverseTemperature(t *testing.T) {
	t.Parallel()

	row := []float32{2, 8}
	_, val := TopK(row, 2, 0.5, nil, nil)
	if val[0] != 4 || val[1] != 1 {
		t.Fatalf("scaled values = %v, want [4 1]", val)
	}
}

func TestSoftmaxShortlist(t *testing.T) {
	t.Parallel()

	prob := SoftmaxShortlist([]float32{2, 1, 0}, nil)
	var sum float64
	for i := 1; i < len(prob); i++ {
		if prob[i] > prob[i-1] {
			t.Fatalf("probabilities not descending: %v", prob)
		}
	}
	for _, p := range prob {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("shortlist sums to %v", sum)
	}
}

func TestTopPCut(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		prob []float64
		p    float32
		want int
	}{
		{name: "dominant head", prob: []float64{0.9, 0.05, 0.05}, p: 0.5, want: 1},
		{name: "two needed", prob: []float64{0.4, 0.3, 0.2, 0.1}, p: 0.6, want: 2},
		{name: "p of one keeps all", prob: []float64{0.5, 0.5}, p: 1, want: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := TopPCut(tc.prob, tc.p); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRenormalize(t *testing.T) {
	t.Parallel()

	prob := []float64{0.4, 0.3, 0.2, 0.1}
	Renormalize(prob, 2)
	if math.Abs(prob[0]+prob[1]-1) > 1e-9 {
		t.Fatalf("prefix sums to %v after renormalize", prob[0]+prob[1])
	}
}
