package logits

import (
	"math"
	"testing"
)

func TestLogSoftmaxIsStable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		row  []float32
	}{
		{name: "small values", row: []float32{0, 1, 2, 3}},
		{name: "large values", row: []float32{1000, 1001, 1002}},
		{name: "negative values", row: []float32{-500, -499, -501}},
		{name: "single entry", row: []float32{42}},
		{name: "uniform", row: []float32{5, 5, 5, 5, 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			row := append([]float32(nil), tc.row...)
			LogSoftmax(row)

			var sum float64
			for _, v := range row {
				if v > 0 {
					t.Fatalf("log-probability %v above zero", v)
				}
				sum += math.Exp(float64(v))
			}
			if math.Abs(sum-1) > 1e-5 {
				t.Fatalf("sum(exp(row)) = %v, want 1 within 1e-5", sum)
			}
		})
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	t.Parallel()

	row := []float32{3, 1, -2, 7, 0}
	Softmax(row)

	var sum float64
	for _, v := range row {
		if v < 0 {
			t.Fatalf("probability %v below zero", v)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("probabilities sum to %v, want 1", sum)
	}
}

func TestArgmaxTiesBreakLow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		row  []float32
		want int
	}{
		{name: "unique max", row: []float32{-1, 5, 3, 7, 2}, want: 3},
		{name: "tie picks lower index", row: []float32{1, 9, 9, 9}, want: 1},
		{name: "all equal", row: []float32{2, 2, 2}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Argmax(tc.row); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHasNaN(t *testing.T) {
	t.Parallel()

	if HasNaN([]float32{1, 2, 3}) {
		t.Fatal("clean row reported as NaN")
	}
	if !HasNaN([]float32{1, float32(math.NaN()), 3}) {
		t.Fatal("NaN row not detected")
	}
}
