package search

import (
	"slices"
	"testing"

	"github.com/samcharles93/loom/internal/logits"
)

// stepLogits builds a full (batchBeam, 1, vocab) buffer from one peaked
// row per batch entry.
func stepLogits(vocab int, peaks ...int32) []float32 {
	out := make([]float32, len(peaks)*vocab)
	for i, p := range peaks {
		out[i*vocab+int(p)] = 10
	}
	return out
}

func TestGreedySingleBatch(t *testing.T) {
	t.Parallel()

	// One prompt, the model always favors 204; generation fills up to
	// max length.
	const vocab = 1000
	params := greedyParams(1, 4, 10, vocab, []int32{0, 0, 0, 52})
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	steps := 0
	for !g.IsDone() {
		if err := g.SetLogits(stepLogits(vocab, 204)); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SelectTop()
		steps++
		if steps > params.MaxLength {
			t.Fatal("search failed to terminate")
		}
	}

	want := []int32{0, 0, 0, 52, 204, 204, 204, 204, 204, 204}
	if got := g.Sequence(0); !slices.Equal(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
	if steps != params.MaxLength-params.SequenceLength {
		t.Fatalf("took %d steps, want %d", steps, params.MaxLength-params.SequenceLength)
	}
}

func TestGreedyMixedBatch(t *testing.T) {
	t.Parallel()

	// Two prompts with different continuations: the second row follows
	// 731 with 731 once, then repeats 114.
	const vocab = 1000
	params := greedyParams(2, 4, 10, vocab, []int32{
		0, 0, 0, 52,
		0, 0, 195, 731,
	})
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	row1 := []int32{731, 114, 114, 114, 114, 114}
	for step := 0; !g.IsDone(); step++ {
		if err := g.SetLogits(stepLogits(vocab, 204, row1[step])); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SelectTop()
	}

	want := [][]int32{
		{0, 0, 0, 52, 204, 204, 204, 204, 204, 204},
		{0, 0, 195, 731, 731, 114, 114, 114, 114, 114},
	}
	for i, w := range want {
		if got := g.Sequence(i); !slices.Equal(got, w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
}

func TestGreedyEOSTurnsToPad(t *testing.T) {
	t.Parallel()

	const vocab = 200
	const eos = 100
	params := greedyParams(2, 2, 8, vocab, []int32{5, 6, 7, 8})
	params.EOSTokenID = eos
	params.PadTokenID = 0
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	// Row 1 hits EOS on its third step; row 0 keeps generating 9s.
	row1 := []int32{11, 12, eos, 13, 14, 15}
	for step := 0; !g.IsDone(); step++ {
		if err := g.SetLogits(stepLogits(vocab, 9, row1[step])); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SelectTop()

		if step > 2 && g.NextTokens()[1] != 0 {
			t.Fatalf("step %d: finished row emitted %d, want pad", step, g.NextTokens()[1])
		}
	}

	want := [][]int32{
		{5, 6, 9, 9, 9, 9, 9, 9},
		{7, 8, 11, 12, eos, 0, 0, 0},
	}
	for i, w := range want {
		if got := g.Sequence(i); !slices.Equal(got, w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
}

func TestGreedyAllRowsEOSStops(t *testing.T) {
	t.Parallel()

	const vocab = 50
	params := greedyParams(2, 2, 20, vocab, []int32{1, 2, 3, 4})
	params.EOSTokenID = 7
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	// Both rows emit EOS on step two.
	plan := [][2]int32{{5, 6}, {7, 7}}
	steps := 0
	for !g.IsDone() {
		p := plan[steps]
		if err := g.SetLogits(stepLogits(vocab, p[0], p[1])); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SelectTop()
		steps++
	}

	if steps != 2 {
		t.Fatalf("stopped after %d steps, want 2", steps)
	}
	if g.SequenceLength() != 4 {
		t.Fatalf("length = %d, want 4", g.SequenceLength())
	}
}

func TestGreedyMinLengthDelaysEOS(t *testing.T) {
	t.Parallel()

	// The model prefers EOS from the first step, but MinLength keeps it
	// unreachable until length five.
	const vocab = 10
	const eos = 9
	params := greedyParams(1, 2, 10, vocab, []int32{1, 2})
	params.EOSTokenID = eos
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}
	g.Use(logits.MinLength{Min: 5})

	for !g.IsDone() {
		if err := g.SetLogits(stepLogits(vocab, eos)); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SelectTop()

		if g.SequenceLength() < 5 && g.NextTokens()[0] == eos {
			t.Fatalf("EOS selected at length %d", g.SequenceLength())
		}
	}

	// Masked steps fall back to the lowest-id token of the flat rest.
	want := []int32{1, 2, 0, 0, 0, eos}
	if got := g.Sequence(0); !slices.Equal(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestSampleTopKIsDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	const vocab = 32
	run := func(seed int64) []int32 {
		params := greedyParams(1, 2, 12, vocab, []int32{1, 2})
		params.Seed = seed
		g, err := NewGreedySearch(params, testDevice(t))
		if err != nil {
			t.Fatalf("new greedy: %v", err)
		}
		for !g.IsDone() {
			l := make([]float32, vocab)
			for i := range l {
				l[i] = float32(i % 7)
			}
			if err := g.SetLogits(l); err != nil {
				t.Fatalf("set logits: %v", err)
			}
			g.SampleTopK(8, 0.9)
		}
		return slices.Clone(g.Sequence(0))
	}

	a, b := run(42), run(42)
	if !slices.Equal(a, b) {
		t.Fatalf("same seed diverged: %v vs %v", a, b)
	}
}

func TestSampleTopKConcentratesOnPeak(t *testing.T) {
	t.Parallel()

	// With one overwhelming logit the shortlist is effectively a point
	// mass, so sampling must follow it.
	const vocab = 16
	params := greedyParams(1, 2, 8, vocab, []int32{1, 2})
	params.Seed = 7
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	for !g.IsDone() {
		l := make([]float32, vocab)
		l[5] = 100
		if err := g.SetLogits(l); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SampleTopK(4, 1.0)
		if g.NextTokens()[0] != 5 {
			t.Fatalf("sampled %d, want 5", g.NextTokens()[0])
		}
	}
}

func TestSampleTopPConcentratesOnPeak(t *testing.T) {
	t.Parallel()

	const vocab = 16
	params := greedyParams(1, 2, 8, vocab, []int32{1, 2})
	params.Seed = 11
	g, err := NewGreedySearch(params, testDevice(t))
	if err != nil {
		t.Fatalf("new greedy: %v", err)
	}

	for !g.IsDone() {
		l := make([]float32, vocab)
		l[3] = 100
		if err := g.SetLogits(l); err != nil {
			t.Fatalf("set logits: %v", err)
		}
		g.SampleTopP(0.5, 1.0)
		if g.NextTokens()[0] != 3 {
			t.Fatalf("sampled %d, want 3", g.NextTokens()[0])
		}
	}
}

func TestGreedyRejectsMultipleBeams(t *testing.T) {
	t.Parallel()

	params := greedyParams(1, 2, 5, 4, []int32{0, 1})
	params.NumBeams = 3
	if _, err := NewGreedySearch(params, testDevice(t)); err == nil {
		t.Fatal("greedy search accepted num beams 3")
	}
}
