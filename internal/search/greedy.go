package search

import (
	"math/rand"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/logits"
)

// GreedySearch advances one sequence per batch row by argmax or by
// temperature sampling. Rows that have emitted EOS keep receiving the pad
// token until every row is finished.
type GreedySearch struct {
	Search

	nextTokens   []int32
	eosSeen      []bool
	notDoneCount int

	rng *rand.Rand

	// sampling scratch, reused across steps
	topIdx []int32
	topVal []float32
	prob   []float64

	nextTokensRoam *device.RoamingArray[int32]
}

// NewGreedySearch opens a greedy search. NumBeams must be 1 (zero is
// treated as 1); beam search is a separate variant.
func NewGreedySearch(params Params, dev *device.Device) (*GreedySearch, error) {
	if params.NumBeams == 0 {
		params.NumBeams = 1
	}
	if params.NumBeams != 1 {
		return nil, newParamError("greedy search requires num beams == 1")
	}
	base, err := newSearch(params, dev)
	if err != nil {
		return nil, err
	}
	g := &GreedySearch{
		Search:       *base,
		nextTokens:   make([]int32, params.BatchSize),
		eosSeen:      make([]bool, params.BatchSize),
		notDoneCount: params.BatchSize,
		rng:          rand.New(rand.NewSource(params.Seed)),
	}
	return g, nil
}

// NextTokens is the token chosen for each batch row this step.
func (g *GreedySearch) NextTokens() []int32 { return g.nextTokens }

// NextTokensArray wraps the chosen tokens for cross-device callers.
func (g *GreedySearch) NextTokensArray() *device.RoamingArray[int32] {
	if g.nextTokensRoam == nil {
		g.nextTokensRoam = device.Roam[int32](g.dev)
	}
	g.nextTokensRoam.SetHost(g.nextTokens)
	return g.nextTokensRoam
}

// SelectTop picks the argmax of every row. Ties break toward the lowest
// token id.
func (g *GreedySearch) SelectTop() {
	for batch := 0; batch < g.params.BatchSize; batch++ {
		if g.eosSeen[batch] {
			g.nextTokens[batch] = g.params.PadTokenID
			continue
		}
		best := int32(logits.Argmax(g.Scores(batch)))
		g.setToken(batch, best)
	}
	g.appendNextTokens()
}

// SampleTopK scales the row by 1/temperature, keeps the k highest
// tokens, re-softmaxes the shortlist, and samples one.
func (g *GreedySearch) SampleTopK(k int, temperature float32) {
	if temperature <= 0 {
		g.SelectTop()
		return
	}
	if k <= 0 {
		k = g.params.VocabSize
	}
	invTemp := 1 / temperature
	for batch := 0; batch < g.params.BatchSize; batch++ {
		if g.eosSeen[batch] {
			g.nextTokens[batch] = g.params.PadTokenID
			continue
		}
		g.topIdx, g.topVal = logits.TopK(g.Scores(batch), k, invTemp, g.topIdx, g.topVal)
		g.prob = logits.SoftmaxShortlist(g.topVal, g.prob)
		g.setToken(batch, g.draw(g.topIdx, g.prob, len(g.prob)))
	}
	g.appendNextTokens()
}

// SampleTopP scales by 1/temperature, softmaxes, and samples from the
// smallest descending prefix whose cumulative probability reaches p.
func (g *GreedySearch) SampleTopP(p, temperature float32) {
	if temperature <= 0 {
		g.SelectTop()
		return
	}
	invTemp := 1 / temperature
	for batch := 0; batch < g.params.BatchSize; batch++ {
		if g.eosSeen[batch] {
			g.nextTokens[batch] = g.params.PadTokenID
			continue
		}
		// Sorting the full vocab row: reuse the top-k selection with
		// k = vocab so the shortlist is the whole row in descending
		// order, then cut at p.
		g.topIdx, g.topVal = logits.TopK(g.Scores(batch), g.params.VocabSize, invTemp, g.topIdx, g.topVal)
		g.prob = logits.SoftmaxShortlist(g.topVal, g.prob)
		cut := logits.TopPCut(g.prob, p)
		logits.Renormalize(g.prob, cut)
		g.setToken(batch, g.draw(g.topIdx, g.prob, cut))
	}
	g.appendNextTokens()
}

func (g *GreedySearch) draw(idx []int32, prob []float64, n int) int32 {
	if n == 0 {
		return g.params.PadTokenID
	}
	r := g.rng.Float64()
	var c float64
	for i := 0; i < n; i++ {
		c += prob[i]
		if r <= c {
			return idx[i]
		}
	}
	return idx[n-1]
}

func (g *GreedySearch) setToken(batch int, token int32) {
	g.nextTokens[batch] = token
	if token == g.params.EOSTokenID {
		g.eosSeen[batch] = true
		g.notDoneCount--
		if g.notDoneCount == 0 {
			g.done = true
		}
	}
}

func (g *GreedySearch) appendNextTokens() {
	g.sequences.Append(g.nextTokens)
	if g.sequences.Length() == g.params.MaxLength {
		g.done = true
	}
}
