package search

import (
	"cmp"

	pq "github.com/emirpasic/gods/v2/queues/priorityqueue"

	"github.com/samcharles93/loom/internal/device"
)

// BeamSearch keeps num_beams live continuations per batch row and lets a
// BeamScorer prune them into finished hypotheses.
type BeamSearch struct {
	Search
	scorer *BeamScorer

	// per-batch candidate buffers, 2*num_beams wide, reused each step
	topScores  []float32
	topTokens  []int32
	topIndices []int32

	nextTokensRoam  *device.RoamingArray[int32]
	nextIndicesRoam *device.RoamingArray[int32]
}

// NewBeamSearch opens a beam search. NumBeams must be greater than 1;
// drivers route single-beam requests to GreedySearch instead.
func NewBeamSearch(params Params, dev *device.Device) (*BeamSearch, error) {
	if params.NumBeams < 2 {
		return nil, newParamError("beam search requires num beams > 1, use greedy search for a single beam")
	}
	if params.LengthPenalty == 0 {
		params.LengthPenalty = 1
	}
	base, err := newSearch(params, dev)
	if err != nil {
		return nil, err
	}
	topK := 2 * params.NumBeams
	return &BeamSearch{
		Search:     *base,
		scorer:     NewBeamScorer(params),
		topScores:  make([]float32, params.BatchSize*topK),
		topTokens:  make([]int32, params.BatchSize*topK),
		topIndices: make([]int32, params.BatchSize*topK),
	}, nil
}

// NextTokens is the token appended to each beam this step.
func (b *BeamSearch) NextTokens() []int32 { return b.scorer.NextTokens() }

// NextIndices is the parent beam each next token continues from.
func (b *BeamSearch) NextIndices() []int32 { return b.scorer.NextIndices() }

// NextTokensArray wraps NextTokens for cross-device callers.
func (b *BeamSearch) NextTokensArray() *device.RoamingArray[int32] {
	if b.nextTokensRoam == nil {
		b.nextTokensRoam = device.Roam[int32](b.dev)
	}
	b.nextTokensRoam.SetHost(b.scorer.NextTokens())
	return b.nextTokensRoam
}

// NextIndicesArray wraps NextIndices for cross-device callers.
func (b *BeamSearch) NextIndicesArray() *device.RoamingArray[int32] {
	if b.nextIndicesRoam == nil {
		b.nextIndicesRoam = device.Roam[int32](b.dev)
	}
	b.nextIndicesRoam.SetHost(b.scorer.NextIndices())
	return b.nextIndicesRoam
}

type scoredIndex struct {
	score float32
	index int32 // flat index into the num_beams * vocab_size block
}

// Higher score first; equal scores break toward the lower flat index.
func compareScoredIndex(a, b scoredIndex) int {
	if c := cmp.Compare(b.score, a.score); c != 0 {
		return c
	}
	return cmp.Compare(a.index, b.index)
}

// SelectTop runs one beam step: broadcast-add the cumulative beam scores,
// pick the top 2*num_beams candidates per batch row, hand them to the
// scorer, and append the surviving continuations to the reindexed
// sequence rows.
func (b *BeamSearch) SelectTop() {
	beamScores := b.scorer.NextScores()

	// next_token_scores += beam_scores[:, None]
	offset := 0
	for row := 0; row < b.params.BatchBeamSize(); row++ {
		add := beamScores[row]
		for k := 0; k < b.params.VocabSize; k++ {
			b.nextTokenScores[offset] += add
			offset++
		}
	}

	topK := 2 * b.params.NumBeams
	block := b.params.NumBeams * b.params.VocabSize
	for batch := 0; batch < b.params.BatchSize; batch++ {
		rowScores := b.nextTokenScores[batch*block : (batch+1)*block]

		q := pq.NewWith(compareScoredIndex)
		for i, score := range rowScores {
			q.Enqueue(scoredIndex{score: score, index: int32(i)})
		}

		for i := 0; i < topK; i++ {
			cand, _ := q.Dequeue()
			b.topScores[batch*topK+i] = cand.score
			b.topTokens[batch*topK+i] = cand.index % int32(b.params.VocabSize)
			b.topIndices[batch*topK+i] = cand.index / int32(b.params.VocabSize)
		}
	}

	b.scorer.Process(b.sequences, b.topScores, b.topTokens, b.topIndices)
	b.sequences.AppendReindexed(b.scorer.NextIndices(), b.scorer.NextTokens())

	if b.sequences.Length() == b.params.MaxLength || b.scorer.Done() {
		b.done = true
	}
}

// Finalize emits the numReturn best finished sequences per batch row into
// output (padded to MaxLength) and their normalized scores into scores
// when non-nil.
func (b *BeamSearch) Finalize(numReturn int, output []int32, scores []float32) error {
	return b.scorer.Finalize(b.sequences, numReturn, output, scores)
}
