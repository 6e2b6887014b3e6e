package model

import (
	"context"
	"fmt"

	"github.com/samcharles93/loom/internal/search"
)

// State owns the evolving feeds of one generation call. Construction
// builds position ids and the attention mask from the prompt, expands
// everything to BatchBeamSize by row repetition, and fills the search's
// per-beam prompt lengths. Each step the feeds shrink to a single token
// per beam and past-KV follows the selected parent beams.
type State struct {
	params search.Params
	sess   Session

	feeds Feeds

	// positions[i] is the absolute position the next generated token of
	// row i will occupy.
	positions []int32

	// pastScratch holds the spare KV buffers used while reindexing.
	pastScratch []KV

	firstRun bool
}

// NewState builds the first-step feeds. sequenceLengths must be the
// search's SequenceLengths buffer; it receives the per-row count of
// non-pad prompt tokens, duplicated across beams.
func NewState(sess Session, params search.Params, sequenceLengths []int32) (*State, error) {
	if want := params.BatchBeamSize(); len(sequenceLengths) != want {
		return nil, fmt.Errorf("sequence lengths buffer has %d entries, want %d", len(sequenceLengths), want)
	}

	batch := params.BatchSize
	beams := params.NumBeams
	seqLen := params.SequenceLength
	batchBeam := batch * beams

	s := &State{
		params:    params,
		sess:      sess,
		positions: make([]int32, batchBeam),
		firstRun:  true,
	}

	// Mask is 0 for pad tokens and 1 otherwise; position is the
	// cumulative non-pad count, 0 at pads.
	mask := make([]int32, batch*seqLen)
	positions := make([]int32, batch*seqLen)
	for i := 0; i < batch; i++ {
		var abs int32
		for j := 0; j < seqLen; j++ {
			k := i*seqLen + j
			if params.InputIDs[k] == params.PadTokenID {
				mask[k] = 0
				positions[k] = 0
			} else {
				mask[k] = 1
				positions[k] = abs
				abs++
			}
		}
		for b := 0; b < beams; b++ {
			sequenceLengths[i*beams+b] = abs
			s.positions[i*beams+b] = abs
		}
	}

	// Expand (batch, seqLen) rows to (batch*beams, seqLen).
	s.feeds = Feeds{
		InputIDs:      expandRows(params.InputIDs, batch, beams, seqLen),
		PositionIDs:   expandRows(positions, batch, beams, seqLen),
		AttentionMask: expandRows(mask, batch, beams, seqLen),
		StepLength:    seqLen,
		Past:          emptyPast(sess, batchBeam),
	}
	return s, nil
}

// Run submits one step. nextTokens and nextIndices come from the search;
// both are nil on the first call (the prompt step). nextIndices is nil on
// the greedy path. Returns the raw logits buffer for SetLogits.
func (s *State) Run(ctx context.Context, nextTokens, nextIndices []int32) ([]float32, error) {
	if !s.firstRun {
		s.updateFeeds(nextTokens, nextIndices)
	}
	fetches, err := s.sess.Run(ctx, &s.feeds)
	if err != nil {
		return nil, fmt.Errorf("inference session: %w", err)
	}
	s.adoptPresent(fetches.Present)
	s.firstRun = false
	return fetches.Logits, nil
}

// updateFeeds shrinks the feeds to one token per beam and extends the
// attention mask by a single live column.
func (s *State) updateFeeds(nextTokens, nextIndices []int32) {
	batchBeam := s.params.BatchBeamSize()

	if s.feeds.StepLength != 1 {
		s.feeds.InputIDs = make([]int32, batchBeam)
		s.feeds.PositionIDs = make([]int32, batchBeam)
		s.feeds.StepLength = 1
	}
	copy(s.feeds.InputIDs, nextTokens)
	for i := 0; i < batchBeam; i++ {
		s.feeds.PositionIDs[i] = s.positions[i]
		s.positions[i]++
	}

	oldCols := len(s.feeds.AttentionMask) / batchBeam
	mask := make([]int32, batchBeam*(oldCols+1))
	for i := 0; i < batchBeam; i++ {
		srcRow := i
		if nextIndices != nil {
			srcRow = int(nextIndices[i])
		}
		copy(mask[i*(oldCols+1):], s.feeds.AttentionMask[srcRow*oldCols:(srcRow+1)*oldCols])
		mask[i*(oldCols+1)+oldCols] = 1
	}
	s.feeds.AttentionMask = mask

	// Beams of one batch row share the same absolute position, so the
	// position buffer needs no reindexing, only the caches do.
	if nextIndices != nil {
		s.reindexPast(nextIndices)
	}
}

// adoptPresent makes this step's present-KV the next step's past-KV.
// Past and present stay disjoint buffers; rows are reindexed per step
// rather than shared.
func (s *State) adoptPresent(present []KV) {
	s.pastScratch = s.feeds.Past
	s.feeds.Past = present
}

// reindexPast re-permutes past-KV rows so each beam's cache follows its
// selected parent.
func (s *State) reindexPast(nextIndices []int32) {
	for l := range s.feeds.Past {
		src := s.feeds.Past[l]
		dst := s.spareKV(l, src)
		for i := range nextIndices {
			copy(dst.Row(i), src.Row(int(nextIndices[i])))
		}
		s.feeds.Past[l] = dst
		s.pastScratch[l] = src
	}
}

func (s *State) spareKV(l int, like KV) KV {
	if l < len(s.pastScratch) && len(s.pastScratch[l].Data) == len(like.Data) {
		spare := s.pastScratch[l]
		spare.NumHeads = like.NumHeads
		spare.SeqLen = like.SeqLen
		spare.HeadSize = like.HeadSize
		spare.BatchBeam = like.BatchBeam
		return spare
	}
	return KV{
		Data:      make([]float32, len(like.Data)),
		BatchBeam: like.BatchBeam,
		NumHeads:  like.NumHeads,
		SeqLen:    like.SeqLen,
		HeadSize:  like.HeadSize,
	}
}

// Feeds exposes the current feeds to sessions and tests.
func (s *State) Feeds() *Feeds { return &s.feeds }

func expandRows(src []int32, batch, beams, width int) []int32 {
	if beams == 1 {
		out := make([]int32, len(src))
		copy(out, src)
		return out
	}
	out := make([]int32, batch*beams*width)
	for i := 0; i < batch; i++ {
		row := src[i*width : (i+1)*width]
		for b := 0; b < beams; b++ {
			copy(out[(i*beams+b)*width:], row)
		}
	}
	return out
}

// emptyPast builds zero-length KV entries, two per layer (key and value).
func emptyPast(sess Session, batchBeam int) []KV {
	past := make([]KV, 2*sess.LayerCount())
	for i := range past {
		past[i] = KV{
			BatchBeam: batchBeam,
			NumHeads:  sess.HeadCount(),
			SeqLen:    0,
			HeadSize:  sess.HeadSize(),
		}
	}
	return past
}
