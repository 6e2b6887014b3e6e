package search

import (
	"fmt"
	"math"
	"slices"
)

// hypothesis is a finished candidate: a full token vector plus its
// length-normalized score.
type hypothesis struct {
	tokens []int32
	score  float32
}

// beamHypotheses is the pool of finished candidates for one batch row.
// At most numBeams entries, kept sorted by score descending; once full,
// new candidates enter only by beating the worst. Equal scores keep the
// earlier candidate ahead.
type beamHypotheses struct {
	beams         []hypothesis
	numBeams      int
	lengthPenalty float32
	earlyStopping bool
	done          bool
}

func (h *beamHypotheses) worstScore() float32 {
	if len(h.beams) == 0 {
		return float32(math.Inf(-1))
	}
	return h.beams[len(h.beams)-1].score
}

// add inserts a candidate with cumulative log-probability sumLogProbs,
// normalizing by length^lengthPenalty. The token slice is owned by the
// pool afterwards.
func (h *beamHypotheses) add(tokens []int32, sumLogProbs float32) {
	score := sumLogProbs / pow32(float32(len(tokens)), h.lengthPenalty)
	if len(h.beams) == h.numBeams {
		if score <= h.worstScore() {
			return
		}
		h.beams = h.beams[:len(h.beams)-1]
	}
	pos := len(h.beams)
	for pos > 0 && h.beams[pos-1].score < score {
		pos--
	}
	h.beams = slices.Insert(h.beams, pos, hypothesis{tokens: tokens, score: score})
}

// canImprove reports whether a live beam with cumulative log-probability
// bestSumLogProbs could still beat the worst stored hypothesis. The
// normalization assumes the beam runs to maxLength.
func (h *beamHypotheses) canImprove(bestSumLogProbs float32, maxLength int) bool {
	if len(h.beams) < h.numBeams {
		return true
	}
	best := bestSumLogProbs / pow32(float32(maxLength), h.lengthPenalty)
	return h.worstScore() < best
}

func pow32(base, exp float32) float32 {
	if exp == 0 {
		return 1
	}
	return float32(math.Pow(float64(base), float64(exp)))
}

// BeamScorer routes top-2K candidates into next-beam state and the
// hypothesis pools, and assembles the final sequences.
type BeamScorer struct {
	params Params
	hyps   []beamHypotheses

	// nextBeamScores doubles as the cumulative per-beam log-probability
	// that SelectTop broadcasts onto the score table. The first beam of
	// every batch row starts at 0 and the rest at -Inf so the first
	// step diverges instead of picking num_beams copies of one token.
	nextBeamScores  []float32
	nextBeamTokens  []int32
	nextBeamIndices []int32
}

// NewBeamScorer builds the per-batch hypothesis pools and the working
// arrays. A zero LengthPenalty exponent disables normalization;
// NewBeamSearch maps an unset penalty to the conventional 1 before the
// scorer is constructed.
func NewBeamScorer(params Params) *BeamScorer {
	batchBeamSize := params.BatchBeamSize()
	s := &BeamScorer{
		params:          params,
		hyps:            make([]beamHypotheses, params.BatchSize),
		nextBeamScores:  make([]float32, batchBeamSize),
		nextBeamTokens:  make([]int32, batchBeamSize),
		nextBeamIndices: make([]int32, batchBeamSize),
	}
	for i := range s.hyps {
		s.hyps[i] = beamHypotheses{
			beams:         make([]hypothesis, 0, params.NumBeams),
			numBeams:      params.NumBeams,
			lengthPenalty: params.LengthPenalty,
			earlyStopping: params.EarlyStopping,
		}
	}
	negInf := float32(math.Inf(-1))
	for i := 0; i < params.BatchSize; i++ {
		for j := 1; j < params.NumBeams; j++ {
			s.nextBeamScores[i*params.NumBeams+j] = negInf
		}
	}
	return s
}

// NextScores is the cumulative log-probability of each live beam.
func (s *BeamScorer) NextScores() []float32 { return s.nextBeamScores }

// NextTokens is the token appended to each beam this step.
func (s *BeamScorer) NextTokens() []int32 { return s.nextBeamTokens }

// NextIndices is the parent row (global batch-beam index) each beam
// continues from this step.
func (s *BeamScorer) NextIndices() []int32 { return s.nextBeamIndices }

// Done reports whether every batch row's pool has closed.
func (s *BeamScorer) Done() bool {
	for i := range s.hyps {
		if !s.hyps[i].done {
			return false
		}
	}
	return true
}

// Process consumes the top-2K candidates of every batch row, sorted
// descending by score. EOS candidates that would occupy a beam slot are
// finalized into the hypothesis pool; the rest fill the next-beam state
// until num_beams slots are taken. Done rows are padded to keep the
// working arrays rectangular.
func (s *BeamScorer) Process(seqs *Sequences, nextScores []float32, nextTokens, nextIndices []int32) {
	numBeams := s.params.NumBeams
	topK := 2 * numBeams

	for batch := 0; batch < s.params.BatchSize; batch++ {
		hyp := &s.hyps[batch]
		if hyp.done {
			for j := 0; j < numBeams; j++ {
				slot := batch*numBeams + j
				s.nextBeamScores[slot] = 0
				s.nextBeamTokens[slot] = s.params.PadTokenID
				s.nextBeamIndices[slot] = int32(batch * numBeams)
			}
			continue
		}

		beamIdx := 0
		for rank := 0; rank < topK && beamIdx < numBeams; rank++ {
			cand := batch*topK + rank
			score := nextScores[cand]
			token := nextTokens[cand]
			parent := int(nextIndices[cand])
			parentRow := batch*numBeams + parent

			if token == s.params.EOSTokenID {
				// Candidates past the first num_beams ranks could
				// never have occupied a slot, skip them.
				if rank >= numBeams {
					continue
				}
				hyp.add(slices.Clone(seqs.GetSequence(parentRow)), score)
				continue
			}

			slot := batch*numBeams + beamIdx
			s.nextBeamScores[slot] = score
			s.nextBeamTokens[slot] = token
			s.nextBeamIndices[slot] = int32(parentRow)
			beamIdx++
		}

		if len(hyp.beams) < numBeams {
			continue
		}
		if hyp.earlyStopping || !hyp.canImprove(nextScores[batch*topK], s.params.MaxLength) {
			hyp.done = true
		}
	}
}

// Finalize admits the live beams of still-open rows into their pools,
// then emits the numReturn best hypotheses per batch row into output,
// padded to MaxLength. Scores may be nil.
func (s *BeamScorer) Finalize(seqs *Sequences, numReturn int, output []int32, scores []float32) error {
	if numReturn <= 0 {
		numReturn = s.params.numReturn()
	}
	wantOut := s.params.BatchSize * numReturn * s.params.MaxLength
	if len(output) != wantOut {
		return fmt.Errorf("%w: output length %d, want %d", ErrShapeMismatch, len(output), wantOut)
	}
	if scores != nil && len(scores) != s.params.BatchSize*numReturn {
		return fmt.Errorf("%w: scores length %d, want %d", ErrShapeMismatch, len(scores), s.params.BatchSize*numReturn)
	}

	numBeams := s.params.NumBeams
	for batch := 0; batch < s.params.BatchSize; batch++ {
		hyp := &s.hyps[batch]
		if !hyp.done {
			for j := 0; j < numBeams; j++ {
				row := batch*numBeams + j
				hyp.add(slices.Clone(seqs.GetSequence(row)), s.nextBeamScores[row])
			}
		}

		for r := 0; r < numReturn && r < len(hyp.beams); r++ {
			best := hyp.beams[r]
			out := output[(batch*numReturn+r)*s.params.MaxLength : (batch*numReturn+r+1)*s.params.MaxLength]
			n := copy(out, best.tokens)
			for i := n; i < len(out); i++ {
				out[i] = s.params.PadTokenID
			}
			if scores != nil {
				scores[batch*numReturn+r] = best.score
			}
		}
	}
	return nil
}
