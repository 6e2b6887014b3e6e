package logits

import "math"

var negInf = float32(math.Inf(-1))

// State is the view of a running search that processors mutate: one score
// row per beam, plus the token history needed by history-aware processors.
type State interface {
	BatchBeamSize() int
	VocabSize() int
	EOSToken() int32
	SequenceLength() int
	Sequence(index int) []int32
	Scores(index int) []float32
}

// Processor mutates score rows in place after log-softmax and before
// selection. Processors run in registration order and must not reallocate
// the score table.
type Processor interface {
	Process(State)
}

// MinLength forces generation to continue until sequences reach Min
// tokens by assigning the EOS token zero probability mass.
type MinLength struct {
	Min int
}

func (m MinLength) Process(s State) {
	if s.SequenceLength() >= m.Min {
		return
	}
	eos := s.EOSToken()
	for i := 0; i < s.BatchBeamSize(); i++ {
		s.Scores(i)[eos] = negInf
	}
}

// RepetitionPenalty discounts tokens already present in a row's sequence.
// A score s becomes s*penalty when negative and s/penalty otherwise; this
// assumes rows are consistently signed (log-probabilities are), mixed
// signs are tolerated but not optimized for.
type RepetitionPenalty struct {
	Penalty float32
}

func (r RepetitionPenalty) Process(s State) {
	for i := 0; i < s.BatchBeamSize(); i++ {
		scores := s.Scores(i)

		seen := make(map[int32]struct{})
		for _, id := range s.Sequence(i) {
			seen[id] = struct{}{}
		}

		for id := range seen {
			score := scores[id]
			if score < 0 {
				scores[id] = score * r.Penalty
			} else {
				scores[id] = score / r.Penalty
			}
		}
	}
}
