package search

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/logits"
)

// Search is the state shared by the greedy and beam variants: the
// parameters, the per-beam histories, the score table, and the registered
// logits processors. All buffers are allocated once at construction and
// reused across steps.
type Search struct {
	params    Params
	sequences *Sequences
	dev       *device.Device

	// nextTokenScores is BatchBeamSize x VocabSize, replaced each step
	// from raw logits by row-wise log-softmax.
	nextTokenScores []float32

	// sequenceLengths holds the per-beam valid prefix length of the
	// prompt. The model adapter fills it while building its inputs.
	sequenceLengths []int32

	processors []logits.Processor

	done bool

	sequenceLengthsRoam *device.RoamingArray[int32]
	sequenceRoam        *device.RoamingArray[int32]
}

func newSearch(params Params, dev *device.Device) (*Search, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	batchBeamSize := params.BatchBeamSize()
	return &Search{
		params:          params,
		dev:             dev,
		sequences:       NewSequences(params.InputIDs, params.BatchSize, params.NumBeams, params.SequenceLength, params.MaxLength),
		nextTokenScores: make([]float32, batchBeamSize*params.VocabSize),
		sequenceLengths: make([]int32, batchBeamSize),
	}, nil
}

// Params returns the parameters the search was built with.
func (s *Search) Params() Params { return s.params }

// Device returns the device the search was opened on.
func (s *Search) Device() *device.Device { return s.dev }

// Use registers processors; they run in registration order on every
// logits intake, after log-softmax.
func (s *Search) Use(procs ...logits.Processor) {
	s.processors = append(s.processors, procs...)
}

// SetLogits accepts a logits buffer of shape
// (BatchBeamSize, inputLength, VocabSize), extracts the last-position
// slice of every row, rewrites it into log-probabilities, and runs the
// registered processors. The buffer is not retained.
func (s *Search) SetLogits(l []float32) error {
	batchBeamSize := s.params.BatchBeamSize()
	rowSize := batchBeamSize * s.params.VocabSize
	if len(l) == 0 || len(l)%rowSize != 0 {
		return fmt.Errorf("%w: logits length %d not a positive multiple of %d", ErrShapeMismatch, len(l), rowSize)
	}
	inputLength := len(l) / rowSize

	// Last-position slice: next_token_logits = logits[:, -1, :].
	src := (inputLength - 1) * s.params.VocabSize
	for i := 0; i < batchBeamSize; i++ {
		target := s.Scores(i)
		copy(target, l[src:src+s.params.VocabSize])
		src += inputLength * s.params.VocabSize

		if s.params.CheckNaN && logits.HasNaN(target) {
			return fmt.Errorf("%w: row %d", ErrNumericFault, i)
		}
		logits.LogSoftmax(target)
	}

	for _, p := range s.processors {
		p.Process(s)
	}
	return nil
}

// SetLogitsFloat16 converts a half-precision logits buffer and feeds it
// through the same pipeline. The device path delivers fp16 scores.
func (s *Search) SetLogitsFloat16(l []uint16) error {
	buf := make([]float32, len(l))
	for i, bits := range l {
		buf[i] = float16.Frombits(bits).Float32()
	}
	return s.SetLogits(buf)
}

// SetLogitsRoaming resolves the host side of a roaming buffer and feeds
// it through SetLogits.
func (s *Search) SetLogitsRoaming(r *device.RoamingArray[float32]) error {
	host, err := r.Host()
	if err != nil {
		return err
	}
	return s.SetLogits(host)
}

// Scores returns the score row of one beam, the view processors mutate.
func (s *Search) Scores(index int) []float32 {
	return s.nextTokenScores[index*s.params.VocabSize : (index+1)*s.params.VocabSize]
}

// Sequence returns the token history of one beam row.
func (s *Search) Sequence(index int) []int32 {
	return s.sequences.GetSequence(index)
}

// Sequences exposes the history buffers to the scorer and tests.
func (s *Search) Sequences() *Sequences { return s.sequences }

// SequenceLength is the current valid prefix length.
func (s *Search) SequenceLength() int { return s.sequences.Length() }

// SequenceLengths is the per-beam prompt length buffer, one entry per
// batch-beam row. The model adapter fills it from the prompt.
func (s *Search) SequenceLengths() []int32 { return s.sequenceLengths }

// BatchBeamSize is the leading dimension of the score table.
func (s *Search) BatchBeamSize() int { return s.params.BatchBeamSize() }

// VocabSize is the width of one score row.
func (s *Search) VocabSize() int { return s.params.VocabSize }

// EOSToken is the end-of-sequence token id.
func (s *Search) EOSToken() int32 { return s.params.EOSTokenID }

// IsDone reports whether generation finished: every row hit EOS (or
// every hypothesis pool closed, for beams), or length reached MaxLength.
func (s *Search) IsDone() bool { return s.done }

// SequenceLengthsArray wraps the prompt-length buffer for callers on the
// other side of the device split.
func (s *Search) SequenceLengthsArray() *device.RoamingArray[int32] {
	if s.sequenceLengthsRoam == nil {
		s.sequenceLengthsRoam = device.Roam[int32](s.dev)
	}
	s.sequenceLengthsRoam.SetHost(s.sequenceLengths)
	return s.sequenceLengthsRoam
}

// SequenceArray wraps one beam row's history.
func (s *Search) SequenceArray(index int) *device.RoamingArray[int32] {
	if s.sequenceRoam == nil {
		s.sequenceRoam = device.Roam[int32](s.dev)
	}
	s.sequenceRoam.SetHost(s.sequences.GetSequence(index))
	return s.sequenceRoam
}
