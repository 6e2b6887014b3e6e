// Package model glues the decoding core to an inference session. It only
// knows about IO shapes: building the first-step feeds from the prompt,
// advancing them one token per step, and keeping past-KV rows aligned
// with their beams. Graph execution itself lives behind the Session
// interface.
package model

import "context"

// KV is one layer's key or value cache, row-major
// [BatchBeam][NumHeads][SeqLen][HeadSize].
type KV struct {
	Data      []float32
	BatchBeam int
	NumHeads  int
	SeqLen    int
	HeadSize  int
}

func (kv KV) rowSize() int {
	return kv.NumHeads * kv.SeqLen * kv.HeadSize
}

// Row returns the cache rows of one batch-beam entry.
func (kv KV) Row(i int) []float32 {
	n := kv.rowSize()
	return kv.Data[i*n : (i+1)*n]
}

// Feeds is one step's model input. The first step carries the full
// prompt; later steps carry a single token per beam plus the past-KV
// from the previous step.
type Feeds struct {
	InputIDs      []int32 // BatchBeam x StepLength
	PositionIDs   []int32 // BatchBeam x StepLength
	AttentionMask []int32 // BatchBeam x CurrentLength
	StepLength    int
	Past          []KV
}

// Fetches is one step's model output.
type Fetches struct {
	Logits  []float32 // BatchBeam x StepLength x VocabSize
	Present []KV
}

// Session is the narrow per-step contract with the inference session.
// Implementations own model loading, graph execution, and tensor IO.
type Session interface {
	Run(ctx context.Context, feeds *Feeds) (*Fetches, error)
	VocabSize() int
	LayerCount() int
	HeadCount() int
	HeadSize() int
}
