// Package toy provides a deterministic stand-in for a real inference
// session. It speaks the model.Session contract, favors one continuation
// token per (batch row, last token) pair, and maintains honest KV shapes
// so the feed plumbing is exercised end to end.
package toy

import (
	"context"
	"fmt"

	"github.com/samcharles93/loom/internal/model"
)

// Rule picks the favored next token for a batch row given the token the
// model just consumed.
type Rule func(batch int, last int32) int32

// Session is a scripted language model. Every logits row is flat except
// for a single peak on the favored token, so greedy decoding follows the
// rule exactly and sampling concentrates on it.
type Session struct {
	vocab    int
	beams    int
	layers   int
	heads    int
	headSize int
	peak     float32
	rule     Rule
}

// Option tweaks a Session.
type Option func(*Session)

// WithPeak sets the logit assigned to the favored token.
func WithPeak(peak float32) Option {
	return func(s *Session) { s.peak = peak }
}

// WithShape overrides the KV geometry.
func WithShape(layers, heads, headSize int) Option {
	return func(s *Session) {
		s.layers = layers
		s.heads = heads
		s.headSize = headSize
	}
}

// NewSession builds a scripted session. beams is the number of sequence
// rows per batch entry the caller will run with.
func NewSession(vocab, beams int, rule Rule, opts ...Option) *Session {
	s := &Session{
		vocab:    vocab,
		beams:    beams,
		layers:   2,
		heads:    2,
		headSize: 4,
		peak:     10,
		rule:     rule,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewPseudo builds a session whose rule is a fixed hash of the last
// token, useful when any deterministic stream of tokens will do.
func NewPseudo(vocab, beams int, seed int64) *Session {
	return NewSession(vocab, beams, func(batch int, last int32) int32 {
		h := int64(last)*31 + int64(batch)*17 + seed*1009
		h %= int64(vocab)
		if h < 0 {
			h += int64(vocab)
		}
		return int32(h)
	})
}

func (s *Session) VocabSize() int  { return s.vocab }
func (s *Session) LayerCount() int { return s.layers }
func (s *Session) HeadCount() int  { return s.heads }
func (s *Session) HeadSize() int   { return s.headSize }

// Run scores every position of every row and grows each KV entry by the
// step length. New cache columns are stamped with the row index so tests
// can watch rows follow their parent beams.
func (s *Session) Run(ctx context.Context, feeds *model.Feeds) (*model.Fetches, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := len(feeds.InputIDs) / feeds.StepLength
	if rows*feeds.StepLength != len(feeds.InputIDs) {
		return nil, fmt.Errorf("ragged input ids: %d over step length %d", len(feeds.InputIDs), feeds.StepLength)
	}

	logits := make([]float32, rows*feeds.StepLength*s.vocab)
	for i := 0; i < rows; i++ {
		batch := i / s.beams
		for p := 0; p < feeds.StepLength; p++ {
			last := feeds.InputIDs[i*feeds.StepLength+p]
			row := logits[(i*feeds.StepLength+p)*s.vocab : (i*feeds.StepLength+p+1)*s.vocab]
			row[s.rule(batch, last)] = s.peak
		}
	}

	present := make([]model.KV, len(feeds.Past))
	for l := range feeds.Past {
		present[l] = s.grow(feeds.Past[l], rows, feeds.StepLength)
	}

	return &model.Fetches{Logits: logits, Present: present}, nil
}

// grow appends stepLength stamped columns to one cache entry.
func (s *Session) grow(past model.KV, rows, stepLength int) model.KV {
	newSeq := past.SeqLen + stepLength
	out := model.KV{
		Data:      make([]float32, rows*s.heads*newSeq*s.headSize),
		BatchBeam: rows,
		NumHeads:  s.heads,
		SeqLen:    newSeq,
		HeadSize:  s.headSize,
	}
	for i := 0; i < rows; i++ {
		for h := 0; h < s.heads; h++ {
			dst := out.Data[(i*s.heads+h)*newSeq*s.headSize:]
			if past.SeqLen > 0 {
				src := past.Data[(i*s.heads+h)*past.SeqLen*s.headSize:]
				copy(dst[:past.SeqLen*s.headSize], src[:past.SeqLen*s.headSize])
			}
			for p := past.SeqLen; p < newSeq; p++ {
				for e := 0; e < s.headSize; e++ {
					dst[p*s.headSize+e] = float32(i)
				}
			}
		}
	}
	return out
}
