package api

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/search"
	"github.com/samcharles93/loom/internal/toy"
)

// SessionFactory opens an inference session sized for one request. The
// default factory serves the scripted toy session; deployments plug in a
// real backend here.
type SessionFactory func(vocabSize, numBeams int) (model.Session, error)

// Service turns API requests into generation calls. A token-bucket
// limiter keeps a burst of callers from stacking up generation loops.
type Service struct {
	dev     *device.Device
	factory SessionFactory
	limiter *rate.Limiter
}

// NewService builds a service on the given device. rps bounds accepted
// generation calls per second; zero means unlimited.
func NewService(dev *device.Device, factory SessionFactory, rps float64) *Service {
	if factory == nil {
		factory = func(vocabSize, numBeams int) (model.Session, error) {
			return toy.NewPseudo(vocabSize, numBeams, 0), nil
		}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps) + 1
	}
	return &Service{
		dev:     dev,
		factory: factory,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Generate validates a request and runs it to completion.
func (s *Service) Generate(ctx context.Context, req *GenerateRequest, stream inference.StreamFunc) (*inference.Result, error) {
	params, cfg, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sess, err := s.factory(params.VocabSize, params.NumBeams)
	if err != nil {
		return nil, err
	}
	return inference.GenerateOn(ctx, s.dev, sess, params, cfg, stream)
}

func (s *Service) resolve(req *GenerateRequest) (search.Params, inference.Config, error) {
	var params search.Params
	var cfg inference.Config

	if len(req.InputIDs) == 0 {
		return params, cfg, newInvalidRequest("input_ids is required")
	}
	seqLen := len(req.InputIDs[0])
	flat := make([]int32, 0, len(req.InputIDs)*seqLen)
	for i, row := range req.InputIDs {
		if len(row) != seqLen {
			return params, cfg, newInvalidRequest(fmt.Sprintf("input_ids row %d has length %d, want %d", i, len(row), seqLen))
		}
		flat = append(flat, row...)
	}

	strategy := inference.Strategy(req.Strategy)
	if strategy == "" {
		strategy = inference.StrategyGreedy
	}
	switch strategy {
	case inference.StrategyGreedy, inference.StrategyTopK, inference.StrategyTopP, inference.StrategyBeam:
	default:
		return params, cfg, newInvalidRequest(fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	numBeams := req.NumBeams
	if strategy != inference.StrategyBeam {
		numBeams = 1
	} else if numBeams < 2 {
		return params, cfg, newInvalidRequest("beam strategy requires num_beams > 1")
	}

	params = search.Params{
		BatchSize:          len(req.InputIDs),
		NumBeams:           numBeams,
		SequenceLength:     seqLen,
		MaxLength:          req.MaxLength,
		VocabSize:          req.VocabSize,
		PadTokenID:         req.PadToken,
		EOSTokenID:         req.EOSToken,
		LengthPenalty:      req.LengthPenalty,
		EarlyStopping:      req.EarlyStopping,
		NumReturnSequences: req.NumReturnSequences,
		InputIDs:           flat,
		Seed:               req.Seed,
	}
	cfg = inference.Config{
		Strategy:          strategy,
		TopK:              req.TopK,
		TopP:              req.TopP,
		Temperature:       req.Temperature,
		MinLength:         req.MinLength,
		RepetitionPenalty: req.RepetitionPenalty,
	}
	return params, cfg, nil
}
