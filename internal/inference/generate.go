// Package inference drives the step loop that connects an inference
// session to a search: run the model, feed the logits through the score
// pipeline, select tokens, repeat until the search reports done.
package inference

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/logits"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/search"
)

// Generate runs one full generation call against a session. Cancellation
// is honored between steps; a canceled context aborts the call with the
// context's error.
func Generate(ctx context.Context, sess model.Session, params search.Params, cfg Config, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	dev, err := device.New(device.CPU)
	if err != nil {
		return nil, err
	}
	return GenerateOn(ctx, dev, sess, params, cfg, stream)
}

// GenerateOn is Generate with an explicit device.
func GenerateOn(ctx context.Context, dev *device.Device, sess model.Session, params search.Params, cfg Config, stream StreamFunc) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if cfg.Strategy == StrategyBeam {
		return generateBeam(ctx, log, dev, sess, params, cfg, stream, start)
	}
	return generateGreedy(ctx, log, dev, sess, params, cfg, stream, start)
}

func processors(cfg Config) []logits.Processor {
	var procs []logits.Processor
	if cfg.MinLength > 0 {
		procs = append(procs, logits.MinLength{Min: cfg.MinLength})
	}
	if cfg.RepetitionPenalty > 0 && cfg.RepetitionPenalty != 1 {
		procs = append(procs, logits.RepetitionPenalty{Penalty: cfg.RepetitionPenalty})
	}
	return procs
}

func generateGreedy(ctx context.Context, log logger.Logger, dev *device.Device, sess model.Session, params search.Params, cfg Config, stream StreamFunc, start time.Time) (*Result, error) {
	if params.NumBeams == 0 {
		params.NumBeams = 1
	}
	g, err := search.NewGreedySearch(params, dev)
	if err != nil {
		return nil, err
	}
	g.Use(processors(cfg)...)

	state, err := model.NewState(sess, params, g.SequenceLengths())
	if err != nil {
		return nil, err
	}

	log.Debug("generation start", "strategy", cfg.Strategy, "batch", params.BatchSize, "device", dev.Kind().String())

	var stats Stats
	var next []int32
	for !g.IsDone() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := state.Run(ctx, next, nil)
		if err != nil {
			return nil, err
		}
		if err := g.SetLogits(l); err != nil {
			return nil, err
		}

		switch cfg.Strategy {
		case StrategyTopK:
			g.SampleTopK(cfg.TopK, cfg.Temperature)
		case StrategyTopP:
			g.SampleTopP(cfg.TopP, cfg.Temperature)
		default:
			g.SelectTop()
		}
		next = g.NextTokens()
		stats.Steps++
		stats.TokensGenerated += len(next)
		if stream != nil {
			stream(stats.Steps, next)
		}
	}

	res := &Result{Stats: finishStats(stats, start)}
	for i := 0; i < params.BatchSize; i++ {
		res.Sequences = append(res.Sequences, slices.Clone(g.Sequence(i)))
	}
	log.Debug("generation done", "steps", stats.Steps, "tps", res.Stats.TPS)
	return res, nil
}

func generateBeam(ctx context.Context, log logger.Logger, dev *device.Device, sess model.Session, params search.Params, cfg Config, stream StreamFunc, start time.Time) (*Result, error) {
	b, err := search.NewBeamSearch(params, dev)
	if err != nil {
		return nil, err
	}
	b.Use(processors(cfg)...)

	state, err := model.NewState(sess, params, b.SequenceLengths())
	if err != nil {
		return nil, err
	}

	log.Debug("generation start", "strategy", cfg.Strategy, "batch", params.BatchSize, "beams", params.NumBeams, "device", dev.Kind().String())

	var stats Stats
	var next, indices []int32
	for !b.IsDone() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := state.Run(ctx, next, indices)
		if err != nil {
			return nil, err
		}
		if err := b.SetLogits(l); err != nil {
			return nil, err
		}
		b.SelectTop()
		next = b.NextTokens()
		indices = b.NextIndices()
		stats.Steps++
		stats.TokensGenerated += len(next)
		if stream != nil {
			stream(stats.Steps, next)
		}
	}

	numReturn := params.NumReturnSequences
	if numReturn <= 0 {
		numReturn = 1
	}
	output := make([]int32, params.BatchSize*numReturn*params.MaxLength)
	scores := make([]float32, params.BatchSize*numReturn)
	if err := b.Finalize(numReturn, output, scores); err != nil {
		return nil, err
	}

	res := &Result{Scores: scores, Stats: finishStats(stats, start)}
	for i := 0; i < params.BatchSize*numReturn; i++ {
		res.Sequences = append(res.Sequences, slices.Clone(output[i*params.MaxLength:(i+1)*params.MaxLength]))
	}
	log.Debug("generation done", "steps", stats.Steps, "tps", res.Stats.TPS)
	return res, nil
}

func finishStats(stats Stats, start time.Time) Stats {
	stats.Duration = time.Since(start)
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.TPS = float64(stats.TokensGenerated) / secs
	}
	return stats
}
