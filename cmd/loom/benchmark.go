package main

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/search"
	"github.com/samcharles93/loom/internal/toy"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		batch      int64
		beams      int64
		vocab      int64
		steps      int64
		strategy   string
	)

	flags := append([]cli.Flag{}, commonFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Usage:       "batch size",
			Value:       4,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "beams",
			Usage:       "number of beams (beam strategy)",
			Value:       4,
			Destination: &beams,
		},
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "vocabulary size",
			Value:       32000,
			Destination: &vocab,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "tokens to generate per run",
			Value:       64,
			Destination: &steps,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Usage:       "decoding strategy (greedy, topk, topp, beam)",
			Value:       "greedy",
			Destination: &strategy,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Run standardized decoding benchmarks",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())

			log := newLogger()
			ctx = logger.WithContext(ctx, log)

			kind, err := device.Normalize(deviceName)
			if err != nil {
				return err
			}
			dev, err := device.New(kind)
			if err != nil {
				return err
			}

			numBeams := int(beams)
			if inference.Strategy(strategy) != inference.StrategyBeam {
				numBeams = 1
			}

			seqLen := 8
			prompt := make([]int32, int(batch)*seqLen)
			for i := range prompt {
				prompt[i] = int32(i % int(vocab))
			}
			params := search.Params{
				BatchSize:      int(batch),
				NumBeams:       numBeams,
				SequenceLength: seqLen,
				MaxLength:      seqLen + int(steps),
				VocabSize:      int(vocab),
				EOSTokenID:     int32(vocab) - 1,
				LengthPenalty:  1,
				InputIDs:       prompt,
			}
			cfg := inference.Config{
				Strategy:    inference.Strategy(strategy),
				TopK:        40,
				TopP:        0.95,
				Temperature: 0.8,
			}

			runOnce := func() (inference.Stats, error) {
				sess := toy.NewPseudo(int(vocab), numBeams, 7)
				res, err := inference.GenerateOn(ctx, dev, sess, params, cfg, nil)
				if err != nil {
					return inference.Stats{}, err
				}
				return res.Stats, nil
			}

			for i := int64(0); i < warmupRuns; i++ {
				if _, err := runOnce(); err != nil {
					return err
				}
			}

			bar := progressbar.Default(benchRuns, "benchmark")
			var total time.Duration
			var tokens int
			for i := int64(0); i < benchRuns; i++ {
				stats, err := runOnce()
				if err != nil {
					return err
				}
				total += stats.Duration
				tokens += stats.TokensGenerated
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			tps := float64(tokens) / total.Seconds()
			fmt.Printf("runs: %d  strategy: %s  batch: %d  beams: %d  vocab: %d\n",
				benchRuns, strategy, batch, numBeams, vocab)
			fmt.Printf("tokens: %d  wall: %s  tokens/sec: %.1f\n", tokens, total.Round(time.Millisecond), tps)
			return nil
		},
	}
}
