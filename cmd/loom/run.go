package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/device"
	"github.com/samcharles93/loom/internal/inference"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/search"
	"github.com/samcharles93/loom/internal/toy"
)

func runCmd() *cli.Command {
	var (
		prompt    string
		strategy  string
		maxLength int64
		vocab     int64
		numBeams  int64
		numReturn int64
		topK      int64
		topP      float64
		temp      float64
		seed      int64
		minLength int64
		repPen    float64
		lenPen    float64
		earlyStop bool
		eosToken  int64
		padToken  int64
	)

	flags := append([]cli.Flag{}, commonFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "comma-separated prompt token ids, ';' separates batch rows",
			Value:       "0,0,0,52",
			Destination: &prompt,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Usage:       "decoding strategy (greedy, topk, topp, beam)",
			Value:       "greedy",
			Destination: &strategy,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "total sequence length to generate up to",
			Value:       32,
			Destination: &maxLength,
		},
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "vocabulary size of the scripted session",
			Value:       1000,
			Destination: &vocab,
		},
		&cli.Int64Flag{
			Name:        "beams",
			Usage:       "number of beams (beam strategy)",
			Value:       4,
			Destination: &numBeams,
		},
		&cli.Int64Flag{
			Name:        "num-return",
			Usage:       "finished sequences to return per batch row",
			Value:       1,
			Destination: &numReturn,
		},
		&cli.Int64Flag{
			Name:        "topk",
			Usage:       "top-k sampling parameter",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "topp",
			Usage:       "top-p sampling parameter",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Usage:       "sampling temperature",
			Value:       0.8,
			Destination: &temp,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed",
			Value:       42,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "min-length",
			Usage:       "minimum length before EOS is allowed",
			Destination: &minLength,
		},
		&cli.Float64Flag{
			Name:        "repetition-penalty",
			Usage:       "repetition penalty (1 disables)",
			Value:       1.0,
			Destination: &repPen,
		},
		&cli.Float64Flag{
			Name:        "length-penalty",
			Usage:       "length penalty exponent for beam scoring",
			Value:       1.0,
			Destination: &lenPen,
		},
		&cli.BoolFlag{
			Name:        "early-stopping",
			Usage:       "stop a batch row once its hypothesis pool fills",
			Destination: &earlyStop,
		},
		&cli.Int64Flag{
			Name:        "eos",
			Usage:       "end-of-sequence token id",
			Value:       999,
			Destination: &eosToken,
		},
		&cli.Int64Flag{
			Name:        "pad",
			Usage:       "pad token id",
			Destination: &padToken,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate sequences with the scripted session",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := LoadConfig()
			applyCommonConfig(cmd, fileCfg)
			applyRunConfig(cmd, fileCfg, &strategy, &maxLength, &numBeams, &topK, &topP, &temp, &seed)

			log := newLogger()
			ctx = logger.WithContext(ctx, log)

			inputIDs, batch, seqLen, err := parsePrompt(prompt)
			if err != nil {
				return err
			}

			kind, err := device.Normalize(deviceName)
			if err != nil {
				return err
			}
			dev, err := device.New(kind)
			if err != nil {
				return err
			}

			beams := int(numBeams)
			if inference.Strategy(strategy) != inference.StrategyBeam {
				beams = 1
			}

			params := search.Params{
				BatchSize:          batch,
				NumBeams:           beams,
				SequenceLength:     seqLen,
				MaxLength:          int(maxLength),
				VocabSize:          int(vocab),
				PadTokenID:         int32(padToken),
				EOSTokenID:         int32(eosToken),
				LengthPenalty:      float32(lenPen),
				EarlyStopping:      earlyStop,
				NumReturnSequences: int(numReturn),
				InputIDs:           inputIDs,
				Seed:               seed,
			}
			cfg := inference.Config{
				Strategy:          inference.Strategy(strategy),
				TopK:              int(topK),
				TopP:              float32(topP),
				Temperature:       float32(temp),
				MinLength:         int(minLength),
				RepetitionPenalty: float32(repPen),
			}

			sess := toy.NewPseudo(int(vocab), beams, seed)
			res, err := inference.GenerateOn(ctx, dev, sess, params, cfg, nil)
			if err != nil {
				return err
			}

			for i, seq := range res.Sequences {
				fmt.Printf("[%d] %s\n", i, formatTokens(seq))
			}
			log.Info("generation finished",
				"steps", res.Stats.Steps,
				"tokens", res.Stats.TokensGenerated,
				"tps", fmt.Sprintf("%.1f", res.Stats.TPS))
			return nil
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parsePrompt reads "1,2,3;4,5,6" into a flat row-major batch. Rows must
// share a length.
func parsePrompt(s string) (ids []int32, batch, seqLen int, err error) {
	rows := strings.Split(s, ";")
	for i, row := range rows {
		fields := strings.Split(row, ",")
		if i == 0 {
			seqLen = len(fields)
		} else if len(fields) != seqLen {
			return nil, 0, 0, fmt.Errorf("prompt row %d has %d tokens, want %d", i, len(fields), seqLen)
		}
		for _, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("prompt token %q: %w", f, err)
			}
			ids = append(ids, int32(v))
		}
	}
	return ids, len(rows), seqLen, nil
}

func formatTokens(seq []int32) string {
	var sb strings.Builder
	for i, t := range seq {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(int(t)))
	}
	return sb.String()
}
