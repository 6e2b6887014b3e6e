package inference

import "time"

// Strategy selects how tokens are chosen from the score table.
type Strategy string

const (
	StrategyGreedy Strategy = "greedy"
	StrategyTopK   Strategy = "topk"
	StrategyTopP   Strategy = "topp"
	StrategyBeam   Strategy = "beam"
)

// Config holds the per-request decoding knobs that sit above the search
// parameters.
type Config struct {
	Strategy    Strategy
	TopK        int
	TopP        float32
	Temperature float32

	MinLength         int
	RepetitionPenalty float32
}

// Stats summarizes one generation call.
type Stats struct {
	Steps           int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Result is the outcome of one generation call: one finished sequence
// per (batch row, return slot), plus normalized scores on the beam path.
type Result struct {
	Sequences [][]int32
	Scores    []float32
	Stats     Stats
}

// StreamFunc observes the tokens chosen at each step.
type StreamFunc func(step int, tokens []int32)
