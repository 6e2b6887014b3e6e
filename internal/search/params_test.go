package search

import (
	"errors"
	"testing"
)

func TestParamsValidation(t *testing.T) {
	t.Parallel()

	valid := Params{
		BatchSize:      2,
		NumBeams:       2,
		SequenceLength: 3,
		MaxLength:      8,
		VocabSize:      10,
		EOSTokenID:     9,
		InputIDs:       make([]int32, 6),
	}

	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{name: "zero batch", mutate: func(p *Params) { p.BatchSize = 0 }},
		{name: "zero beams", mutate: func(p *Params) { p.NumBeams = 0 }},
		{name: "zero vocab", mutate: func(p *Params) { p.VocabSize = 0 }},
		{name: "max not beyond prompt", mutate: func(p *Params) { p.MaxLength = 3 }},
		{name: "short input ids", mutate: func(p *Params) { p.InputIDs = p.InputIDs[:4] }},
		{name: "eos outside vocab", mutate: func(p *Params) { p.EOSTokenID = 10 }},
		{name: "too many returns", mutate: func(p *Params) { p.NumReturnSequences = 3 }},
	}

	if err := valid.validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tc.mutate(&p)
			if err := p.validate(); !errors.Is(err, ErrParamInvalid) {
				t.Fatalf("got %v, want ErrParamInvalid", err)
			}
		})
	}
}
