package search

// Sequences tracks the per-beam token histories of one generation call as
// a BatchBeamSize x maxLength matrix with a monotonically growing valid
// prefix. Two physical buffers are held so the beam path can re-permute
// rows without in-place hazards; after every append the just-written
// buffer becomes the read buffer.
type Sequences struct {
	buffers       [2][]int32
	current       int
	batchBeamSize int
	maxLength     int
	length        int
}

// NewSequences duplicates each prompt row numBeams times and seeds both
// buffers with the result.
func NewSequences(inputIDs []int32, batchSize, numBeams, sequenceLength, maxLength int) *Sequences {
	batchBeamSize := batchSize * numBeams
	s := &Sequences{
		batchBeamSize: batchBeamSize,
		maxLength:     maxLength,
		length:        sequenceLength,
	}
	for b := range s.buffers {
		s.buffers[b] = make([]int32, batchBeamSize*maxLength)
	}
	for i := 0; i < batchSize; i++ {
		prompt := inputIDs[i*sequenceLength : (i+1)*sequenceLength]
		for j := 0; j < numBeams; j++ {
			row := (i*numBeams + j) * maxLength
			copy(s.buffers[0][row:row+sequenceLength], prompt)
			copy(s.buffers[1][row:row+sequenceLength], prompt)
		}
	}
	return s
}

// GetSequence returns the valid prefix of one row of the current buffer.
// The view stays valid until the next append.
func (s *Sequences) GetSequence(index int) []int32 {
	row := index * s.maxLength
	return s.buffers[s.current][row : row+s.length]
}

// Length is the current valid prefix length of every row.
func (s *Sequences) Length() int { return s.length }

// BatchBeamSize is the number of rows.
func (s *Sequences) BatchBeamSize() int { return s.batchBeamSize }

// MaxLength is the row capacity.
func (s *Sequences) MaxLength() int { return s.maxLength }

// Append writes one token per row at the current length and advances.
// Both buffers receive the column so they stay interchangeable on the
// greedy path, where no permutation happens.
func (s *Sequences) Append(nextTokens []int32) {
	for i, tok := range nextTokens {
		col := i*s.maxLength + s.length
		s.buffers[0][col] = tok
		s.buffers[1][col] = tok
	}
	s.length++
	s.current = 1 - s.current
}

// AppendReindexed first re-permutes rows so that row i of the spare
// buffer receives the history of row nextIndices[i] from the current
// buffer, then appends nextTokens[i] to each row and swaps. A beam row's
// history thereby follows its selected parent beam.
func (s *Sequences) AppendReindexed(nextIndices, nextTokens []int32) {
	src := s.buffers[s.current]
	dst := s.buffers[1-s.current]
	for i := 0; i < s.batchBeamSize; i++ {
		srcRow := int(nextIndices[i]) * s.maxLength
		dstRow := i * s.maxLength
		copy(dst[dstRow:dstRow+s.length], src[srcRow:srcRow+s.length])
		dst[dstRow+s.length] = nextTokens[i]
	}
	s.length++
	s.current = 1 - s.current
}
