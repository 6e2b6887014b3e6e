// Package logits holds the score-space math of the decoding core: the
// stable softmax family and the processors that mutate score rows between
// logits intake and token selection.
package logits

import "math"

// LogSoftmax rewrites a row of raw logits into log-probabilities in place.
// Numerically stable: subtract the row max, exponentiate, sum, subtract
// the log of the sum. After the call max(row) <= 0 and sum(exp(row)) == 1
// up to rounding.
func LogSoftmax(row []float32) {
	if len(row) == 0 {
		return
	}
	maxv := row[0]
	for _, v := range row[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i := range row {
		row[i] -= maxv
		sum += math.Exp(float64(row[i]))
	}
	logSum := float32(math.Log(sum))
	for i := range row {
		row[i] -= logSum
	}
}

// Softmax rewrites a row into a probability distribution in place, using
// the same max-subtraction trick.
func Softmax(row []float32) {
	if len(row) == 0 {
		return
	}
	maxv := row[0]
	for _, v := range row[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i := range row {
		e := math.Exp(float64(row[i] - maxv))
		row[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range row {
		row[i] *= inv
	}
}

// Argmax returns the index of the largest value. Ties break toward the
// lowest index.
func Argmax(row []float32) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// HasNaN reports whether any value in the row is NaN.
func HasNaN(row []float32) bool {
	for _, v := range row {
		if math.IsNaN(float64(v)) {
			return true
		}
	}
	return false
}
