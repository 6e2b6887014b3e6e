package logits

import "math"

// TopK selects the k highest values of row scaled by invTemp and returns
// their indices and scaled values, ordered from largest to smallest.
// Equal values keep ascending index order. The dst slices are reused when
// large enough. O(V*K) insertion selection, fine for small k.
func TopK(row []float32, k int, invTemp float32, dstIdx []int32, dstVal []float32) ([]int32, []float32) {
	if k <= 0 {
		return dstIdx[:0], dstVal[:0]
	}
	if k > len(row) {
		k = len(row)
	}
	idx := dstIdx[:0]
	val := dstVal[:0]
	for i, l := range row {
		v := l * invTemp

		pos := len(val)
		for pos > 0 && val[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		idx = append(idx, 0)
		val = append(val, 0)
		copy(idx[pos+1:], idx[pos:])
		copy(val[pos+1:], val[pos:])
		idx[pos] = int32(i)
		val[pos] = v

		if len(val) > k {
			idx = idx[:k]
			val = val[:k]
		}
	}
	return idx, val
}

// SoftmaxShortlist converts a descending shortlist of scaled scores into a
// probability distribution over the shortlist, written into dst.
func SoftmaxShortlist(val []float32, dst []float64) []float64 {
	dst = dst[:0]
	if len(val) == 0 {
		return dst
	}
	maxv := val[0]
	var sum float64
	for _, v := range val {
		e := math.Exp(float64(v - maxv))
		dst = append(dst, e)
		sum += e
	}
	if sum == 0 {
		return dst
	}
	inv := 1.0 / sum
	for i := range dst {
		dst[i] *= inv
	}
	return dst
}

// TopPCut returns the length of the smallest prefix of a descending
// probability list whose cumulative mass reaches p. The full length is
// returned when p >= 1.
func TopPCut(prob []float64, p float32) int {
	if p >= 1 {
		return len(prob)
	}
	var c float64
	for i := range prob {
		c += prob[i]
		if float32(c) >= p {
			return i + 1
		}
	}
	return len(prob)
}

// Renormalize scales prob[:n] back to unit mass.
func Renormalize(prob []float64, n int) {
	var sum float64
	for _, v := range prob[:n] {
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / sum
	for i := range prob[:n] {
		prob[i] *= inv
	}
}
