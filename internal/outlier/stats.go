package outlier

import (
	"math"
	"sort"
)

// Quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks. It returns 0 for an empty slice.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Quartiles returns Q1 and Q3 of values. The input is not modified.
func Quartiles(values []float64) (q1, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Quantile(sorted, 0.25), Quantile(sorted, 0.75)
}

// MeanStdDev returns the mean and sample standard deviation of values.
// Fewer than two values give a deviation of 0.
func MeanStdDev(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0
	}

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// ZScore returns |value-mean|/std, or 0 when std is 0
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return math.Abs(value-mean) / std
}

// Band is the verdict of the mean ± k·σ policy
type Band string

const (
	BandHigh   Band = "outlier_high"
	BandLow    Band = "outlier_low"
	BandNormal Band = "normal"
)

// DefaultSigmaMultiplier is the k used by the expense feature report
const DefaultSigmaMultiplier = 2.0

// SigmaBand places value relative to mean ± k·std
func SigmaBand(value, mean, std, k float64) Band {
	switch {
	case value > mean+k*std:
		return BandHigh
	case value < mean-k*std:
		return BandLow
	default:
		return BandNormal
	}
}
