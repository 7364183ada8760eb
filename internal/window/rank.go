package window

import (
	"sort"

	"github.com/shopspring/decimal"
)

// InclusiveRank returns, for each value, the fraction of values less than or
// equal to it. The largest value always ranks 1.0.
func InclusiveRank[T any](values []T, cmp func(a, b T) int) []float64 {
	n := len(values)
	ranks := make([]float64, n)
	if n == 0 {
		return ranks
	}
	sorted := sortedCopy(values, cmp)
	for i, v := range values {
		le := sort.Search(n, func(j int) bool { return cmp(sorted[j], v) > 0 })
		ranks[i] = float64(le) / float64(n)
	}
	return ranks
}

// PercentRank returns (rank-1)/(n-1) for each value where rank counts values
// strictly below it plus one. A single value ranks 0.
func PercentRank[T any](values []T, cmp func(a, b T) int) []float64 {
	n := len(values)
	ranks := make([]float64, n)
	if n < 2 {
		return ranks
	}
	sorted := sortedCopy(values, cmp)
	for i, v := range values {
		lt := sort.Search(n, func(j int) bool { return cmp(sorted[j], v) >= 0 })
		ranks[i] = float64(lt) / float64(n-1)
	}
	return ranks
}

// Ntile splits values, ordered ascending, into n buckets of as equal size as
// possible and returns each value's 1-based bucket. Earlier buckets take the
// remainder. Ties keep input order.
func Ntile[T any](values []T, n int, cmp func(a, b T) int) []int {
	m := len(values)
	buckets := make([]int, m)
	if m == 0 || n < 1 {
		return buckets
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return cmp(values[order[a]], values[order[b]]) < 0 })

	base, extra := m/n, m%n
	pos := 0
	for bucket := 1; bucket <= n && pos < m; bucket++ {
		size := base
		if bucket <= extra {
			size++
		}
		for k := 0; k < size; k++ {
			buckets[order[pos]] = bucket
			pos++
		}
	}
	return buckets
}

// TrailingMean returns the mean of each value and up to periods-1 values before it
func TrailingMean(values []decimal.Decimal, periods int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	if periods < 1 {
		periods = 1
	}
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(v)
		if i >= periods {
			sum = sum.Sub(values[i-periods])
		}
		size := periods
		if i+1 < periods {
			size = i + 1
		}
		out[i] = sum.Div(decimal.NewFromInt(int64(size)))
	}
	return out
}

// TrailingMeanFloat is TrailingMean over float64 values
func TrailingMeanFloat(values []float64, periods int) []float64 {
	out := make([]float64, len(values))
	if periods < 1 {
		periods = 1
	}
	for i := range values {
		start := i - periods + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for _, v := range values[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i+1-start)
	}
	return out
}

// CompareDecimal orders decimals ascending
func CompareDecimal(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

func sortedCopy[T any](values []T, cmp func(a, b T) int) []T {
	sorted := append([]T(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })
	return sorted
}
