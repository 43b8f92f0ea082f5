package linking

import (
	"math"
	"sort"
)

// percentiles returns the linearly interpolated q-th percentiles (0..100) of
// xs, matching the usual "linear" definition: rank q/100*(n-1) between the
// two neighbouring order statistics. NaNs are ignored; an empty input yields
// NaN for every q.
func percentiles(xs []float64, qs ...float64) []float64 {
	sorted := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	}
	sort.Float64s(sorted)
	out := make([]float64, len(qs))
	for k, q := range qs {
		out[k] = sortedPercentile(sorted, q)
	}
	return out
}

func percentile(xs []float64, q float64) float64 {
	return percentiles(xs, q)[0]
}

func sortedPercentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	q = math.Max(0, math.Min(100, q))
	rank := q / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// nanMean is the mean of the non-NaN values of xs, NaN when there are none.
func nanMean(xs []float64) float64 {
	var sum float64
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
