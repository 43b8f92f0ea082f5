package linking

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/trajlink/internal/config"
	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
)

const (
	// defaultMaxCost is used when no frame pair could be sampled.
	defaultMaxCost = 10.0
	// forceMatchScale scales pose.Bounds into a birth/death cost that no real
	// pair can exceed.
	forceMatchScale = 2.1

	kneeLo   = 50.0
	kneeHi   = 100.0
	kneeStep = 0.25
)

// SampleCosts force-matches nsample evenly spaced frame pairs skip frames
// apart and returns the cost of every matched pair.
func SampleCosts(src pose.Source, nsample, skip int) []float64 {
	first, last := src.FirstFrame(), src.LastFrame()
	hi := last - skip - 1
	if hi < first || nsample <= 0 {
		return nil
	}
	nsample = min(nsample, last-first+1)
	big := math.Max(pose.Bounds(src)*forceMatchScale, 1)
	opt := MatchOptions{MaxCost: big, ForceMatch: true}

	samples := make([]float64, nsample)
	if nsample == 1 {
		samples[0] = float64(first)
	} else {
		floats.Span(samples, float64(first), float64(hi))
	}

	var costs []float64
	for _, ts := range samples {
		t := int(math.Round(ts))
		_, curr := frameDetections(src, t)
		_, next := frameDetections(src, t+skip)
		if len(curr.Poses) == 0 || len(next.Poses) == 0 {
			continue
		}
		idsCurr := make([]int, len(curr.Poses))
		for i := range idsCurr {
			idsCurr[i] = i
		}
		res, err := MatchFrame(curr, next, idsCurr, NoLastID, opt)
		if err != nil {
			monitoring.Debugf("[calibrate] frame %d skipped: %v", t, err)
			continue
		}
		matched := make(map[int]bool, len(res.IDs))
		for _, id := range res.IDs {
			if id <= len(idsCurr)-1 {
				matched[id] = true
			}
		}
		for i := range idsCurr {
			if matched[i] {
				costs = append(costs, res.Costs[i])
			}
		}
	}
	return costs
}

// EstimateMaxCost calibrates the birth+death threshold for detections skip
// frames apart by sampling matched costs over every source and reducing them
// with the configured heuristic.
func EstimateMaxCost(srcs []pose.Source, p Params, skip int) float64 {
	var costs []float64
	for _, src := range srcs {
		costs = append(costs, SampleCosts(src, p.MaxCostSamples, skip)...)
	}
	if len(costs) == 0 {
		monitoring.Logf("[calibrate] no matched samples at skip %d, using default max cost %.1f", skip, defaultMaxCost)
		return defaultMaxCost
	}
	var v float64
	switch p.MaxCostHeuristic {
	case config.HeuristicPercentile:
		v = p.MaxCostMult * percentile(costs, p.MaxCostPercentile)
	default:
		v = p.MaxCostMult * kneeThreshold(costs, p.KneeMinValue, p.KneeFallbackPercentile)
	}
	if !(v > 0) {
		monitoring.Logf("[calibrate] degenerate max cost %.3f at skip %d, using default %.1f", v, skip, defaultMaxCost)
		return defaultMaxCost
	}
	monitoring.Debugf("[calibrate] skip %d: %d samples, max cost %.3f (%s)", skip, len(costs), v, p.MaxCostHeuristic)
	return v
}

// EstimateMaxCostMissed calibrates one threshold per gap, for detections
// 2..MaxCostFramesFit+1 frames apart.
func EstimateMaxCostMissed(srcs []pose.Source, p Params) []float64 {
	fit := max(p.MaxCostFramesFit, 1)
	out := make([]float64, fit)
	for k := range out {
		out[k] = EstimateMaxCost(srcs, p, k+2)
	}
	return out
}

// kneeThreshold finds the knee of the upper percentile curve of costs. The
// curve is sampled between the 50th and 99.75th percentile; both axes are
// normalised to [0, 1] and the knee is the point furthest above the
// diagonal. A weak knee falls back to a fixed percentile.
func kneeThreshold(costs []float64, minValue, fallback float64) float64 {
	n := int((kneeHi - kneeLo) / kneeStep)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = kneeLo + float64(i)*kneeStep
	}
	qs := percentiles(costs, xs...)
	knee, val := kneedle(xs, qs)
	if knee < 0 || val < minValue {
		v := percentile(costs, fallback)
		monitoring.Debugf("[calibrate] weak knee (%.3f), falling back to p%.1f = %.3f", val, fallback, v)
		return v
	}
	return qs[knee]
}

// kneedle returns the index maximising the gap between normalised x and
// normalised y of a convex increasing curve, and the gap itself.
func kneedle(xs, ys []float64) (int, float64) {
	if len(xs) < 2 {
		return -1, 0
	}
	xlo, xhi := floats.Min(xs), floats.Max(xs)
	ylo, yhi := floats.Min(ys), floats.Max(ys)
	if xhi <= xlo || yhi <= ylo {
		return -1, 0
	}
	diff := make([]float64, len(xs))
	for i := range xs {
		xn := (xs[i] - xlo) / (xhi - xlo)
		yn := (ys[i] - ylo) / (yhi - ylo)
		diff[i] = xn - yn
	}
	k := floats.MaxIdx(diff)
	return k, diff[k]
}
