package linking

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// IdentityCosts provides per-frame identity costs for a fixed set of targets.
type IdentityCosts interface {
	// Targets is the number of known targets.
	Targets() int
	// Cost returns the targets × detections cost matrix for frame t, with
	// detection columns ordered by source slot. It may return nil for a frame
	// without detections.
	Cost(t int) (mat.Matrix, error)
}

// CostSeries is an IdentityCosts backed by one matrix per frame, indexed
// from First.
type CostSeries struct {
	NumTargets int
	First      int
	Frames     []mat.Matrix
}

func (s *CostSeries) Targets() int { return s.NumTargets }

func (s *CostSeries) Cost(t int) (mat.Matrix, error) {
	k := t - s.First
	if k < 0 || k >= len(s.Frames) {
		return nil, fmt.Errorf("no identity costs for frame %d", t)
	}
	return s.Frames[k], nil
}

// RecognizeStats collects the per-frame statistics of an identity-informed
// assignment.
type RecognizeStats struct {
	Frames []FrameStats
	Costs  []float64
}

// Health is the summary logged at the end of an identity-informed run.
type Health struct {
	Frames          int
	Missing         int
	Extra           int
	ExtraAndMissing int // frames with both an extra and a missing detection
	PredictionsMin  int
	PredictionsMean float64
	PredictionsMax  int
	MovementCost    float64
	IDCost          float64
	// Per-frame movement and identity cost percentiles at HealthPercentiles.
	MovementPercentiles []float64
	IDPercentiles       []float64
}

// HealthPercentiles are the cost percentiles reported by Health.
var HealthPercentiles = []float64{5, 10, 25, 50, 75, 90, 95}

// Health summarises the statistics.
func (s RecognizeStats) Health() Health {
	h := Health{Frames: len(s.Frames)}
	if len(s.Frames) == 0 {
		return h
	}
	h.PredictionsMin = math.MaxInt
	var preds int
	movement := make([]float64, len(s.Frames))
	idCost := make([]float64, len(s.Frames))
	for k, f := range s.Frames {
		movement[k], idCost[k] = f.MovementCost, f.IDCost
		h.Missing += f.Missing
		h.Extra += f.Extra
		if f.Missing > 0 && f.Extra > 0 {
			h.ExtraAndMissing++
		}
		h.MovementCost += f.MovementCost
		h.IDCost += f.IDCost
		preds += f.Predictions
		h.PredictionsMin = min(h.PredictionsMin, f.Predictions)
		h.PredictionsMax = max(h.PredictionsMax, f.Predictions)
	}
	h.PredictionsMean = float64(preds) / float64(len(s.Frames))
	h.MovementPercentiles = percentiles(movement, HealthPercentiles...)
	h.IDPercentiles = percentiles(idCost, HealthPercentiles...)
	return h
}

func (h Health) log() {
	monitoring.Logf("[linking] identity assignment over %d frames: %d missing, %d extra, %d frames with both",
		h.Frames, h.Missing, h.Extra, h.ExtraAndMissing)
	monitoring.Logf("[linking] predictions per frame min/mean/max %d/%.2f/%d, movement cost %.3f, identity cost %.3f",
		h.PredictionsMin, h.PredictionsMean, h.PredictionsMax, h.MovementCost, h.IDCost)
	for k, q := range HealthPercentiles {
		monitoring.Debugf("[linking]   p%.0f movement cost %.3f, identity cost %.3f", q, h.MovementPercentiles[k], h.IDPercentiles[k])
	}
}

// ErrNoTargets is returned when identity costs describe no targets.
var ErrNoTargets = errors.New("identity costs describe no targets")

// AssignRecognizeIDs links detections to a fixed set of known targets using
// identity costs plus weighted movement from each target's last known pose.
// A target not detected for more than MaxFramesMissed frames loses its
// position and is matched on identity alone. The returned table maps every
// source slot to a target index, or NoID for extra detections.
func AssignRecognizeIDs(src pose.Source, costs IdentityCosts, p Params, maxFrames int) (*tracklet.IDs, RecognizeStats, error) {
	var stats RecognizeStats
	nt := costs.Targets()
	if nt <= 0 {
		return nil, stats, ErrNoTargets
	}
	first, last := frameWindow(src, maxFrames)
	ids, err := newSlotIDs(src, first, last)
	if err != nil {
		return nil, stats, err
	}

	opt := IDMatchOptions{CostMissing: p.CostMissing, CostExtra: p.CostExtra, WeightMovement: p.WeightMovement}
	known := make([]pose.Pose, nt)
	sinceSeen := make([]int, nt)
	for i := range sinceSeen {
		sinceSeen[i] = p.MaxFramesMissed
	}

	for t := first; t <= last; t++ {
		slots, next := frameDetections(src, t)
		idCost, err := costs.Cost(t)
		if err != nil {
			return nil, stats, err
		}
		res, err := MatchFrameID(known, next, idCost, opt)
		if err != nil {
			return nil, stats, fmt.Errorf("frame %d: %w", t, err)
		}
		if err := ids.SetFrame(t, slots, res.Targets); err != nil {
			return nil, stats, err
		}

		for i := range sinceSeen {
			sinceSeen[i]++
		}
		for j, target := range res.Targets {
			if target < 0 {
				continue
			}
			known[target] = next.Poses[j]
			sinceSeen[target] = 0
		}
		for i, n := range sinceSeen {
			if n > p.MaxFramesMissed {
				known[i] = nil
			}
		}

		monitoring.Tracef("[linking] frame %d: %d detections, %d missing, %d extra, cost %.3f",
			t, len(slots), res.Stats.Missing, res.Stats.Extra, res.Cost)
		stats.Frames = append(stats.Frames, res.Stats)
		stats.Costs = append(stats.Costs, res.Cost)
	}
	stats.Health().log()
	return ids, stats, nil
}
