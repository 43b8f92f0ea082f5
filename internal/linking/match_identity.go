package linking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/pose"
)

// FrameStats describes one identity-informed frame match.
type FrameStats struct {
	Missing      int     // targets assigned to no detection
	Extra        int     // detections assigned to no target
	MovementCost float64 // weighted movement share of matched pairs
	IDCost       float64 // identity share of matched pairs
	Predictions  int
}

// IDMatchResult assigns a known target index to every detection of a frame.
type IDMatchResult struct {
	Targets []int // target of every detection, -1 for extras
	Cost    float64
	Costs   []float64
	Stats   FrameStats
}

// IDMatchOptions holds the costs of an identity-informed match.
type IDMatchOptions struct {
	CostMissing    float64
	CostExtra      float64
	WeightMovement float64
}

// MatchFrameID matches detections next to a fixed set of targets. last holds
// the last known pose of every target, nil or all-NaN when unknown; idCost is
// a targets × detections matrix of identity costs. Pairs whose target has an
// unknown position carry no movement cost.
func MatchFrameID(last []pose.Pose, next Detections, idCost mat.Matrix, opt IDMatchOptions) (IDMatchResult, error) {
	if err := next.validate(); err != nil {
		return IDMatchResult{}, err
	}
	nt, nnext := len(last), len(next.Poses)
	// Empty sides cannot be represented by a dense matrix; idCost is ignored.
	if r, c := dims(idCost); nt > 0 && nnext > 0 && (r != nt || c != nnext) {
		return IDMatchResult{}, fmt.Errorf("identity costs are %dx%d, want %dx%d: %w", r, c, nt, nnext, ErrShapeMismatch)
	}
	for i, p := range last {
		if p != nil && len(p) != next.Shape.Size() {
			return IDMatchResult{}, fmt.Errorf("target %d pose has %d coordinates, want %d: %w", i, len(p), next.Shape.Size(), ErrShapeMismatch)
		}
	}
	res := IDMatchResult{Targets: make([]int, nnext)}
	for j := range res.Targets {
		res.Targets[j] = -1
	}
	n := nt + nnext
	if n == 0 {
		return res, nil
	}

	c := mat.NewDense(n, n, nil)
	move := make([]float64, nt*max(nnext, 1))
	for i := 0; i < nt; i++ {
		for j := nnext; j < n; j++ {
			c.Set(i, j, opt.CostMissing)
		}
	}
	for i := nt; i < n; i++ {
		for j := 0; j < nnext; j++ {
			c.Set(i, j, opt.CostExtra)
		}
	}
	for i := 0; i < nt; i++ {
		known := last[i] != nil && !last[i].IsMissing()
		for j := 0; j < nnext; j++ {
			d := 0.0
			if known {
				d = pose.MeanL1(last[i], next.Poses[j], next.Shape.Landmarks)
				if math.IsNaN(d) {
					d = 0
				}
				d *= opt.WeightMovement
			}
			move[i*nnext+j] = d
			c.Set(i, j, d+idCost.At(i, j))
		}
	}

	assign := HungarianAssign(c)
	res.Costs = make([]float64, len(assign))
	for i, j := range assign {
		if j < 0 {
			continue
		}
		v := c.At(i, j)
		res.Costs[i] = v
		res.Cost += v
		switch {
		case i < nt && j < nnext:
			res.Targets[j] = i
			res.Stats.MovementCost += move[i*nnext+j]
			res.Stats.IDCost += idCost.At(i, j)
		case i < nt:
			res.Stats.Missing++
		case j < nnext:
			res.Stats.Extra++
		}
	}
	res.Stats.Predictions = nnext
	return res, nil
}

func dims(m mat.Matrix) (int, int) {
	if m == nil {
		return 0, 0
	}
	return m.Dims()
}
