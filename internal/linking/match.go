package linking

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/pose"
)

const (
	// strictMatchEps keeps the second-best/best ratio finite for exact matches.
	strictMatchEps = 1e-4
	// marginalBandHi bounds the marginal band of ambiguous costs from above,
	// as a multiple of max cost.
	marginalBandHi = 1.95
	// angleMinNorm is the minimum landmark displacement entering the span.
	angleMinNorm = 3.0
	angleStepDeg = 10
)

// NoLastID asks MatchFrame to derive the last issued identity from the
// current identities.
const NoLastID = math.MinInt

// Detections is the set of real detections of one frame.
type Detections struct {
	Shape pose.Shape
	Poses []pose.Pose
}

func (d Detections) validate() error {
	for i, p := range d.Poses {
		if len(p) != d.Shape.Size() {
			return fmt.Errorf("detection %d has %d coordinates, want %d: %w", i, len(p), d.Shape.Size(), ErrShapeMismatch)
		}
	}
	return nil
}

// MatchOptions selects the thresholds of one frame match.
type MatchOptions struct {
	MaxCost              float64
	StrictMatchThreshold float64
	// ForceMatch disables the strict-match and marginal-band heuristics.
	ForceMatch bool
}

// MatchResult is the outcome of matching two frames.
type MatchResult struct {
	IDs    []int     // identity of every next detection
	LastID int       // largest identity issued so far
	Cost   float64   // total assignment cost
	Costs  []float64 // per-row cost, current detections first then births
	Births int
	Deaths int
}

// MatchFrame assigns the identities idsCurr of detections curr to the
// detections next of the following frame. Each side may leave a detection
// unmatched at cost MaxCost/2: unmatched next detections are born with fresh
// identities above lastID, unmatched current detections die.
func MatchFrame(curr, next Detections, idsCurr []int, lastID int, opt MatchOptions) (MatchResult, error) {
	if err := curr.Shape.Check(next.Shape); err != nil {
		return MatchResult{}, err
	}
	if err := curr.validate(); err != nil {
		return MatchResult{}, err
	}
	if err := next.validate(); err != nil {
		return MatchResult{}, err
	}
	if len(idsCurr) != len(curr.Poses) {
		return MatchResult{}, fmt.Errorf("%d identities for %d detections: %w", len(idsCurr), len(curr.Poses), ErrShapeMismatch)
	}
	if opt.MaxCost <= 0 || math.IsNaN(opt.MaxCost) {
		return MatchResult{}, ErrNoMaxCost
	}
	if lastID == NoLastID {
		lastID = -1
		for _, id := range idsCurr {
			if id > lastID {
				lastID = id
			}
		}
	}

	if len(curr.Poses)+len(next.Poses) == 0 {
		return MatchResult{IDs: []int{}, LastID: lastID}, nil
	}
	c := movementCosts(curr.Poses, next.Poses, curr.Shape, opt)
	assign := HungarianAssign(c)
	return collectMatch(c, assign, len(curr.Poses), len(next.Poses), idsCurr, lastID), nil
}

// movementCosts builds the (ncurr+nnext) square matrix: real pairs in the
// top-left block, death and birth in the off-diagonal blocks at maxCost/2 and
// a zero null block.
func movementCosts(curr, next []pose.Pose, shape pose.Shape, opt MatchOptions) *mat.Dense {
	ncurr, nnext := len(curr), len(next)
	n := ncurr + nnext
	maxCost := opt.MaxCost
	c := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i >= ncurr && j >= nnext {
				continue
			}
			c.Set(i, j, maxCost/2)
		}
	}
	raw := mat.NewDense(max(ncurr, 1), max(nnext, 1), nil)
	for i := 0; i < ncurr; i++ {
		for j := 0; j < nnext; j++ {
			d := pose.MeanL1(curr[i], next[j], shape.Landmarks)
			raw.Set(i, j, d)
			if math.IsNaN(d) {
				d = maxCost * 2
			}
			c.Set(i, j, d)
		}
	}
	if ncurr == 0 || nnext == 0 || opt.ForceMatch {
		return c
	}

	strict := opt.StrictMatchThreshold
	for i := 0; i < ncurr; i++ {
		if ambiguous(mat.Row(nil, i, raw)[:nnext], strict) {
			for j := 0; j < nnext; j++ {
				c.Set(i, j, maxCost*2)
			}
		}
	}
	for j := 0; j < nnext; j++ {
		if ambiguous(mat.Col(nil, j, raw)[:ncurr], strict) {
			for i := 0; i < ncurr; i++ {
				c.Set(i, j, maxCost*2)
			}
		}
	}

	// Band entries are reconsidered in row order against the matrix as it
	// stands, so an earlier discount can open a match for a later pair.
	for i := 0; i < ncurr; i++ {
		for j := 0; j < nnext; j++ {
			if hasCheapMatch(c, i, j, ncurr, nnext, maxCost) {
				continue
			}
			v := c.At(i, j)
			if v <= maxCost || v >= marginalBandHi*maxCost {
				continue
			}
			span := AngleSpan(curr[i], next[j], shape)
			if span <= 180 {
				c.Set(i, j, v*math.Max(span, 90)/180)
			}
		}
	}
	return c
}

// ambiguous reports whether the best cost of a row or column is not clearly
// separated from the runner-up.
func ambiguous(costs []float64, thresh float64) bool {
	c1, c2 := math.Inf(1), math.Inf(1)
	found := false
	for _, v := range costs {
		if math.IsNaN(v) {
			continue
		}
		found = true
		if v < c1 {
			c1, c2 = v, c1
		} else if v < c2 {
			c2 = v
		}
	}
	if !found {
		return false
	}
	return c2/(c1+strictMatchEps) < thresh
}

func hasCheapMatch(c *mat.Dense, i, j, ncurr, nnext int, maxCost float64) bool {
	for k := 0; k < nnext; k++ {
		if c.At(i, k) < maxCost {
			return true
		}
	}
	for k := 0; k < ncurr; k++ {
		if c.At(k, j) < maxCost {
			return true
		}
	}
	return false
}

// AngleSpan is the smallest arc, in degrees, containing the displacement
// directions of every landmark of a that moved more than a few units towards
// b. A coherent translation has a span near 0; a pose that deformed in
// every direction approaches 360. It is 0 when no landmark moved enough.
func AngleSpan(a, b pose.Pose, shape pose.Shape) float64 {
	if shape.Dims < 2 {
		return 0
	}
	angles := make([]float64, 0, shape.Landmarks)
	for l := 0; l < shape.Landmarks; l++ {
		dx := a[l*shape.Dims] - b[l*shape.Dims]
		dy := a[l*shape.Dims+1] - b[l*shape.Dims+1]
		if math.IsNaN(dx) || math.IsNaN(dy) || math.Hypot(dx, dy) <= angleMinNorm {
			continue
		}
		angles = append(angles, math.Atan2(dy, dx)*180/math.Pi)
	}
	if len(angles) == 0 {
		return 0
	}
	best := math.Inf(1)
	for off := 0; off < 360; off += angleStepDeg {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, a := range angles {
			r := math.Mod(a+float64(off)+720, 360)
			lo = math.Min(lo, r)
			hi = math.Max(hi, r)
		}
		best = math.Min(best, hi-lo)
	}
	return best
}

func collectMatch(c *mat.Dense, assign []int, ncurr, nnext int, idsCurr []int, lastID int) MatchResult {
	res := MatchResult{
		IDs:    make([]int, nnext),
		LastID: lastID,
		Costs:  make([]float64, len(assign)),
	}
	for j := range res.IDs {
		res.IDs[j] = -1
	}
	var births []int
	for i, j := range assign {
		if j < 0 {
			continue
		}
		v := c.At(i, j)
		res.Costs[i] = v
		res.Cost += v
		switch {
		case i < ncurr && j < nnext:
			res.IDs[j] = idsCurr[i]
		case i < ncurr:
			res.Deaths++
		case j < nnext:
			births = append(births, j)
		}
	}
	// Fresh identities follow detection order so lower slots get lower ids.
	sort.Ints(births)
	for _, j := range births {
		res.LastID++
		res.IDs[j] = res.LastID
	}
	res.Births = len(births)
	return res
}
