package linking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/synthetic"
	"github.com/banshee-data/trajlink/internal/testutil"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

func testParams() Params {
	p := DefaultParams()
	p.MaxCost = 5
	p.MaxCostMissed = []float64{5, 5, 5}
	return p
}

func TestAssignIDs_StaticTargetsConstant(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, testutil.StaticScene(shape4, 2, 6))
	ids, costs, stats, err := AssignIDs(seq, testParams(), 0)
	require.NoError(t, err)

	for tt := 0; tt < 6; tt++ {
		assert.Equal(t, []int{0, 1}, ids.Frame(tt), "frame %d", tt)
	}
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, costs)
	assert.Equal(t, 1, stats.LastID)
	assert.Zero(t, stats.Births)
}

func TestAssignIDs_BirthAndDeath(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:  shape4,
		Frames: 10,
		Walkers: []synthetic.Walker{
			{Start: 0, End: 9, VX: 1},
			{Start: 5, End: 7, X: 300},
		},
	})
	ids, _, stats, err := AssignIDs(seq, testParams(), 0)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, ids.Target(0, 0, 9))
	assert.Equal(t, []int{tracklet.NoID, 1, 1, 1, tracklet.NoID}, ids.Target(1, 4, 8))
	assert.Equal(t, 1, stats.Births)
	assert.Equal(t, 1, stats.Deaths)
}

func TestAssignIDs_ShuffledSlotsKeepWalkers(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:  shape4,
		Frames: 20,
		Walkers: []synthetic.Walker{
			{End: 19, X: 0, VX: 1},
			{End: 19, X: 100, VY: 1},
			{End: 19, X: 200, VX: -1},
		},
		Shuffle: true,
		Seed:    3,
	})
	ids, _, _, err := AssignIDs(seq, testParams(), 0)
	require.NoError(t, err)

	// Recover the walker from the centre position and check the identity
	// never changes.
	idOf := map[int]int{}
	for tt := 0; tt < 20; tt++ {
		for slot, p := range seq.Frame(tt) {
			if p.IsMissing() {
				continue
			}
			var cx float64
			for l := 0; l < shape4.Landmarks; l++ {
				cx += p[l*shape4.Dims]
			}
			walker := int(math.Round(cx / float64(shape4.Landmarks) / 100))
			id := ids.Get(slot, tt)
			if prev, ok := idOf[walker]; ok {
				assert.Equal(t, prev, id, "walker %d at frame %d", walker, tt)
			}
			idOf[walker] = id
		}
	}
	assert.Len(t, idOf, 3)
}

func TestAssignIDs_MaxFramesAndErrors(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, testutil.StaticScene(shape4, 1, 10))
	ids, costs, _, err := AssignIDs(seq, testParams(), 4)
	require.NoError(t, err)
	assert.Len(t, costs, 3)
	_, end, ok := ids.Range(0)
	require.True(t, ok)
	assert.Equal(t, 3, end)

	p := testParams()
	p.MaxCost = 0
	_, _, _, err = AssignIDs(seq, p, 0)
	assert.ErrorIs(t, err, ErrNoMaxCost)
}

func TestDummyIDs(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:   shape4,
		Frames:  6,
		Walkers: []synthetic.Walker{{End: 5}, {Start: 2, End: 4, X: 1}},
	})
	ids, err := DummyIDs(seq, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids.Frame(3))
	assert.Equal(t, []int{0, tracklet.NoID}, ids.Frame(5))
}

func TestAssignRecognizeIDs(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:  shape4,
		Frames: 4,
		Walkers: []synthetic.Walker{
			{End: 3},
			{End: 2, X: 100},
		},
	})
	// Detection j resembles target 1-j.
	both := mat.NewDense(2, 2, []float64{5, 0, 0, 5})
	one := mat.NewDense(2, 1, []float64{5, 0})
	costs := &CostSeries{NumTargets: 2, Frames: []mat.Matrix{both, both, both, one}}

	ids, stats, err := AssignRecognizeIDs(seq, costs, testParams(), 0)
	require.NoError(t, err)
	for tt := 0; tt < 3; tt++ {
		assert.Equal(t, []int{1, 0}, ids.Frame(tt), "frame %d", tt)
	}
	assert.Equal(t, 1, ids.Get(0, 3))

	h := stats.Health()
	assert.Equal(t, 4, h.Frames)
	assert.Equal(t, 1, h.Missing, "target 0 disappears in the last frame")
	assert.Zero(t, h.Extra)
	assert.Equal(t, 1, h.PredictionsMin)
	assert.Equal(t, 2, h.PredictionsMax)
	assert.InDelta(t, 1.75, h.PredictionsMean, 1e-12)
	assert.Zero(t, h.IDCost)
	assert.Len(t, h.MovementPercentiles, len(HealthPercentiles))
	assert.Len(t, h.IDPercentiles, len(HealthPercentiles))
}

func TestRecognizeStats_HealthPercentiles(t *testing.T) {
	t.Parallel()

	stats := RecognizeStats{
		Frames: []FrameStats{
			{MovementCost: 0, IDCost: 4, Predictions: 1},
			{MovementCost: 1, IDCost: 4, Predictions: 1},
			{MovementCost: 2, IDCost: 4, Predictions: 1},
			{MovementCost: 3, IDCost: 4, Predictions: 1},
		},
		// Totals per frame; the percentiles must not be taken over these.
		Costs: []float64{40, 50, 60, 70},
	}
	h := stats.Health()
	require.Len(t, h.MovementPercentiles, len(HealthPercentiles))
	require.Len(t, h.IDPercentiles, len(HealthPercentiles))
	for k, q := range HealthPercentiles {
		assert.InDelta(t, 3*q/100, h.MovementPercentiles[k], 1e-12, "movement p%.0f", q)
		assert.InDelta(t, 4.0, h.IDPercentiles[k], 1e-12, "identity p%.0f", q)
	}
	assert.InDelta(t, 6.0, h.MovementCost, 1e-12)
	assert.InDelta(t, 16.0, h.IDCost, 1e-12)
}

func TestAssignRecognizeIDs_Errors(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, testutil.StaticScene(shape4, 2, 2))
	_, _, err := AssignRecognizeIDs(seq, &CostSeries{}, testParams(), 0)
	assert.Error(t, err)

	bad := &CostSeries{NumTargets: 2, Frames: []mat.Matrix{mat.NewDense(1, 2, nil), mat.NewDense(1, 2, nil)}}
	_, _, err = AssignRecognizeIDs(seq, bad, testParams(), 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	short := &CostSeries{NumTargets: 2, Frames: []mat.Matrix{mat.NewDense(2, 2, nil)}}
	_, _, err = AssignRecognizeIDs(seq, short, testParams(), 0)
	assert.Error(t, err, "missing costs for frame 1")
}
