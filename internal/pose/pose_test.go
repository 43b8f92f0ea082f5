package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajlink/internal/tracklet"
)

var shape2 = Shape{Landmarks: 2, Dims: 2}

// at returns a two-landmark pose centred on (x, y).
func at(x, y float64) Pose {
	return Pose{x - 1, y, x + 1, y}
}

func TestShapeCheck(t *testing.T) {
	t.Parallel()

	assert.NoError(t, shape2.Check(Shape{Landmarks: 2, Dims: 2}))
	assert.ErrorIs(t, shape2.Check(Shape{Landmarks: 3, Dims: 2}), ErrShapeMismatch)
	assert.ErrorIs(t, shape2.Check(Shape{Landmarks: 2, Dims: 3}), ErrShapeMismatch)
	assert.ErrorIs(t, Shape{}.Validate(), ErrShapeMismatch)
}

func TestMeanL1(t *testing.T) {
	t.Parallel()

	a := Pose{0, 0, 2, 2}
	b := Pose{1, 0, 2, 4}
	assert.InDelta(t, 1.5, MeanL1(a, b, 2), 1e-12)

	c := Pose{math.NaN(), 0, 2, 2}
	assert.InDelta(t, 0.0, MeanL1(a, c, 2), 1e-12)

	// Only the second landmark of d is seen; it is 2 away from b's.
	d := Pose{math.NaN(), math.NaN(), 2, 6}
	assert.InDelta(t, 2.0, MeanL1(b, d, 2), 1e-12, "partial poses are averaged over what is observed")
	full := Pose{1, 2, 2, 4}
	assert.Greater(t, MeanL1(b, d, 2), MeanL1(b, full, 2))
	assert.True(t, math.IsNaN(MeanL1(Missing(shape2), a, 2)))
}

func TestSequence_SetPoseAndRanges(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 9)
	require.NoError(t, err)

	require.NoError(t, seq.SetPose(0, 4, at(1, 1), 0.9))
	require.NoError(t, seq.SetPose(0, 2, at(1, 1), 0.8))
	require.NoError(t, seq.SetPose(1, 7, at(5, 5), 0.7))
	assert.Error(t, seq.SetPose(0, 10, at(1, 1), 1))
	assert.ErrorIs(t, seq.SetPose(0, 3, Pose{1}, 1), ErrShapeMismatch)

	assert.Equal(t, 2, seq.NumTargets())
	assert.True(t, seq.Pose(0, 3).IsMissing())
	assert.False(t, seq.Pose(0, 2).IsMissing())
	assert.True(t, math.IsNaN(seq.Confidence(0, 3)))
	assert.Equal(t, 0.8, seq.Confidence(0, 2))

	sf, ef, ok := seq.TargetRange(0)
	require.True(t, ok)
	assert.Equal(t, 2, sf)
	assert.Equal(t, 4, ef)

	starts, ends := StartEndFrames(seq)
	assert.Equal(t, []int{2, 7}, starts)
	assert.Equal(t, []int{4, 7}, ends)

	assert.Equal(t, []int{0}, RealIndex(seq.Frame(2)))
	assert.Equal(t, []int{1}, RealIndex(seq.Frame(7)))
}

func TestSequence_AddTrackValidates(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 4)
	require.NoError(t, err)

	_, err = seq.AddTrack(0, []Pose{{1, 2, 3}}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = seq.AddTrack(3, []Pose{at(0, 0), at(0, 0), at(0, 0)}, nil)
	assert.Error(t, err, "track beyond last frame")
	idx, err := seq.AddTrack(1, []Pose{at(0, 0)}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestApplyIDs(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 3)
	require.NoError(t, err)
	_, _ = seq.AddTrack(0, []Pose{at(0, 0), at(0, 0), at(9, 9), at(9, 9)}, nil)
	_, _ = seq.AddTrack(0, []Pose{at(9, 9), at(9, 9), at(0, 0), at(0, 0)}, nil)

	ids := tracklet.NewIDs(2)
	require.NoError(t, ids.SetRange(0, 0, []int{0, 0, 1, 1}))
	require.NoError(t, ids.SetRange(1, 0, []int{1, 1, 0, tracklet.NoID}))

	out, err := ApplyIDs(seq, ids)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumTargets())
	for tt := 0; tt < 3; tt++ {
		assert.Equal(t, at(0, 0), out.Pose(0, tt), "frame %d", tt)
	}
	assert.True(t, out.Pose(0, 3).IsMissing(), "NoID cells are dropped")
	assert.Equal(t, at(9, 9), out.Pose(1, 3))
}

func TestSuppressDuplicates(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 1)
	require.NoError(t, err)
	_, _ = seq.AddTrack(0, []Pose{at(0, 0), at(0, 0)}, nil)
	_, _ = seq.AddTrack(0, []Pose{at(0.2, 0), at(30, 0)}, nil)
	_, _ = seq.AddTrack(0, []Pose{at(50, 50), at(50, 50)}, nil)

	removed := SuppressDuplicates(seq, 1)
	assert.Equal(t, 1, removed)
	assert.InDelta(t, 0.1, seq.Pose(0, 0)[0]+1, 1e-12, "mean pose kept in the first slot")
	assert.True(t, seq.Pose(1, 0).IsMissing())
	assert.False(t, seq.Pose(1, 1).IsMissing())
	assert.False(t, seq.Pose(2, 0).IsMissing())
}

func TestInterpolateGaps(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 12)
	require.NoError(t, err)
	poses := []Pose{
		at(0, 0), at(0, 0), nil, nil, at(0.3, 0), // 2-frame gap, small motion: filled
		nil, nil, nil, nil, // 4-frame gap: too long
		at(0.3, 0), nil, at(40, 0), at(40, 0), // 1-frame gap, large jump: kept
	}
	for k := range poses {
		if poses[k] == nil {
			poses[k] = Missing(shape2)
		}
	}
	_, err = seq.AddTrack(0, poses, nil)
	require.NoError(t, err)

	filled := InterpolateGaps(seq, 3, 0.5)
	assert.Equal(t, 2, filled)
	assert.InDelta(t, -0.9, seq.Pose(0, 2)[0], 1e-9)
	assert.InDelta(t, -0.8, seq.Pose(0, 3)[0], 1e-9)
	assert.True(t, seq.Pose(0, 5).IsMissing())
	assert.True(t, seq.Pose(0, 10).IsMissing())
}

func TestBounds(t *testing.T) {
	t.Parallel()

	seq, err := NewSequence(shape2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, Bounds(seq))

	_, _ = seq.AddTrack(0, []Pose{{0, 0, 1, 1}, {2, 0, 1, 3}}, nil)
	assert.InDelta(t, 2+0+0+2, Bounds(seq), 1e-12)
}
