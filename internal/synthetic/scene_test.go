package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajlink/internal/pose"
)

func TestSceneBuild(t *testing.T) {
	t.Parallel()

	shape := pose.Shape{Landmarks: 4, Dims: 2}
	scene := Scene{
		Shape:  shape,
		Frames: 10,
		Walkers: []Walker{
			{Start: 0, End: 9, X: 0, Y: 0, VX: 1},
			{Start: 2, End: 5, X: 100, Y: 0, Missing: []int{3}, Conf: 0.4},
		},
	}
	seq, err := scene.Build()
	require.NoError(t, err)
	require.Equal(t, 2, seq.NumTargets())

	assert.InDelta(t, 19.0, seq.Pose(0, 9)[0], 1e-9, "x = 9 + radius")
	assert.True(t, seq.Pose(1, 3).IsMissing())
	assert.Equal(t, 0.4, seq.Confidence(1, 4))

	start, end, ok := seq.TargetRange(1)
	require.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 5, end)
}

func TestSceneShuffleDeterministic(t *testing.T) {
	t.Parallel()

	scene := Scene{
		Shape:   pose.Shape{Landmarks: 2, Dims: 2},
		Frames:  5,
		Walkers: []Walker{{End: 4}, {End: 4, X: 50}, {End: 4, X: 100}},
		Shuffle: true,
		Seed:    7,
	}
	a, err := scene.Build()
	require.NoError(t, err)
	b, err := scene.Build()
	require.NoError(t, err)
	for tt := 0; tt < 5; tt++ {
		assert.Equal(t, a.Frame(tt), b.Frame(tt))
		assert.Len(t, pose.RealIndex(a.Frame(tt)), 3)
	}
}
