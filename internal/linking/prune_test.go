package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajlink/internal/synthetic"
	"github.com/banshee-data/trajlink/internal/testutil"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

func TestDeleteShort(t *testing.T) {
	t.Parallel()

	ids := tracklet.NewIDs(3)
	require.NoError(t, ids.SetRange(0, 0, []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, ids.SetRange(1, 3, []int{1, 1}))
	require.NoError(t, ids.SetRange(2, 0, []int{2, 2, tracklet.NoID, tracklet.NoID, tracklet.NoID, 2}))

	dummy := tracklet.NewFlags(3)
	require.NoError(t, dummy.SetRange(2, 2, []bool{true, true, true}))

	deleted := DeleteShort(ids, dummy, 3)
	assert.Equal(t, []int{1, 2}, deleted, "two-frame identity and a mostly bridged one")
	assert.Empty(t, ids.Where(1))
	assert.Empty(t, ids.Where(2))
	assert.Len(t, ids.Where(0), 10)

	// Without the dummy table identity 2 spans six frames.
	ids2 := tracklet.NewIDs(1)
	require.NoError(t, ids2.SetRange(0, 0, []int{2, 2, tracklet.NoID, tracklet.NoID, tracklet.NoID, 2}))
	assert.Empty(t, DeleteShort(ids2, nil, 3))
}

func TestDeleteLowConf(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:  shape4,
		Frames: 5,
		Walkers: []synthetic.Walker{
			{End: 4, Conf: 0.9},
			{End: 4, X: 100, Conf: 0.2},
		},
	})
	ids, err := DummyIDs(seq, 0)
	require.NoError(t, err)

	deleted := DeleteLowConf(seq, ids, 0.5)
	assert.Equal(t, []int{1}, deleted)
	assert.Empty(t, ids.Where(1))
	assert.Len(t, ids.Where(0), 5)
}

func TestMergeClose(t *testing.T) {
	t.Parallel()

	seq := testutil.MustBuild(t, synthetic.Scene{
		Shape:  shape4,
		Frames: 6,
		Walkers: []synthetic.Walker{
			{End: 5, X: 0},
			{End: 5, X: 300},
			{Start: 2, End: 5, X: 0.5},
		},
	})
	require.Equal(t, 3, seq.NumTargets())

	merges, mapping := MergeClose(seq, 2)
	assert.Equal(t, 1, merges)
	assert.Equal(t, []int{0, 1, 0}, mapping)
	require.Equal(t, 2, seq.NumTargets())

	assert.InDelta(t, 10.0, seq.Pose(0, 0)[0], 1e-9, "frames only in the lower track are kept")
	assert.InDelta(t, 10.25, seq.Pose(0, 3)[0], 1e-9, "shared frames hold the mean pose")
	assert.InDelta(t, 310.0, seq.Pose(1, 3)[0], 1e-9)
	merges, mapping = MergeClose(seq, 2)
	assert.Zero(t, merges, "nothing left to merge")
	assert.Equal(t, []int{0, 1}, mapping)
}
