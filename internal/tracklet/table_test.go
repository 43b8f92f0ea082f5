package tracklet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_DefaultOutsideRange(t *testing.T) {
	t.Parallel()

	tb := NewIDs(2)
	require.NoError(t, tb.Allocate(0, 3, 5))

	assert.Equal(t, NoID, tb.Get(0, 2))
	assert.Equal(t, NoID, tb.Get(0, 3), "allocated cells start at the default")
	assert.Equal(t, NoID, tb.Get(1, 4), "unallocated entity")
	assert.Equal(t, NoID, tb.Get(7, 4), "unknown entity")

	start, end, ok := tb.Range(0)
	require.True(t, ok)
	assert.Equal(t, 3, start)
	assert.Equal(t, 5, end)

	_, _, ok = tb.Range(1)
	assert.False(t, ok)
}

func TestTable_AllocateRejectsMalformedRanges(t *testing.T) {
	t.Parallel()

	tb := NewIDs(1)
	assert.ErrorIs(t, tb.Allocate(0, 5, 4), ErrInvalidRange)
	assert.ErrorIs(t, tb.Allocate(-1, 0, 4), ErrInvalidRange)
	assert.ErrorIs(t, tb.AllocateAll([]int{0}, []int{1, 2}), ErrInvalidRange)
}

func TestTable_SetReallocates(t *testing.T) {
	t.Parallel()

	tb := NewIDs(1)
	require.NoError(t, tb.Allocate(0, 4, 5))
	require.NoError(t, tb.Set(0, 4, 7))
	require.NoError(t, tb.Set(0, 2, 7))
	require.NoError(t, tb.Set(0, 8, 9))

	start, end, ok := tb.Range(0)
	require.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 8, end)

	want := []int{7, NoID, 7, NoID, NoID, NoID, 9}
	if diff := cmp.Diff(want, tb.Target(0, 2, 8)); diff != "" {
		t.Errorf("target values mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, tb.Set(3, 1, 1))
	assert.Equal(t, 4, tb.Len(), "writing to a new entity grows the table")
}

func TestTable_FrameWhereReplace(t *testing.T) {
	t.Parallel()

	tb := NewIDs(3)
	require.NoError(t, tb.SetRange(0, 0, []int{0, 0, 0}))
	require.NoError(t, tb.SetRange(1, 1, []int{1, 1, 2}))
	require.NoError(t, tb.SetFrame(2, []int{2}, []int{2}))

	assert.Equal(t, []int{0, 1, 2}, tb.Frame(2))
	assert.Equal(t, []int{0, NoID, NoID}, tb.Frame(0))

	cells := tb.Where(2)
	assert.Equal(t, []Cell{{Target: 1, Frame: 3}, {Target: 2, Frame: 2}}, cells)

	n := tb.Replace(2, 0)
	assert.Equal(t, 2, n)
	assert.Empty(t, tb.Where(2))
	assert.Equal(t, 0, tb.Replace(0, 0))
}

func TestTable_CloneIsDeep(t *testing.T) {
	t.Parallel()

	tb := NewFlags(1)
	require.NoError(t, tb.Set(0, 3, true))
	c := tb.Clone()
	require.NoError(t, c.Set(0, 3, false))

	assert.True(t, tb.Get(0, 3))
	assert.False(t, c.Get(0, 3))
}

func TestSpans(t *testing.T) {
	t.Parallel()

	tb := NewIDs(2)
	require.NoError(t, tb.SetRange(0, 0, []int{0, 0, 1, 1}))
	require.NoError(t, tb.SetRange(1, 2, []int{0, 0, NoID, 3}))

	spans := Spans(tb)
	require.Len(t, spans, 4)
	assert.Equal(t, Span{Start: 0, End: 3, Frames: 4}, spans[0])
	assert.Equal(t, Span{Start: 2, End: 3, Frames: 2}, spans[1])
	assert.False(t, spans[2].Present())
	assert.Equal(t, Span{Start: 5, End: 5, Frames: 1}, spans[3])
}

func TestCompact_DenseAndIdempotent(t *testing.T) {
	t.Parallel()

	tb := NewIDs(3)
	require.NoError(t, tb.SetRange(0, 0, []int{4, 4, NoID}))
	require.NoError(t, tb.SetRange(1, 0, []int{9, 2, 2}))
	require.NoError(t, tb.SetRange(2, 1, []int{9}))

	mapping := Compact(tb)
	assert.Equal(t, 0, mapping[2])
	assert.Equal(t, 1, mapping[4])
	assert.Equal(t, 2, mapping[9])
	assert.Equal(t, NoID, mapping[3])

	assert.Equal(t, []int{1, 2, NoID}, tb.Frame(0))
	assert.Equal(t, 2, MaxID(tb))

	before := tb.Clone()
	second := Compact(tb)
	assert.Equal(t, []int{0, 1, 2}, second)
	for slot := 0; slot < tb.Len(); slot++ {
		assert.Equal(t, before.Target(slot, 0, 3), tb.Target(slot, 0, 3))
	}
}

func TestSlotOf(t *testing.T) {
	t.Parallel()

	tb := NewIDs(3)
	require.NoError(t, tb.Set(2, 5, 8))
	assert.Equal(t, 2, SlotOf(tb, 8, 5))
	assert.Equal(t, -1, SlotOf(tb, 8, 4))
}
