package linking

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/synthetic"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

func symFrom(n int, f func(i, j int) float64) *mat.SymDense {
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.SetSym(i, j, f(i, j))
		}
	}
	return d
}

func TestAverageLinkage(t *testing.T) {
	t.Parallel()

	d := mat.NewSymDense(4, []float64{
		0, 0.1, 5, 5,
		0.1, 0, 5, 6,
		5, 5, 0, 0.2,
		5, 6, 0.2, 0,
	})
	assert.Equal(t, []int{0, 0, 1, 1}, AverageLinkage(d, 1))
	assert.Equal(t, []int{0, 0, 0, 0}, AverageLinkage(d, 10))
	assert.Equal(t, []int{0, 1, 2, 3}, AverageLinkage(d, 0.05))
	// Average linkage: the pair clusters are 5.25 apart on average.
	assert.Equal(t, []int{0, 0, 1, 1}, AverageLinkage(d, 5.2))
	assert.Equal(t, []int{0, 0, 0, 0}, AverageLinkage(d, 5.25))
	assert.Nil(t, AverageLinkage(&mat.SymDense{}, 1))
}

func TestEmbeddingDistance(t *testing.T) {
	t.Parallel()

	a := Embeddings{{0}}
	b := Embeddings{{1}, {2}, {3}, {4}}
	assert.InDelta(t, 2.5, EmbeddingDistance(a, b), 1e-12)
	assert.True(t, math.IsNaN(EmbeddingDistance(a, nil)))
}

func TestDistanceMatrix(t *testing.T) {
	t.Parallel()

	emb := []Embeddings{
		{{0, 0}, {0, 0}},
		{{3, 4}},
		{{0, 0}, {6, 8}},
	}
	for _, workers := range []int{0, 1, 2, 8} {
		d, err := DistanceMatrix(context.Background(), emb, workers)
		require.NoError(t, err)
		assert.Equal(t, 3, d.SymmetricDim())
		assert.InDelta(t, 0.0, d.At(0, 0), 1e-12)
		assert.InDelta(t, 5.0, d.At(0, 1), 1e-12)
		assert.InDelta(t, 5.0, d.At(1, 0), 1e-12)
		assert.InDelta(t, 5.0, d.At(2, 2), 1e-12, "self distance is the median over sample pairs")
		assert.InDelta(t, 5.0, d.At(1, 2), 1e-12)
	}

	_, err := DistanceMatrix(context.Background(), []Embeddings{{{1, 2}}, {{1}}}, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DistanceMatrix(ctx, emb, 2)
	assert.ErrorIs(t, err, context.Canceled)

	d, err := DistanceMatrix(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Nil(t, d)
}

// clusterFixture: person A in tracklets 0, 2, 4 and 5 (4 bridges the gap
// between 2 and 5 but is too short to be embedded), person B in 1 and 3.
func clusterFixture(t *testing.T) ClusterInput {
	seq := trackletScene(t, 61,
		synthetic.Walker{Start: 0, End: 19},
		synthetic.Walker{Start: 0, End: 19, X: 200},
		synthetic.Walker{Start: 20, End: 39},
		synthetic.Walker{Start: 20, End: 39, X: 200},
		synthetic.Walker{Start: 40, End: 42},
		synthetic.Walker{Start: 43, End: 60},
	)
	refs := []TrackletRef{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 5}}
	person := []int{0, 1, 0, 1, 0}
	dist := symFrom(len(refs), func(i, j int) float64 {
		switch {
		case i == j:
			return 0.05
		case person[i] == person[j]:
			return 0.1
		default:
			return 5
		}
	})
	in := ClusterInput{
		Videos: []VideoTracklets{{Links: ComputeLinkCosts(seq, 3), Thresholds: flatThresholds}},
		Refs:   refs,
		Dist:   dist,
	}
	return in
}

func TestClusterIdentities(t *testing.T) {
	t.Parallel()

	in := clusterFixture(t)
	res, err := ClusterIdentities(in, DefaultParams())
	require.NoError(t, err)

	assert.InDelta(t, 0.5, res.Close, 1e-12, "self distances are below the floor")
	assert.InDelta(t, 5.0, res.Far, 1e-12)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, []TrackletRef{{0, 0}, {0, 2}, {0, 4}, {0, 5}}, res.Groups[0])
	assert.Equal(t, []TrackletRef{{0, 1}, {0, 3}}, res.Groups[1])

	ids := res.IDs[0]
	assert.Equal(t, 0, ids.Get(4, 41), "bridging tracklet joins person A")
	assert.Equal(t, 1, ids.Get(3, 30))
	assert.Equal(t, 0, res.Dummy[0].Count(0, 0, 60, true), "person A is covered end to end")
}

func TestClusterIdentities_KeepAllAndErrors(t *testing.T) {
	t.Parallel()

	in := clusterFixture(t)
	in.Refs = in.Refs[:2]
	in.Dist = symFrom(2, func(i, j int) float64 {
		if i == j {
			return 0.05
		}
		return 5
	})
	p := DefaultParams()
	p.KeepAllTracklets = true
	p.LinkMaxGapMult = 0
	res, err := ClusterIdentities(in, p)
	require.NoError(t, err)
	assert.Len(t, res.Groups, 6, "two clustered plus four singletons")

	in.Dist = mat.NewSymDense(3, nil)
	_, err = ClusterIdentities(in, p)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	in.Dist = symFrom(2, func(i, j int) float64 { return 0 })
	in.Refs = []TrackletRef{{0, 0}, {3, 0}}
	_, err = ClusterIdentities(in, p)
	assert.Error(t, err)
}

func TestClusterIdentities_Empty(t *testing.T) {
	t.Parallel()

	in := clusterFixture(t)
	in.Refs, in.Dist = nil, nil
	res, err := ClusterIdentities(in, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Equal(t, tracklet.NoID, tracklet.MaxID(res.IDs[0]))
}
