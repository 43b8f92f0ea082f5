package linking

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Embeddings holds the appearance samples of one tracklet, one vector each.
type Embeddings [][]float64

// EmbeddingDistance is the median Euclidean distance over every pair of
// samples of a and b. It is NaN when either side has no samples.
func EmbeddingDistance(a, b Embeddings) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.NaN()
	}
	ds := make([]float64, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			ds = append(ds, floats.Distance(x, y, 2))
		}
	}
	sort.Float64s(ds)
	return sortedPercentile(ds, 50)
}

// DistanceMatrix computes EmbeddingDistance between every pair of tracklets,
// diagonal included. Rows are split into contiguous blocks computed by up to
// workers goroutines (GOMAXPROCS when workers <= 0); each block writes only
// its own rows.
func DistanceMatrix(ctx context.Context, emb []Embeddings, workers int) (*mat.SymDense, error) {
	n := len(emb)
	if n == 0 {
		return nil, nil
	}
	dim := -1
	for i, e := range emb {
		for _, v := range e {
			if dim < 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, fmt.Errorf("tracklet %d embedding has %d dimensions, want %d: %w", i, len(v), dim, ErrShapeMismatch)
			}
		}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)

	rows := make([][]float64, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := make([]float64, n)
				for j := i; j < n; j++ {
					row[j] = EmbeddingDistance(emb[i], emb[j])
				}
				rows[i] = row
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.SetSym(i, j, rows[i][j])
		}
	}
	return d, nil
}
