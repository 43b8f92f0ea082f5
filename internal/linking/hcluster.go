package linking

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AverageLinkage clusters the items of the symmetric distance matrix d by
// agglomerative average linkage and cuts the dendrogram at thresh: two
// clusters end up together when they were merged at a height of at most
// thresh. It returns a label per item; labels are dense and ordered by each
// cluster's first item.
func AverageLinkage(d mat.Symmetric, thresh float64) []int {
	n := d.SymmetricDim()
	if n == 0 {
		return nil
	}
	owner := make([]int, n) // cluster of each item
	size := make([]int, n)
	alive := make([]bool, n)
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		owner[i], size[i], alive[i] = i, 1, true
		dist[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			dist[i][j] = d.At(i, j)
		}
	}

	for {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if alive[j] && dist[i][j] < best {
					bi, bj, best = i, j, dist[i][j]
				}
			}
		}
		if bi < 0 || best > thresh {
			break
		}
		// Lance-Williams update for average linkage.
		ni, nj := float64(size[bi]), float64(size[bj])
		for k := 0; k < n; k++ {
			if !alive[k] || k == bi || k == bj {
				continue
			}
			v := (ni*dist[bi][k] + nj*dist[bj][k]) / (ni + nj)
			dist[bi][k], dist[k][bi] = v, v
		}
		size[bi] += size[bj]
		alive[bj] = false
		for k := range owner {
			if owner[k] == bj {
				owner[k] = bi
			}
		}
	}

	labels := make([]int, n)
	next := 0
	seen := map[int]int{}
	for i, o := range owner {
		l, ok := seen[o]
		if !ok {
			l = next
			seen[o] = l
			next++
		}
		labels[i] = l
	}
	return labels
}
