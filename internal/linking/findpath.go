package linking

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// skipFrameCost is the weight of each frame a link skips, in units of the
// adjacent-tracklet threshold.
const skipFrameCost = 0.1

// linkWeights turns a raw link cost into a graph edge. Thresholds holds the
// max cost per gap, index 0 for adjacent tracklets; an edge exists only when
// the cost is within mult times the threshold of its gap. Links over a gap
// are scaled by their length and the ratio of adjacent to gap threshold, and
// every skipped frame adds skipFrameCost, so a chain that covers the gap beats
// a jump over it at equal link cost.
type linkWeights struct {
	thresholds []float64
	mult       float64
}

func (w linkWeights) weight(l Link) (float64, bool) {
	if l.Gap < 0 || l.Gap >= len(w.thresholds) || w.thresholds[l.Gap] <= 0 {
		return 0, false
	}
	if l.Cost > w.mult*w.thresholds[l.Gap] {
		return 0, false
	}
	if l.Gap == 0 {
		return l.Cost, true
	}
	unit := w.thresholds[0]
	if unit <= 0 {
		unit = w.thresholds[l.Gap]
	}
	scaled := l.Cost * float64(l.Gap+1) * unit / w.thresholds[l.Gap] * 1.5
	return scaled + float64(l.Gap)*unit*skipFrameCost, true
}

// FindPath returns the tracklets, in temporal order, that best bridge the gap
// between tracklet st and tracklet en. Candidates lie strictly inside the gap
// and are not taken. When en is unreachable from st, the path from st that
// extends furthest forward and the path into en that extends furthest
// backward are combined instead.
func FindPath(lc LinkCosts, st, en int, taken []bool, thresholds []float64, mult float64) []int {
	w := linkWeights{thresholds: thresholds, mult: mult}
	lo, hi := lc.Ends[st]+1, lc.Starts[en]-1

	// Node 0 is st, node len(inner)+1 is en.
	var inner []int
	node := map[int]int64{st: 0}
	for k := range lc.Starts {
		if k == st || k == en || lc.Starts[k] < 0 || (k < len(taken) && taken[k]) {
			continue
		}
		if lc.Starts[k] >= lo && lc.Ends[k] <= hi {
			inner = append(inner, k)
			node[k] = int64(len(inner))
		}
	}
	endNode := int64(len(inner) + 1)
	node[en] = endNode
	trk := func(id int64) int {
		if id == 0 {
			return st
		}
		if id == endNode {
			return en
		}
		return inner[id-1]
	}

	fwd := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	rev := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for id := int64(0); id <= endNode; id++ {
		fwd.AddNode(simple.Node(id))
		rev.AddNode(simple.Node(id))
	}
	addEdge := func(from, to int64, l Link) {
		if from == to {
			return
		}
		wt, ok := w.weight(l)
		if !ok {
			return
		}
		fwd.SetWeightedEdge(fwd.NewWeightedEdge(simple.Node(from), simple.Node(to), wt))
		rev.SetWeightedEdge(rev.NewWeightedEdge(simple.Node(to), simple.Node(from), wt))
	}
	for id := int64(0); id < endNode; id++ {
		for _, l := range lc.After[trk(id)] {
			to, ok := node[l.Tracklet]
			if !ok || to == 0 {
				continue
			}
			addEdge(id, to, l)
		}
	}

	sp := path.DijkstraFrom(simple.Node(0), fwd)
	if !math.IsInf(sp.WeightTo(endNode), 1) {
		nodes, _ := sp.To(endNode)
		return orderByStart(lc, innerTracklets(nodes, endNode, trk))
	}

	var out []int
	if best := furthest(innerNodes(inner), sp, func(k int) int { return lc.Ends[k] - lc.Ends[st] }); best >= 0 {
		nodes, _ := sp.To(node[best])
		out = append(out, innerTracklets(nodes, endNode, trk)...)
	}
	rsp := path.DijkstraFrom(simple.Node(endNode), rev)
	if best := furthest(innerNodes(inner), rsp, func(k int) int { return lc.Starts[en] - lc.Starts[k] }); best >= 0 {
		nodes, _ := rsp.To(node[best])
		out = append(out, innerTracklets(nodes, endNode, trk)...)
	}
	return orderByStart(lc, dedupe(out))
}

type innerNode struct {
	id  int64
	trk int
}

func innerNodes(inner []int) []innerNode {
	out := make([]innerNode, len(inner))
	for i, k := range inner {
		out[i] = innerNode{id: int64(i + 1), trk: k}
	}
	return out
}

// furthest picks the reachable inner tracklet maximising extent.
func furthest(inner []innerNode, sp path.Shortest, extent func(int) int) int {
	best, bestExt := -1, math.MinInt
	for _, n := range inner {
		if math.IsInf(sp.WeightTo(n.id), 1) {
			continue
		}
		if e := extent(n.trk); e > bestExt {
			best, bestExt = n.trk, e
		}
	}
	return best
}

func innerTracklets(nodes []graph.Node, endNode int64, trk func(int64) int) []int {
	var out []int
	for _, n := range nodes {
		if id := n.ID(); id != 0 && id != endNode {
			out = append(out, trk(id))
		}
	}
	return out
}

func dedupe(xs []int) []int {
	seen := make(map[int]bool, len(xs))
	out := xs[:0]
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func orderByStart(lc LinkCosts, xs []int) []int {
	sort.SliceStable(xs, func(a, b int) bool { return lc.Starts[xs[a]] < lc.Starts[xs[b]] })
	return xs
}
