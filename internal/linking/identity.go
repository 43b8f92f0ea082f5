package linking

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// farOverlap is the minimum co-occurrence fraction of two tracklets of the
// same video for their distance to count as "certainly different people".
const farOverlap = 0.1

// TrackletRef names one tracklet of one video.
type TrackletRef struct {
	Video    int
	Tracklet int
}

// VideoTracklets carries a video's linked tracklets for clustering.
type VideoTracklets struct {
	Links      LinkCosts
	Thresholds []float64 // max cost per gap, index 0 for adjacent tracklets
}

func (v VideoTracklets) length(k int) int {
	if v.Links.Starts[k] < 0 {
		return 0
	}
	return v.Links.Ends[k] - v.Links.Starts[k] + 1
}

// ClusterInput is the identity clustering problem: the tracklets in Refs
// with their pairwise appearance distances in Dist. The diagonal of Dist
// holds each tracklet's self-distance.
type ClusterInput struct {
	Videos []VideoTracklets
	Refs   []TrackletRef
	Dist   mat.Symmetric
}

// ClusterResult holds the identity groups and the per-video tables they
// induce. Identity g is Groups[g] in every video.
type ClusterResult struct {
	Groups [][]TrackletRef
	IDs    []*tracklet.IDs   // per video, indexed by tracklet
	Dummy  []*tracklet.Flags // per video, indexed by identity
	Close  float64
	Far    float64
}

// clusterState is the reducer state of ClusterIdentities.
type clusterState struct {
	remaining []int // indices into Refs, in order
	used      [][]bool
	groups    [][]TrackletRef
}

// ClusterIdentities groups tracklets into identities. Each step clusters
// the remaining tracklets by average linkage cut at the "close" threshold,
// keeps the cluster with the most frames, admits its members longest first
// while they do not overlap in time, and then bridges the group's gaps in
// every video with unused tracklets that are not "far" from it.
func ClusterIdentities(in ClusterInput, p Params) (*ClusterResult, error) {
	n := len(in.Refs)
	if n > 0 {
		if in.Dist == nil || in.Dist.SymmetricDim() != n {
			return nil, fmt.Errorf("distance matrix does not cover %d tracklets: %w", n, ErrShapeMismatch)
		}
	}
	for _, r := range in.Refs {
		if r.Video < 0 || r.Video >= len(in.Videos) || r.Tracklet < 0 || r.Tracklet >= len(in.Videos[r.Video].Links.Starts) {
			return nil, fmt.Errorf("tracklet %+v out of range", r)
		}
	}

	res := &ClusterResult{Close: math.NaN(), Far: math.Inf(1)}
	dist := mat.NewSymDense(max(n, 1), nil)
	if n > 0 {
		diag := make([]float64, n)
		for i := 0; i < n; i++ {
			diag[i] = in.Dist.At(i, i)
		}
		res.Close = math.Max(p.ClusterCloseMin, percentile(diag, p.ClusterClosePercentile))
		res.Far = farThreshold(in, p.ClusterFarPercentile)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dist.SetSym(i, j, in.Dist.At(i, j))
			}
		}
		monitoring.Debugf("[cluster] %d tracklets, close %.3f, far %.3f", n, res.Close, res.Far)
	}

	refIndex := make(map[TrackletRef]int, n)
	for i, r := range in.Refs {
		refIndex[r] = i
	}
	st := clusterState{used: make([][]bool, len(in.Videos))}
	for v, vt := range in.Videos {
		st.used[v] = make([]bool, len(vt.Links.Starts))
	}
	for i := 0; i < n; i++ {
		st.remaining = append(st.remaining, i)
	}

	for len(st.remaining) > 0 {
		st = nextGroup(st, in, dist, refIndex, res.Close, res.Far, p)
	}

	if p.KeepAllTracklets {
		for v, vt := range in.Videos {
			for k := range vt.Links.Starts {
				if !st.used[v][k] && vt.Links.Starts[k] >= 0 {
					st.used[v][k] = true
					st.groups = append(st.groups, []TrackletRef{{Video: v, Tracklet: k}})
				}
			}
		}
	}
	res.Groups = st.groups
	if err := res.buildTables(in); err != nil {
		return nil, err
	}
	monitoring.Logf("[cluster] %d identities from %d tracklets", len(res.Groups), n)
	return res, nil
}

// nextGroup performs one clustering step and returns the updated state.
func nextGroup(st clusterState, in ClusterInput, dist *mat.SymDense, refIndex map[TrackletRef]int, closeT, farT float64, p Params) clusterState {
	chosen := selectGroup(st.remaining, in, dist, closeT, p.ClusterOverlapTolerance)
	inGroup := make(map[int]bool, len(chosen))
	for _, i := range chosen {
		inGroup[i] = true
	}

	far := map[int]bool{}
	for _, r := range st.remaining {
		if inGroup[r] {
			continue
		}
		var sum float64
		for _, g := range chosen {
			sum += dist.At(g, r)
		}
		if sum/float64(len(chosen)) > farT {
			far[r] = true
		}
	}

	group := make([]TrackletRef, 0, len(chosen))
	for _, i := range chosen {
		group = append(group, in.Refs[i])
	}
	maxGap := p.LinkMaxGapMult * max(p.MaxFramesMissed, 1)
	for v, vt := range in.Videos {
		var members []int
		for _, r := range group {
			if r.Video == v {
				members = append(members, r.Tracklet)
			}
		}
		if len(members) == 0 {
			continue
		}
		taken := make([]bool, len(vt.Links.Starts))
		copy(taken, st.used[v])
		for r := range far {
			if in.Refs[r].Video == v {
				taken[in.Refs[r].Tracklet] = true
			}
		}
		for _, k := range AddMissingLinks(vt.Links, members, taken, vt.Thresholds, p.LinkCostMult, maxGap) {
			ref := TrackletRef{Video: v, Tracklet: k}
			group = append(group, ref)
			if i, ok := refIndex[ref]; ok {
				inGroup[i] = true
			}
		}
	}

	for _, r := range group {
		st.used[r.Video][r.Tracklet] = true
	}
	rest := make([]int, 0, len(st.remaining))
	for _, r := range st.remaining {
		if !inGroup[r] && !st.used[in.Refs[r].Video][in.Refs[r].Tracklet] {
			rest = append(rest, r)
		}
	}
	sort.Slice(group, func(a, b int) bool {
		if group[a].Video != group[b].Video {
			return group[a].Video < group[b].Video
		}
		return in.Videos[group[a].Video].Links.Starts[group[a].Tracklet] < in.Videos[group[b].Video].Links.Starts[group[b].Tracklet]
	})
	monitoring.Tracef("[cluster] identity %d: %d tracklets, %d far, %d remaining", len(st.groups), len(group), len(far), len(rest))
	st.groups = append(st.groups, group)
	st.remaining = rest
	return st
}

// selectGroup picks the next identity among remaining: the flat cluster with
// the most frames, reduced to members that do not overlap in time within a
// video.
func selectGroup(remaining []int, in ClusterInput, dist *mat.SymDense, closeT, tol float64) []int {
	if len(remaining) == 1 {
		return []int{remaining[0]}
	}
	m := len(remaining)
	sub := mat.NewSymDense(m, nil)
	for a := 0; a < m; a++ {
		for b := a + 1; b < m; b++ {
			sub.SetSym(a, b, dist.At(remaining[a], remaining[b]))
		}
	}
	labels := AverageLinkage(sub, closeT)

	length := func(i int) int {
		r := in.Refs[i]
		return in.Videos[r.Video].length(r.Tracklet)
	}
	totals := map[int]int{}
	for a, l := range labels {
		totals[l] += length(remaining[a])
	}
	best := -1
	for l, tot := range totals {
		if best < 0 || tot > totals[best] || (tot == totals[best] && l < best) {
			best = l
		}
	}
	var members []int
	for a, l := range labels {
		if l == best {
			members = append(members, remaining[a])
		}
	}
	sort.SliceStable(members, func(a, b int) bool { return length(members[a]) > length(members[b]) })

	type videoFrame struct{ video, frame int }
	covered := map[videoFrame]bool{}
	var out []int
	for _, i := range members {
		r := in.Refs[i]
		lc := in.Videos[r.Video].Links
		s, e := lc.Starts[r.Tracklet], lc.Ends[r.Tracklet]
		overlap := 0
		for t := s; t <= e; t++ {
			if covered[videoFrame{r.Video, t}] {
				overlap++
			}
		}
		if overlap > 0 && float64(overlap)/float64(e-s+1) >= tol {
			continue
		}
		for t := s; t <= e; t++ {
			covered[videoFrame{r.Video, t}] = true
		}
		out = append(out, i)
	}
	return out
}

// farThreshold is the given percentile of distances between tracklets of the
// first video that co-occur for more than farOverlap of the shorter one; such
// pairs are different people. It is +Inf when no pair co-occurs.
func farThreshold(in ClusterInput, q float64) float64 {
	var vals []float64
	for a, ra := range in.Refs {
		if ra.Video != 0 {
			continue
		}
		lc := in.Videos[0].Links
		for b := a + 1; b < len(in.Refs); b++ {
			rb := in.Refs[b]
			if rb.Video != 0 {
				continue
			}
			sa, ea := lc.Starts[ra.Tracklet], lc.Ends[ra.Tracklet]
			sb, eb := lc.Starts[rb.Tracklet], lc.Ends[rb.Tracklet]
			ov := min(ea, eb) - max(sa, sb) + 1
			if ov <= 0 {
				continue
			}
			if float64(ov)/float64(min(ea-sa, eb-sb)+1) > farOverlap {
				vals = append(vals, in.Dist.At(a, b))
			}
		}
	}
	if len(vals) == 0 {
		return math.Inf(1)
	}
	return percentile(vals, q)
}

// buildTables derives per-video identity tables and the bridged-gap flags of
// every identity.
func (res *ClusterResult) buildTables(in ClusterInput) error {
	res.IDs = make([]*tracklet.IDs, len(in.Videos))
	res.Dummy = make([]*tracklet.Flags, len(in.Videos))
	for v, vt := range in.Videos {
		ids := tracklet.NewIDs(len(vt.Links.Starts))
		dummy := tracklet.NewFlags(len(res.Groups))
		for g, group := range res.Groups {
			lo, hi := -1, -1
			var members []int
			for _, r := range group {
				if r.Video != v {
					continue
				}
				s, e := vt.Links.Starts[r.Tracklet], vt.Links.Ends[r.Tracklet]
				for t := s; t <= e; t++ {
					if err := ids.Set(r.Tracklet, t, g); err != nil {
						return err
					}
				}
				if lo < 0 || s < lo {
					lo = s
				}
				hi = max(hi, e)
				members = append(members, r.Tracklet)
			}
			if lo < 0 {
				continue
			}
			for t := lo; t <= hi; t++ {
				inside := false
				for _, k := range members {
					if t >= vt.Links.Starts[k] && t <= vt.Links.Ends[k] {
						inside = true
						break
					}
				}
				if err := dummy.Set(g, t, !inside); err != nil {
					return err
				}
			}
		}
		res.IDs[v] = ids
		res.Dummy[v] = dummy
	}
	return nil
}
