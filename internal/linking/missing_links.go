package linking

import (
	"github.com/banshee-data/trajlink/internal/monitoring"
)

// gap is an internal run of unoccupied frames [start, end].
type gap struct{ start, end int }

// AddMissingLinks fills the internal gaps of one identity group within a
// video. The group's occupancy timeline is built from its member tracklets;
// every gap no longer than maxGap frames and bounded by two members is
// bridged with FindPath. Bridging tracklets are marked taken and returned.
func AddMissingLinks(lc LinkCosts, group []int, taken []bool, thresholds []float64, mult float64, maxGap int) []int {
	if len(group) == 0 {
		return nil
	}
	first, last := -1, -1
	for _, k := range group {
		if lc.Starts[k] < 0 {
			continue
		}
		if first < 0 || lc.Starts[k] < first {
			first = lc.Starts[k]
		}
		last = max(last, lc.Ends[k])
	}
	if first < 0 {
		return nil
	}
	occ := make([]int, last-first+1)
	for i := range occ {
		occ[i] = -1
	}
	for _, k := range group {
		if lc.Starts[k] < 0 {
			continue
		}
		for t := lc.Starts[k]; t <= lc.Ends[k]; t++ {
			occ[t-first] = k
		}
	}

	var gaps []gap
	for i := 0; i < len(occ); {
		if occ[i] >= 0 {
			i++
			continue
		}
		j := i
		for j < len(occ) && occ[j] < 0 {
			j++
		}
		// occ[0] and occ[last] are always occupied, so every run is internal.
		gaps = append(gaps, gap{start: i, end: j - 1})
		i = j
	}

	var added []int
	for _, g := range gaps {
		if g.end-g.start+1 > maxGap {
			continue
		}
		st, en := occ[g.start-1], occ[g.end+1]
		found := FindPath(lc, st, en, taken, thresholds, mult)
		for _, k := range found {
			if k < len(taken) {
				taken[k] = true
			}
		}
		if len(found) > 0 {
			monitoring.Tracef("[cluster] gap %d-%d bridged by %v", g.start+first, g.end+first, found)
		}
		added = append(added, found...)
	}
	return added
}
