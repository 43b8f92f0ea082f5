package linking

import (
	"math"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// confEps keeps the mean confidence finite for identities with no positive
// confidence.
const confEps = 1e-5

// DeleteShort removes every identity spanning at most maxFrames frames once
// bridged gap frames flagged in dummy are discounted. dummy may be nil. It
// returns the deleted identities.
func DeleteShort(ids *tracklet.IDs, dummy *tracklet.Flags, maxFrames int) []int {
	var deleted []int
	for id, s := range tracklet.Spans(ids) {
		if !s.Present() {
			continue
		}
		n := s.End - s.Start + 1
		if dummy != nil {
			n -= dummy.Count(id, s.Start, s.End, true)
		}
		if n <= maxFrames {
			ids.Replace(id, tracklet.NoID)
			deleted = append(deleted, id)
		}
	}
	if len(deleted) > 0 {
		monitoring.Debugf("[prune] deleted %d short identities (<= %d frames)", len(deleted), maxFrames)
	}
	return deleted
}

// DeleteLowConf removes every identity whose mean positive detection
// confidence is below minConf. Identities without any known confidence are
// kept. It returns the deleted identities.
func DeleteLowConf(src pose.Source, ids *tracklet.IDs, minConf float64) []int {
	n := tracklet.MaxID(ids) + 1
	total := make([]float64, n)
	count := make([]int, n)
	known := make([]bool, n)
	present := make([]bool, n)
	ids.Each(func(slot, t, id int) {
		if id < 0 || slot >= src.NumTargets() {
			return
		}
		present[id] = true
		c := src.Confidence(slot, t)
		if math.IsNaN(c) {
			return
		}
		known[id] = true
		total[id] += c
		if c > 0 {
			count[id]++
		}
	})

	var deleted []int
	for id := 0; id < n; id++ {
		if !present[id] || !known[id] {
			continue
		}
		if total[id]/(float64(count[id])+confEps) < minConf {
			deleted = append(deleted, id)
		}
	}
	drop := make(map[int]bool, len(deleted))
	for _, id := range deleted {
		drop[id] = true
	}
	if len(drop) > 0 {
		ids.Map(func(v int) int {
			if drop[v] {
				return tracklet.NoID
			}
			return v
		})
		monitoring.Debugf("[prune] deleted %d low-confidence identities (< %.2f)", len(deleted), minConf)
	}
	return deleted
}

// MergeClose repeatedly merges the two targets of seq with the smallest mean
// pose distance over their co-occurring frames while that distance is at
// most maxCost. The merged trajectory is the per-frame mean of both and
// stays in the lower slot; the other slot is removed and later slots shift
// down. It returns the number of merges and the old -> new slot mapping over
// the targets seq had on entry.
func MergeClose(seq *pose.Sequence, maxCost float64) (int, []int) {
	mapping := make([]int, seq.NumTargets())
	for k := range mapping {
		mapping[k] = k
	}
	merges := 0
	for {
		i, j, d := closestPair(seq)
		if i < 0 || d > maxCost {
			break
		}
		mergeTargets(seq, i, j)
		for k, m := range mapping {
			switch {
			case m == j:
				mapping[k] = i
			case m > j:
				mapping[k] = m - 1
			}
		}
		monitoring.Tracef("[prune] merged target %d into %d (distance %.3f)", j, i, d)
		merges++
	}
	if merges > 0 {
		monitoring.Debugf("[prune] merged %d near-duplicate trajectories", merges)
	}
	return merges, mapping
}

// closestPair returns the pair i < j with the smallest mean co-occurrence
// distance, or (-1, -1, +Inf) when no two targets overlap.
func closestPair(seq *pose.Sequence) (int, int, float64) {
	n := seq.NumTargets()
	starts, ends := pose.StartEndFrames(seq)
	bi, bj, best := -1, -1, math.Inf(1)
	landmarks := seq.Shape().Landmarks
	for i := 0; i < n; i++ {
		if starts[i] < 0 {
			continue
		}
		for j := i + 1; j < n; j++ {
			lo, hi := max(starts[i], starts[j]), min(ends[i], ends[j])
			if starts[j] < 0 || lo > hi {
				continue
			}
			var sum float64
			k := 0
			for t := lo; t <= hi; t++ {
				d := pose.MeanL1(seq.Pose(i, t), seq.Pose(j, t), landmarks)
				if math.IsNaN(d) {
					continue
				}
				sum += d
				k++
			}
			if k == 0 {
				continue
			}
			if d := sum / float64(k); d < best {
				bi, bj, best = i, j, d
			}
		}
	}
	return bi, bj, best
}

func mergeTargets(seq *pose.Sequence, i, j int) {
	si, ei, _ := seq.TargetRange(i)
	sj, ej, _ := seq.TargetRange(j)
	for t := min(si, sj); t <= max(ei, ej); t++ {
		a, b := seq.Pose(i, t), seq.Pose(j, t)
		if a.IsMissing() && b.IsMissing() {
			continue
		}
		conf := nanMean([]float64{seq.Confidence(i, t), seq.Confidence(j, t)})
		_ = seq.SetPose(i, t, pose.MeanPose(a, b), conf)
	}
	seq.RemoveTarget(j)
}
