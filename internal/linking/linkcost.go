package linking

import (
	"math"

	"github.com/banshee-data/trajlink/internal/pose"
)

// Link is a candidate connection between two tracklets of one video.
type Link struct {
	Tracklet int
	Cost     float64 // mean L1 between the facing end poses
	Gap      int     // frames strictly between the two tracklets
}

// LinkCosts holds, for every tracklet, the candidates it could continue
// (Before: tracklets ending just before it starts) and the candidates that
// could continue it (After: tracklets starting just after it ends).
type LinkCosts struct {
	Before [][]Link
	After  [][]Link
	Starts []int
	Ends   []int
}

// ComputeLinkCosts evaluates every tracklet pair of seq separated by at most
// framesFit missing frames. Each target of seq is one tracklet.
func ComputeLinkCosts(seq pose.Source, framesFit int) LinkCosts {
	starts, ends := pose.StartEndFrames(seq)
	n := len(starts)
	lc := LinkCosts{
		Before: make([][]Link, n),
		After:  make([][]Link, n),
		Starts: starts,
		Ends:   ends,
	}
	byEnd := map[int][]int{}
	for k, e := range ends {
		if starts[k] >= 0 {
			byEnd[e] = append(byEnd[e], k)
		}
	}
	landmarks := seq.Shape().Landmarks
	for cur := 0; cur < n; cur++ {
		if starts[cur] < 0 {
			continue
		}
		head := trackletPose(seq, cur, starts[cur])
		for gap := 0; gap <= framesFit; gap++ {
			t := starts[cur] - gap - 1
			for _, prev := range byEnd[t] {
				d := pose.MeanL1(head, trackletPose(seq, prev, t), landmarks)
				if math.IsNaN(d) {
					continue
				}
				lc.Before[cur] = append(lc.Before[cur], Link{Tracklet: prev, Cost: d, Gap: gap})
				lc.After[prev] = append(lc.After[prev], Link{Tracklet: cur, Cost: d, Gap: gap})
			}
		}
	}
	return lc
}

func trackletPose(src pose.Source, k, t int) pose.Pose {
	return src.Frame(t)[k]
}
