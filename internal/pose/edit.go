package pose

import (
	"fmt"
	"math"

	"github.com/banshee-data/trajlink/internal/tracklet"
)

// ApplyIDs builds a new sequence whose target k holds every detection that
// ids assigns identity k. Cells with NoID are dropped. The identity table is
// indexed by src target slot.
func ApplyIDs(src Source, ids *tracklet.IDs) (*Sequence, error) {
	if ids.Len() > src.NumTargets() {
		return nil, fmt.Errorf("identity table has %d slots, source has %d", ids.Len(), src.NumTargets())
	}
	out, err := NewSequence(src.Shape(), src.FirstFrame(), src.LastFrame())
	if err != nil {
		return nil, err
	}
	out.EnsureTargets(tracklet.MaxID(ids) + 1)
	for slot := 0; slot < ids.Len(); slot++ {
		start, end, ok := ids.Range(slot)
		if !ok {
			continue
		}
		for t := start; t <= end; t++ {
			id := ids.Get(slot, t)
			if id < 0 || t < src.FirstFrame() || t > src.LastFrame() {
				continue
			}
			p := src.Frame(t)[slot]
			if p.IsMissing() {
				continue
			}
			if err := out.SetPose(id, t, p.Clone(), src.Confidence(slot, t)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SuppressDuplicates merges near-identical simultaneous detections. Within
// each frame, slots closer than maxDist (mean L1 per landmark) are grouped
// transitively; the first slot of a group receives the mean pose and the
// others are blanked. It returns the number of detections removed.
func SuppressDuplicates(seq *Sequence, maxDist float64) int {
	removed := 0
	n := seq.NumTargets()
	for t := seq.FirstFrame(); t <= seq.LastFrame(); t++ {
		frame := seq.Frame(t)
		group := make([]int, n)
		for i := range group {
			group[i] = i
		}
		var find func(int) int
		find = func(i int) int {
			for group[i] != i {
				group[i] = group[group[i]]
				i = group[i]
			}
			return i
		}
		found := false
		for i := 0; i < n; i++ {
			if frame[i].IsMissing() {
				continue
			}
			for j := i + 1; j < n; j++ {
				if frame[j].IsMissing() {
					continue
				}
				if d := MeanL1(frame[i], frame[j], seq.shape.Landmarks); d < maxDist {
					ri, rj := find(i), find(j)
					if ri != rj {
						if rj < ri {
							ri, rj = rj, ri
						}
						group[rj] = ri
					}
					found = true
				}
			}
		}
		if !found {
			continue
		}
		members := map[int][]int{}
		for i := 0; i < n; i++ {
			if frame[i].IsMissing() {
				continue
			}
			r := find(i)
			members[r] = append(members[r], i)
		}
		for root, g := range members {
			if len(g) < 2 {
				continue
			}
			mean := meanPose(frame, g, seq.shape.Size())
			_ = seq.SetPose(root, t, mean, seq.Confidence(root, t))
			for _, k := range g[1:] {
				_ = seq.SetPose(k, t, Missing(seq.shape), math.NaN())
				removed++
			}
		}
	}
	return removed
}

// meanPose is the coordinate-wise mean of frame[slots], ignoring NaNs.
func meanPose(frame []Pose, slots []int, size int) Pose {
	out := make(Pose, size)
	for c := 0; c < size; c++ {
		var sum float64
		n := 0
		for _, s := range slots {
			if v := frame[s][c]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[c] = math.NaN()
		} else {
			out[c] = sum / float64(n)
		}
	}
	return out
}

// MeanPose is the coordinate-wise NaN-skipping mean of several poses.
func MeanPose(poses ...Pose) Pose {
	if len(poses) == 0 {
		return nil
	}
	slots := make([]int, len(poses))
	for i := range slots {
		slots[i] = i
	}
	return meanPose(poses, slots, len(poses[0]))
}

// InterpolateGaps fills internal runs of missing frames by linear
// interpolation. A gap is filled only when it spans at most maxGap frames and
// the per-frame displacement across it, relative to the mean pose extent, is
// below maxRatio. It returns the number of frames filled.
func InterpolateGaps(seq *Sequence, maxGap int, maxRatio float64) int {
	filled := 0
	shape := seq.shape
	for i := 0; i < seq.NumTargets(); i++ {
		start, end, ok := seq.TargetRange(i)
		if !ok {
			continue
		}
		t := start
		for t <= end {
			if !seq.Pose(i, t).IsMissing() {
				t++
				continue
			}
			gapStart := t
			for t <= end && seq.Pose(i, t).IsMissing() {
				t++
			}
			gap := t - gapStart
			if gap > maxGap {
				continue
			}
			before := seq.Pose(i, gapStart-1)
			after := seq.Pose(i, t)
			disp := meanLandmarkNorm(before, after, shape) / float64(gap)
			size := (extent(before, shape) + extent(after, shape)) / 2
			if size <= 0 || disp/size >= maxRatio {
				continue
			}
			for k := 1; k <= gap; k++ {
				frac := float64(k) / float64(gap+1)
				p := make(Pose, shape.Size())
				for c := range p {
					p[c] = before[c] + frac*(after[c]-before[c])
				}
				_ = seq.SetPose(i, gapStart+k-1, p, math.NaN())
				filled++
			}
		}
	}
	return filled
}

// meanLandmarkNorm is the mean over landmarks of the Euclidean distance
// between corresponding landmarks of a and b.
func meanLandmarkNorm(a, b Pose, shape Shape) float64 {
	var sum float64
	for l := 0; l < shape.Landmarks; l++ {
		var sq float64
		for d := 0; d < shape.Dims; d++ {
			diff := a[l*shape.Dims+d] - b[l*shape.Dims+d]
			sq += diff * diff
		}
		sum += math.Sqrt(sq)
	}
	return sum / float64(shape.Landmarks)
}

// extent is the mean over dimensions of the landmark spread.
func extent(p Pose, shape Shape) float64 {
	var sum float64
	for d := 0; d < shape.Dims; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for l := 0; l < shape.Landmarks; l++ {
			v := p[l*shape.Dims+d]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		sum += hi - lo
	}
	return sum / float64(shape.Dims)
}
