// Package synthetic generates deterministic multi-target pose sequences:
// targets walking in straight lines with optional jitter, dropouts and
// identity swaps in the detector slots.
package synthetic

import (
	"math"
	"math/rand"

	"github.com/banshee-data/trajlink/internal/pose"
)

// Walker is one simulated target.
type Walker struct {
	Start, End int     // first and last frame present
	X, Y       float64 // centre at Start
	VX, VY     float64 // displacement per frame
	Radius     float64 // landmark ring radius; 0 uses 10
	Conf       float64 // detection confidence; 0 uses 1
	// Missing lists frames inside [Start, End] where the detector drops the
	// target.
	Missing []int
}

// Scene describes a synthetic video.
type Scene struct {
	Shape   pose.Shape
	Frames  int
	Walkers []Walker
	// Jitter is the standard deviation of per-coordinate noise.
	Jitter float64
	// Shuffle permutes the detector slots of every frame, so slot order
	// carries no identity.
	Shuffle bool
	Seed    int64
}

// PoseAt places the landmarks of shape on a ring of radius r around (x, y).
// Extra dimensions beyond the first two are zero.
func PoseAt(shape pose.Shape, x, y, r float64) pose.Pose {
	p := make(pose.Pose, shape.Size())
	for l := 0; l < shape.Landmarks; l++ {
		a := 2 * math.Pi * float64(l) / float64(shape.Landmarks)
		p[l*shape.Dims] = x + r*math.Cos(a)
		if shape.Dims > 1 {
			p[l*shape.Dims+1] = y + r*math.Sin(a)
		}
	}
	return p
}

// Centre returns walker w's centre at frame t.
func (w Walker) Centre(t int) (float64, float64) {
	dt := float64(t - w.Start)
	return w.X + w.VX*dt, w.Y + w.VY*dt
}

func (w Walker) present(t int) bool {
	if t < w.Start || t > w.End {
		return false
	}
	for _, m := range w.Missing {
		if m == t {
			return false
		}
	}
	return true
}

// Build renders the scene. With Shuffle unset, walker i always occupies slot
// i; otherwise the detections of each frame are packed into random slots.
func (s Scene) Build() (*pose.Sequence, error) {
	seq, err := pose.NewSequence(s.Shape, 0, s.Frames-1)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(s.Seed))
	seq.EnsureTargets(len(s.Walkers))
	for t := 0; t < s.Frames; t++ {
		var present []int
		for i, w := range s.Walkers {
			if w.present(t) {
				present = append(present, i)
			}
		}
		slots := make([]int, len(present))
		for k := range slots {
			slots[k] = present[k]
		}
		if s.Shuffle {
			perm := rng.Perm(len(s.Walkers))
			for k := range slots {
				slots[k] = perm[k]
			}
		}
		for k, i := range present {
			w := s.Walkers[i]
			x, y := w.Centre(t)
			r := w.Radius
			if r == 0 {
				r = 10
			}
			p := PoseAt(s.Shape, x, y, r)
			if s.Jitter > 0 {
				for c := range p {
					p[c] += rng.NormFloat64() * s.Jitter
				}
			}
			conf := w.Conf
			if conf == 0 {
				conf = 1
			}
			if err := seq.SetPose(slots[k], t, p, conf); err != nil {
				return nil, err
			}
		}
	}
	return seq, nil
}
