package pose

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when two poses or sources disagree on landmark
// count or dimensionality.
var ErrShapeMismatch = errors.New("pose shape mismatch")

// Shape describes the landmark layout shared by every pose of a video.
type Shape struct {
	Landmarks int // L
	Dims      int // d, usually 2
}

// Size returns the number of coordinates in one pose.
func (s Shape) Size() int { return s.Landmarks * s.Dims }

// Validate rejects empty layouts.
func (s Shape) Validate() error {
	if s.Landmarks <= 0 || s.Dims <= 0 {
		return fmt.Errorf("invalid shape %dx%d: %w", s.Landmarks, s.Dims, ErrShapeMismatch)
	}
	return nil
}

// Check returns ErrShapeMismatch when o differs from s.
func (s Shape) Check(o Shape) error {
	if s.Landmarks != o.Landmarks {
		return fmt.Errorf("landmarks do not match, curr = %d, next = %d: %w", s.Landmarks, o.Landmarks, ErrShapeMismatch)
	}
	if s.Dims != o.Dims {
		return fmt.Errorf("dimensions do not match, curr = %d, next = %d: %w", s.Dims, o.Dims, ErrShapeMismatch)
	}
	return nil
}

// Pose is one detection: Landmarks*Dims coordinates, landmark-major
// (x0, y0, x1, y1, ...). A missing detection has NaN in every coordinate.
type Pose []float64

// Missing returns a pose with every coordinate set to NaN.
func Missing(s Shape) Pose {
	p := make(Pose, s.Size())
	for i := range p {
		p[i] = math.NaN()
	}
	return p
}

// IsMissing reports whether p carries no observed coordinate.
func (p Pose) IsMissing() bool {
	for _, v := range p {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Landmark returns the d coordinates of landmark i.
func (p Pose) Landmark(i, dims int) []float64 {
	return p[i*dims : (i+1)*dims]
}

// Clone returns a copy of p.
func (p Pose) Clone() Pose {
	if p == nil {
		return nil
	}
	out := make(Pose, len(p))
	copy(out, p)
	return out
}

// MeanL1 is the L1 distance between a and b normalised by the landmark
// count. Coordinates missing in either pose are skipped and the normaliser
// shrinks with them, so a partly observed pair is not cheaper than a fully
// observed one at the same per-landmark distance. The result is NaN when the
// poses share no observed coordinate.
func MeanL1(a, b Pose, landmarks int) float64 {
	var sum float64
	n := 0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		sum += math.Abs(a[i] - b[i])
		n++
	}
	if n == 0 || landmarks <= 0 {
		return math.NaN()
	}
	// n observed coordinates cover n*landmarks/len(a) landmarks.
	return sum * float64(len(a)) / (float64(n) * float64(landmarks))
}

// Source provides detections for one video. Frames are absolute indices in
// [FirstFrame, LastFrame]; Frame returns NumTargets poses, missing slots
// included.
type Source interface {
	Shape() Shape
	NumTargets() int
	FirstFrame() int
	LastFrame() int
	Frame(t int) []Pose
	// TargetRange returns the occupied frame range of a target slot.
	TargetRange(target int) (start, end int, ok bool)
	// Confidence is the mean landmark confidence of a slot at frame t, NaN
	// when unknown.
	Confidence(target, t int) float64
}

// RealIndex returns the slots of frame holding an observed detection.
func RealIndex(frame []Pose) []int {
	idx := make([]int, 0, len(frame))
	for i, p := range frame {
		if !p.IsMissing() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Select returns the poses of frame at the given slots.
func Select(frame []Pose, slots []int) []Pose {
	out := make([]Pose, len(slots))
	for i, s := range slots {
		out[i] = frame[s]
	}
	return out
}

// Bounds returns the summed per-coordinate spread (max-min) of every
// observed coordinate in src. It is zero when src holds no detection.
func Bounds(src Source) float64 {
	shape := src.Shape()
	minv := make([]float64, shape.Size())
	maxv := make([]float64, shape.Size())
	for i := range minv {
		minv[i] = math.Inf(1)
		maxv[i] = math.Inf(-1)
	}
	any := false
	for t := src.FirstFrame(); t <= src.LastFrame(); t++ {
		for _, p := range src.Frame(t) {
			for i, v := range p {
				if math.IsNaN(v) {
					continue
				}
				any = true
				minv[i] = math.Min(minv[i], v)
				maxv[i] = math.Max(maxv[i], v)
			}
		}
	}
	if !any {
		return 0
	}
	var sum float64
	for i := range minv {
		if math.IsInf(minv[i], 0) {
			continue
		}
		sum += maxv[i] - minv[i]
	}
	return sum
}
