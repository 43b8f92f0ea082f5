package pose

import (
	"fmt"
	"math"
)

// Track is the contiguous pose range stored for one target slot.
type Track struct {
	Start int
	Poses []Pose
	Conf  []float64 // parallel to Poses; nil when confidences are unknown
}

// End returns the last frame stored for the track, Start-1 when empty.
func (tr Track) End() int { return tr.Start + len(tr.Poses) - 1 }

// Sequence is an in-memory Source. Each target slot keeps only its stored
// frame range; reads outside it return a missing pose.
//
// Poses returned by Frame and Pose are shared with the sequence and must not
// be modified by callers.
type Sequence struct {
	shape   Shape
	first   int
	last    int
	tracks  []Track
	missing Pose
}

// NewSequence creates an empty sequence spanning [first, last].
func NewSequence(shape Shape, first, last int) (*Sequence, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if last < first {
		return nil, fmt.Errorf("invalid frame range [%d, %d]", first, last)
	}
	return &Sequence{shape: shape, first: first, last: last, missing: Missing(shape)}, nil
}

// FromSource copies src into a new Sequence.
func FromSource(src Source) (*Sequence, error) {
	seq, err := NewSequence(src.Shape(), src.FirstFrame(), src.LastFrame())
	if err != nil {
		return nil, err
	}
	n := src.NumTargets()
	seq.tracks = make([]Track, n)
	for i := 0; i < n; i++ {
		sf, ef, ok := src.TargetRange(i)
		if !ok {
			continue
		}
		tr := Track{Start: sf, Poses: make([]Pose, ef-sf+1), Conf: make([]float64, ef-sf+1)}
		for t := sf; t <= ef; t++ {
			tr.Poses[t-sf] = src.Frame(t)[i].Clone()
			tr.Conf[t-sf] = src.Confidence(i, t)
		}
		seq.tracks[i] = tr
	}
	return seq, nil
}

func (s *Sequence) Shape() Shape    { return s.shape }
func (s *Sequence) NumTargets() int { return len(s.tracks) }
func (s *Sequence) FirstFrame() int { return s.first }
func (s *Sequence) LastFrame() int  { return s.last }

// NumFrames returns LastFrame-FirstFrame+1.
func (s *Sequence) NumFrames() int { return s.last - s.first + 1 }

// AddTrack appends a target slot and returns its index.
func (s *Sequence) AddTrack(start int, poses []Pose, conf []float64) (int, error) {
	for i, p := range poses {
		if len(p) != s.shape.Size() {
			return -1, fmt.Errorf("pose %d has %d coordinates, want %d: %w", i, len(p), s.shape.Size(), ErrShapeMismatch)
		}
	}
	if conf != nil && len(conf) != len(poses) {
		return -1, fmt.Errorf("confidence length %d does not match %d poses", len(conf), len(poses))
	}
	if len(poses) > 0 && (start < s.first || start+len(poses)-1 > s.last) {
		return -1, fmt.Errorf("track [%d, %d] outside sequence [%d, %d]", start, start+len(poses)-1, s.first, s.last)
	}
	s.tracks = append(s.tracks, Track{Start: start, Poses: poses, Conf: conf})
	return len(s.tracks) - 1, nil
}

// EnsureTargets grows the slot count to at least n.
func (s *Sequence) EnsureTargets(n int) {
	for len(s.tracks) < n {
		s.tracks = append(s.tracks, Track{})
	}
}

// Track returns the stored range of target i.
func (s *Sequence) Track(i int) Track { return s.tracks[i] }

// RemoveTarget deletes slot i, shifting later slots down by one.
func (s *Sequence) RemoveTarget(i int) {
	s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
}

// Pose returns the detection of target i at frame t.
func (s *Sequence) Pose(i, t int) Pose {
	tr := s.tracks[i]
	if t < tr.Start || t > tr.End() || tr.Poses[t-tr.Start] == nil {
		return s.missing
	}
	return tr.Poses[t-tr.Start]
}

// SetPose stores p for target i at frame t, growing the stored range when
// needed. Frames outside the sequence are rejected.
func (s *Sequence) SetPose(i, t int, p Pose, conf float64) error {
	if t < s.first || t > s.last {
		return fmt.Errorf("frame %d outside sequence [%d, %d]", t, s.first, s.last)
	}
	if len(p) != s.shape.Size() {
		return fmt.Errorf("pose has %d coordinates, want %d: %w", len(p), s.shape.Size(), ErrShapeMismatch)
	}
	s.EnsureTargets(i + 1)
	tr := &s.tracks[i]
	if len(tr.Poses) == 0 {
		tr.Start = t
		tr.Poses = []Pose{p}
		tr.Conf = []float64{conf}
		return nil
	}
	if tr.Conf == nil {
		tr.Conf = make([]float64, len(tr.Poses))
		for k := range tr.Conf {
			tr.Conf[k] = math.NaN()
		}
	}
	if t < tr.Start {
		pad := tr.Start - t
		poses := make([]Pose, pad+len(tr.Poses))
		confs := make([]float64, pad+len(tr.Conf))
		copy(poses[pad:], tr.Poses)
		copy(confs[pad:], tr.Conf)
		for k := 0; k < pad; k++ {
			confs[k] = math.NaN()
		}
		tr.Start = t
		tr.Poses, tr.Conf = poses, confs
	}
	for t > tr.End() {
		tr.Poses = append(tr.Poses, nil)
		tr.Conf = append(tr.Conf, math.NaN())
	}
	tr.Poses[t-tr.Start] = p
	tr.Conf[t-tr.Start] = conf
	return nil
}

// Frame returns every slot's pose at frame t.
func (s *Sequence) Frame(t int) []Pose {
	out := make([]Pose, len(s.tracks))
	for i := range s.tracks {
		out[i] = s.Pose(i, t)
	}
	return out
}

// TargetRange returns the first and last observed frame of slot i.
func (s *Sequence) TargetRange(i int) (int, int, bool) {
	tr := s.tracks[i]
	start, end := -1, -1
	for k, p := range tr.Poses {
		if p == nil || p.IsMissing() {
			continue
		}
		if start < 0 {
			start = tr.Start + k
		}
		end = tr.Start + k
	}
	return start, end, start >= 0
}

// Confidence returns the stored confidence of slot i at frame t.
func (s *Sequence) Confidence(i, t int) float64 {
	tr := s.tracks[i]
	if tr.Conf == nil || t < tr.Start || t > tr.End() {
		return math.NaN()
	}
	return tr.Conf[t-tr.Start]
}

// StartEndFrames returns the occupied range of every slot; empty slots get
// (-1, -1).
func StartEndFrames(src Source) (starts, ends []int) {
	n := src.NumTargets()
	starts = make([]int, n)
	ends = make([]int, n)
	for i := 0; i < n; i++ {
		sf, ef, ok := src.TargetRange(i)
		if !ok {
			sf, ef = -1, -1
		}
		starts[i], ends[i] = sf, ef
	}
	return starts, ends
}
