package linking

import (
	"fmt"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// AssignStats summarises a sequential identity assignment.
type AssignStats struct {
	Frames      int
	EmptyFrames int
	Births      int
	Deaths      int
	LastID      int
	TotalCost   float64
}

// frameWindow returns the frames processed for src, capped at maxFrames
// when positive.
func frameWindow(src pose.Source, maxFrames int) (first, last int) {
	first, last = src.FirstFrame(), src.LastFrame()
	if maxFrames > 0 && last-first+1 > maxFrames {
		last = first + maxFrames - 1
	}
	return first, last
}

// newSlotIDs allocates an identity table with one entry per slot of src,
// covering the occupied range clipped to [first, last].
func newSlotIDs(src pose.Source, first, last int) (*tracklet.IDs, error) {
	ids := tracklet.NewIDs(src.NumTargets())
	for slot := 0; slot < src.NumTargets(); slot++ {
		start, end, ok := src.TargetRange(slot)
		if !ok || start > last || end < first {
			continue
		}
		if err := ids.Allocate(slot, max(start, first), min(end, last)); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func frameDetections(src pose.Source, t int) ([]int, Detections) {
	frame := src.Frame(t)
	slots := pose.RealIndex(frame)
	return slots, Detections{Shape: src.Shape(), Poses: pose.Select(frame, slots)}
}

// AssignIDs links detections frame by frame on movement alone. The first
// frame gets identities 0..k-1; every later frame is matched to its
// predecessor with MatchFrame. It returns the identity table indexed by
// source slot and the assignment cost of every frame transition.
func AssignIDs(src pose.Source, p Params, maxFrames int) (*tracklet.IDs, []float64, AssignStats, error) {
	var stats AssignStats
	if err := p.checkMaxCost(); err != nil {
		return nil, nil, stats, err
	}
	first, last := frameWindow(src, maxFrames)
	ids, err := newSlotIDs(src, first, last)
	if err != nil {
		return nil, nil, stats, err
	}
	if last < first {
		stats.LastID = tracklet.NoID
		return ids, nil, stats, nil
	}

	slots, curr := frameDetections(src, first)
	idsCurr := make([]int, len(slots))
	for i := range idsCurr {
		idsCurr[i] = i
	}
	if err := ids.SetFrame(first, slots, idsCurr); err != nil {
		return nil, nil, stats, err
	}
	lastID := len(idsCurr) - 1
	stats.Frames = 1
	if len(slots) == 0 {
		stats.EmptyFrames++
	}

	opt := MatchOptions{MaxCost: p.MaxCost, StrictMatchThreshold: p.StrictMatchThreshold}
	costs := make([]float64, 0, last-first)
	for t := first + 1; t <= last; t++ {
		nextSlots, next := frameDetections(src, t)
		res, err := MatchFrame(curr, next, idsCurr, lastID, opt)
		if err != nil {
			return nil, nil, stats, fmt.Errorf("frame %d: %w", t, err)
		}
		if err := ids.SetFrame(t, nextSlots, res.IDs); err != nil {
			return nil, nil, stats, err
		}
		if len(nextSlots) == 0 {
			stats.EmptyFrames++
		}
		monitoring.Tracef("[linking] frame %d: %d -> %d detections, %d births, %d deaths, cost %.3f",
			t, len(curr.Poses), len(next.Poses), res.Births, res.Deaths, res.Cost)

		costs = append(costs, res.Cost)
		stats.Frames++
		stats.Births += res.Births
		stats.Deaths += res.Deaths
		stats.TotalCost += res.Cost
		curr, idsCurr, lastID = next, res.IDs, res.LastID
	}
	stats.LastID = lastID
	monitoring.Debugf("[linking] assigned %d identities over %d frames (%d births, %d deaths, %d empty frames)",
		lastID+1, stats.Frames, stats.Births, stats.Deaths, stats.EmptyFrames)
	return ids, costs, stats, nil
}

// DummyIDs treats each source slot as an already linked tracklet: slot i
// keeps identity i wherever it holds a detection.
func DummyIDs(src pose.Source, maxFrames int) (*tracklet.IDs, error) {
	first, last := frameWindow(src, maxFrames)
	ids, err := newSlotIDs(src, first, last)
	if err != nil {
		return nil, err
	}
	for t := first; t <= last; t++ {
		slots := pose.RealIndex(src.Frame(t))
		if err := ids.SetFrame(t, slots, slots); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
