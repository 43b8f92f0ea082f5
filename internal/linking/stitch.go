package linking

import (
	"fmt"
	"sort"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// StitchStats summarises a stitching pass.
type StitchStats struct {
	Stitched    int // identities merged into an earlier one
	DummyFrames int // gap frames bridged
}

// Stitch bridges short gaps: an identity that dies at frame t is matched
// against the identities born at t+skip, for skip = 2..MaxFramesMissed+1,
// using the gap threshold for that skip. A matched birth identity is renamed
// to the dying one in ids and the bridged frames are flagged in the returned
// dummy table, indexed by identity.
func Stitch(src pose.Source, ids *tracklet.IDs, p Params) (*tracklet.Flags, StitchStats, error) {
	var stats StitchStats
	spans := tracklet.Spans(ids)
	dummy := tracklet.NewFlags(len(spans))
	starts := make([]int, len(spans))
	ends := make([]int, len(spans))
	last := -1
	for id, s := range spans {
		starts[id], ends[id] = s.Start, s.End
		if !s.Present() {
			continue
		}
		if err := dummy.Allocate(id, s.Start, s.End); err != nil {
			return nil, stats, err
		}
		last = max(last, s.End)
	}
	if p.MaxFramesMissed < 1 || last < 0 {
		return dummy, stats, nil
	}
	if _, err := p.GapMaxCost(2); err != nil {
		return nil, stats, err
	}

	deathFrames := uniqueSorted(ends, last)
	for _, t := range deathFrames {
		dying := identitiesWhere(ends, t)
		if len(dying) == 0 {
			continue
		}
		lastID := dying[len(dying)-1]
		curr := Detections{Shape: src.Shape(), Poses: identityPoses(src, ids, dying, t)}

		for skip := 2; skip <= p.MaxFramesMissed+1 && len(dying) > 0; skip++ {
			born := identitiesWhere(starts, t+skip)
			if len(born) == 0 {
				continue
			}
			next := Detections{Shape: src.Shape(), Poses: identityPoses(src, ids, born, t+skip)}
			maxCost, _ := p.GapMaxCost(skip)
			res, err := MatchFrame(curr, next, dying, lastID, MatchOptions{
				MaxCost:              maxCost,
				StrictMatchThreshold: p.StrictMatchThreshold,
			})
			if err != nil {
				return nil, stats, fmt.Errorf("stitch at frame %d skip %d: %w", t, skip, err)
			}

			for k, id := range res.IDs {
				if id > lastID || id < 0 {
					continue
				}
				birth := born[k]
				ids.Replace(birth, id)
				ends[id] = ends[birth]
				starts[birth], ends[birth] = -1, -1
				for g := t + 1; g < t+skip; g++ {
					if err := dummy.Set(id, g, true); err != nil {
						return nil, stats, err
					}
				}
				stats.Stitched++
				stats.DummyFrames += skip - 1
				monitoring.Tracef("[stitch] identity %d (dies %d) continues as %d (born %d)", id, t, birth, t+skip)

				i := sort.SearchInts(dying, id)
				dying = append(dying[:i], dying[i+1:]...)
				curr.Poses = append(curr.Poses[:i], curr.Poses[i+1:]...)
			}
		}
	}
	monitoring.Debugf("[stitch] %d identities stitched, %d gap frames bridged", stats.Stitched, stats.DummyFrames)
	return dummy, stats, nil
}

// uniqueSorted returns the distinct non-negative values of xs below limit.
func uniqueSorted(xs []int, limit int) []int {
	seen := map[int]bool{}
	var out []int
	for _, x := range xs {
		if x < 0 || x >= limit || seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	sort.Ints(out)
	return out
}

// identitiesWhere returns, in increasing order, the identities whose frame
// equals t.
func identitiesWhere(frames []int, t int) []int {
	var out []int
	for id, f := range frames {
		if f == t {
			out = append(out, id)
		}
	}
	return out
}

// identityPoses returns the pose held by each identity at frame t.
func identityPoses(src pose.Source, ids *tracklet.IDs, identities []int, t int) []pose.Pose {
	frame := src.Frame(t)
	out := make([]pose.Pose, len(identities))
	for k, id := range identities {
		slot := tracklet.SlotOf(ids, id, t)
		if slot < 0 || slot >= len(frame) {
			out[k] = pose.Missing(src.Shape())
			continue
		}
		out[k] = frame[slot]
	}
	return out
}
