package linking

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/tracklet"
)

// Stage is the processing state of a linking run.
type Stage int

const (
	StageRaw Stage = iota
	StageStitched
	StagePruned
	StageLongRangeLinked
	StageClustered
	StageFinal
)

var stageNames = [...]string{"raw", "stitched", "pruned", "long_range_linked", "clustered", "final"}

// ErrStageOrder is returned for a transition to an earlier stage.
var ErrStageOrder = errors.New("stage transition goes backwards")

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Next returns to when it does not precede s. Stages may be skipped.
func (s Stage) Next(to Stage) (Stage, error) {
	if to < s || int(to) >= len(stageNames) {
		return s, fmt.Errorf("%s -> %s: %w", s, to, ErrStageOrder)
	}
	return to, nil
}

// Appearance produces appearance embeddings for the tracklets of a linked
// sequence.
type Appearance interface {
	Embed(ctx context.Context, video int, seq pose.Source, tracklet int) (Embeddings, error)
}

// Pipeline runs the linking stages over one or more videos of the same
// scene.
type Pipeline struct {
	Params Params
	// Appearance enables long-range linking and identity clustering across
	// tracklets; nil stops after pruning.
	Appearance Appearance
	// IDCosts, when set, holds per-video identity costs and selects the
	// identity-informed driver. Identities are then target indices and are
	// neither stitched nor renumbered.
	IDCosts []IdentityCosts
	// Pretracked treats every input slot as an existing tracklet.
	Pretracked    bool
	DeleteShort   bool
	DeleteLowConf bool
	MergeClose    bool
	MaxFrames     int
}

// NewPipeline returns a pipeline with per-frame assignment, stitching and
// short-trajectory deletion enabled.
func NewPipeline(p Params) *Pipeline {
	return &Pipeline{Params: p, DeleteShort: true}
}

// VideoStats counts what each stage did to one video.
type VideoStats struct {
	Detections     int `json:"detections"`
	Suppressed     int `json:"suppressed"`
	Births         int `json:"births"`
	Deaths         int `json:"deaths"`
	Stitched       int `json:"stitched"`
	DummyFrames    int `json:"dummy_frames"`
	DeletedShort   int `json:"deleted_short"`
	DeletedLowConf int `json:"deleted_low_conf"`
	Merged         int `json:"merged"`
	Linked         int `json:"linked"`
	Interpolated   int `json:"interpolated"`
	Identities     int `json:"identities"`
}

// RunStats summarises a run.
type RunStats struct {
	Stage         Stage        `json:"-"`
	StageName     string       `json:"stage"`
	MaxCost       float64      `json:"max_cost"`
	MaxCostMissed []float64    `json:"max_cost_missed"`
	Groups        int          `json:"groups"`
	Videos        []VideoStats `json:"videos"`
}

// VideoResult is the linked output of one video.
type VideoResult struct {
	// Sequence has one target per identity.
	Sequence *pose.Sequence
	// IDs maps every input slot to its pre-clustering identity.
	IDs *tracklet.IDs
}

// Result is the output of Pipeline.Run.
type Result struct {
	Params Params // with calibrated thresholds filled in
	Videos []VideoResult
	Groups [][]TrackletRef // identity groups when clustering ran
	Stats  RunStats
}

type videoState struct {
	seq    *pose.Sequence
	ids    *tracklet.IDs
	dummy  *tracklet.Flags
	linked *pose.Sequence
	stats  VideoStats
}

// Run links every video and returns the final sequences.
func (pl *Pipeline) Run(ctx context.Context, videos []pose.Source) (*Result, error) {
	p := pl.Params
	if pl.IDCosts != nil && len(pl.IDCosts) != len(videos) {
		return nil, fmt.Errorf("%d identity cost series for %d videos", len(pl.IDCosts), len(videos))
	}
	stage := StageRaw
	advance := func(to Stage) error {
		s, err := stage.Next(to)
		if err != nil {
			return err
		}
		stage = s
		monitoring.Debugf("[pipeline] stage %s", stage)
		return ctx.Err()
	}

	states := make([]*videoState, len(videos))
	srcs := make([]pose.Source, len(videos))
	for v, src := range videos {
		seq, err := pose.FromSource(src)
		if err != nil {
			return nil, fmt.Errorf("video %d: %w", v, err)
		}
		st := &videoState{seq: seq}
		if p.NMSMaxDist > 0 {
			st.stats.Suppressed = pose.SuppressDuplicates(seq, p.NMSMaxDist)
		}
		st.stats.Detections = countDetections(seq)
		states[v], srcs[v] = st, seq
	}
	// The identity-informed driver charges fixed missing/extra costs and
	// never stitches, so it needs no calibrated thresholds.
	recognize := pl.IDCosts != nil
	if p.MaxCost <= 0 && !recognize {
		p.MaxCost = EstimateMaxCost(srcs, p, 1)
		monitoring.Logf("[pipeline] calibrated max cost %.3f", p.MaxCost)
	}

	for v, st := range states {
		if err := pl.assign(v, st, p); err != nil {
			return nil, fmt.Errorf("video %d: %w", v, err)
		}
	}

	if err := advance(StageStitched); err != nil {
		return nil, err
	}
	if len(p.MaxCostMissed) == 0 && !recognize {
		p.MaxCostMissed = EstimateMaxCostMissed(srcs, p)
		monitoring.Logf("[pipeline] calibrated gap max costs %v", p.MaxCostMissed)
	}
	for v, st := range states {
		if recognize {
			st.dummy = tracklet.NewFlags(0)
			continue
		}
		dummy, ss, err := Stitch(st.seq, st.ids, p)
		if err != nil {
			return nil, fmt.Errorf("video %d: %w", v, err)
		}
		st.dummy = dummy
		st.stats.Stitched, st.stats.DummyFrames = ss.Stitched, ss.DummyFrames
	}

	if err := advance(StagePruned); err != nil {
		return nil, err
	}
	for v, st := range states {
		if err := pl.prune(st, p); err != nil {
			return nil, fmt.Errorf("video %d: %w", v, err)
		}
	}

	res := &Result{Params: p}
	if pl.Appearance != nil && pl.IDCosts == nil {
		groups, err := pl.cluster(ctx, states, p, advance)
		if err != nil {
			return nil, err
		}
		res.Groups = groups
	}

	if err := advance(StageFinal); err != nil {
		return nil, err
	}
	res.Stats = RunStats{
		Stage:         stage,
		StageName:     stage.String(),
		MaxCost:       p.MaxCost,
		MaxCostMissed: p.MaxCostMissed,
		Groups:        len(res.Groups),
	}
	for v, st := range states {
		st.stats.Identities = st.linked.NumTargets()
		res.Videos = append(res.Videos, VideoResult{Sequence: st.linked, IDs: st.ids})
		res.Stats.Videos = append(res.Stats.Videos, st.stats)
		monitoring.Logf("[pipeline] video %d: %d detections -> %d identities (%d stitched, %d deleted, %d merged)",
			v, st.stats.Detections, st.stats.Identities, st.stats.Stitched,
			st.stats.DeletedShort+st.stats.DeletedLowConf, st.stats.Merged)
	}
	return res, nil
}

func (pl *Pipeline) assign(v int, st *videoState, p Params) error {
	switch {
	case pl.IDCosts != nil:
		ids, _, err := AssignRecognizeIDs(st.seq, pl.IDCosts[v], p, pl.MaxFrames)
		if err != nil {
			return err
		}
		st.ids = ids
	case pl.Pretracked:
		ids, err := DummyIDs(st.seq, pl.MaxFrames)
		if err != nil {
			return err
		}
		st.ids = ids
	default:
		ids, _, as, err := AssignIDs(st.seq, p, pl.MaxFrames)
		if err != nil {
			return err
		}
		st.ids = ids
		st.stats.Births, st.stats.Deaths = as.Births, as.Deaths
	}
	return nil
}

func (pl *Pipeline) prune(st *videoState, p Params) error {
	if pl.DeleteShort {
		st.stats.DeletedShort = len(DeleteShort(st.ids, st.dummy, p.MaxFramesDelete))
	}
	if pl.DeleteLowConf {
		st.stats.DeletedLowConf = len(DeleteLowConf(st.seq, st.ids, p.MinConfDelete))
	}
	if pl.IDCosts == nil {
		tracklet.Compact(st.ids)
	}
	linked, err := pose.ApplyIDs(st.seq, st.ids)
	if err != nil {
		return err
	}
	if pl.MergeClose {
		merged, mapping := MergeClose(linked, p.MaxCost)
		if merged > 0 {
			tracklet.Remap(st.ids, mapping)
		}
		st.stats.Merged = merged
	}
	st.linked = linked
	return nil
}

// cluster runs long-range linking and identity clustering over the linked
// tracklets of every video and replaces each video's output with one target
// per identity.
func (pl *Pipeline) cluster(ctx context.Context, states []*videoState, p Params, advance func(Stage) error) ([][]TrackletRef, error) {
	if err := advance(StageLongRangeLinked); err != nil {
		return nil, err
	}
	in := ClusterInput{Videos: make([]VideoTracklets, len(states))}
	for v, st := range states {
		srcs := []pose.Source{st.linked}
		thresholds := append([]float64{EstimateMaxCost(srcs, p, 1)}, EstimateMaxCostMissed(srcs, p)...)
		in.Videos[v] = VideoTracklets{
			Links:      ComputeLinkCosts(st.linked, p.MaxCostFramesFit),
			Thresholds: thresholds,
		}
	}

	var emb []Embeddings
	for v, st := range states {
		for k := 0; k < st.linked.NumTargets(); k++ {
			if in.Videos[v].length(k) < p.MinTrackletLen {
				continue
			}
			e, err := pl.Appearance.Embed(ctx, v, st.linked, k)
			if err != nil {
				return nil, fmt.Errorf("embed video %d tracklet %d: %w", v, k, err)
			}
			if len(e) == 0 {
				continue
			}
			in.Refs = append(in.Refs, TrackletRef{Video: v, Tracklet: k})
			emb = append(emb, e)
		}
	}
	dist, err := DistanceMatrix(ctx, emb, p.Workers)
	if err != nil {
		return nil, err
	}
	if dist != nil {
		in.Dist = dist
	}

	if err := advance(StageClustered); err != nil {
		return nil, err
	}
	cr, err := ClusterIdentities(in, p)
	if err != nil {
		return nil, err
	}
	groups := cr.Groups
	for v, st := range states {
		ids := cr.IDs[v]
		deleted := DeleteShort(ids, cr.Dummy[v], p.MaxFramesDelete)
		st.stats.DeletedShort += len(deleted)
		if len(states) == 1 {
			mapping := tracklet.Compact(ids)
			groups = keepMapped(groups, mapping)
		}
		out, err := pose.ApplyIDs(st.linked, ids)
		if err != nil {
			return nil, fmt.Errorf("video %d: %w", v, err)
		}
		for _, g := range cr.Groups {
			for _, r := range g {
				if r.Video == v {
					st.stats.Linked++
				}
			}
		}
		st.stats.Interpolated = pose.InterpolateGaps(out, p.InterpolateMaxGap, p.InterpolateMaxRatio)
		st.linked = out
	}
	return groups, nil
}

// keepMapped drops the groups whose identity mapping is NoID, keeping order.
func keepMapped(groups [][]TrackletRef, mapping []int) [][]TrackletRef {
	var out [][]TrackletRef
	for g, grp := range groups {
		if g < len(mapping) && mapping[g] != tracklet.NoID {
			out = append(out, grp)
		}
	}
	return out
}

func countDetections(src pose.Source) int {
	n := 0
	for t := src.FirstFrame(); t <= src.LastFrame(); t++ {
		n += len(pose.RealIndex(src.Frame(t)))
	}
	return n
}
