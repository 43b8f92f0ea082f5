package linking

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trajlink/internal/config"
	"github.com/banshee-data/trajlink/internal/pose"
)

var (
	// ErrShapeMismatch is returned when inputs disagree on landmark count or
	// dimensionality.
	ErrShapeMismatch = pose.ErrShapeMismatch
	// ErrNoMaxCost is returned when a matcher runs before max cost is known.
	ErrNoMaxCost = errors.New("max cost not set or calibrated")
)

// Params holds the linking parameters in plain value form.
type Params struct {
	MaxCost              float64   // birth+death cost; 0 means calibrate
	MaxCostMissed        []float64 // per gap length starting at 2 frames apart; nil means calibrate
	MaxFramesMissed      int
	StrictMatchThreshold float64

	CostMissing    float64
	CostExtra      float64
	WeightMovement float64

	MaxCostMult            float64
	MaxCostPercentile      float64
	MaxCostHeuristic       string
	MaxCostFramesFit       int
	MaxCostSamples         int
	KneeMinValue           float64
	KneeFallbackPercentile float64

	MaxFramesDelete int
	MinConfDelete   float64
	NMSMaxDist      float64 // 0 disables duplicate suppression

	LinkCostMult            float64
	LinkMaxGapMult          int
	ClusterClosePercentile  float64
	ClusterCloseMin         float64
	ClusterFarPercentile    float64
	ClusterOverlapTolerance float64
	MinTrackletLen          int
	KeepAllTracklets        bool
	InterpolateMaxGap       int
	InterpolateMaxRatio     float64

	Workers   int
	Verbosity int
}

// DefaultParams returns the code defaults of every parameter.
func DefaultParams() Params {
	return ParamsFromConfig(config.EmptyLinkingConfig())
}

// ParamsFromConfig derives Params from a LinkingConfig.
func ParamsFromConfig(c *config.LinkingConfig) Params {
	p := Params{
		MaxCostMissed:           c.GetMaxCostMissed(),
		MaxFramesMissed:         c.GetMaxFramesMissed(),
		StrictMatchThreshold:    c.GetStrictMatchThreshold(),
		CostMissing:             c.GetCostMissing(),
		CostExtra:               c.GetCostExtra(),
		WeightMovement:          c.GetWeightMovement(),
		MaxCostMult:             c.GetMaxCostMult(),
		MaxCostPercentile:       c.GetMaxCostPercentile(),
		MaxCostHeuristic:        c.GetMaxCostHeuristic(),
		MaxCostFramesFit:        c.GetMaxCostFramesFit(),
		MaxCostSamples:          c.GetMaxCostSamples(),
		KneeMinValue:            c.GetKneeMinValue(),
		KneeFallbackPercentile:  c.GetKneeFallbackPercentile(),
		MaxFramesDelete:         c.GetMaxFramesDelete(),
		MinConfDelete:           c.GetMinConfDelete(),
		LinkCostMult:            c.GetLinkCostMult(),
		LinkMaxGapMult:          c.GetLinkMaxGapMult(),
		ClusterClosePercentile:  c.GetClusterClosePercentile(),
		ClusterCloseMin:         c.GetClusterCloseMin(),
		ClusterFarPercentile:    c.GetClusterFarPercentile(),
		ClusterOverlapTolerance: c.GetClusterOverlapTolerance(),
		MinTrackletLen:          c.GetMinTrackletLen(),
		KeepAllTracklets:        c.GetKeepAllTracklets(),
		InterpolateMaxGap:       c.GetInterpolateMaxGap(),
		InterpolateMaxRatio:     c.GetInterpolateMaxRatio(),
		Workers:                 c.GetWorkers(),
		Verbosity:               c.GetVerbosity(),
	}
	if v, ok := c.GetMaxCost(); ok {
		p.MaxCost = v
	}
	if v, ok := c.GetNMSMaxDist(); ok {
		p.NMSMaxDist = v
	}
	return p
}

// GapMaxCost returns the calibrated threshold for matching detections that
// are skip frames apart (skip >= 2). Gaps beyond the calibrated curve reuse
// its last entry.
func (p Params) GapMaxCost(skip int) (float64, error) {
	if len(p.MaxCostMissed) == 0 {
		return 0, fmt.Errorf("gap thresholds not calibrated: %w", ErrNoMaxCost)
	}
	i := skip - 2
	if i < 0 {
		i = 0
	}
	if i >= len(p.MaxCostMissed) {
		i = len(p.MaxCostMissed) - 1
	}
	return p.MaxCostMissed[i], nil
}

func (p Params) checkMaxCost() error {
	if p.MaxCost <= 0 || math.IsNaN(p.MaxCost) {
		return ErrNoMaxCost
	}
	return nil
}
