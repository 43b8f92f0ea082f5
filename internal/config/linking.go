package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigPath is the path to the canonical linking defaults file.
const DefaultConfigPath = "config/linking.defaults.json"

// Cost heuristics accepted by max_cost_heuristic.
const (
	HeuristicPercentile = "percentile"
	HeuristicKnee       = "knee"
)

// LinkingConfig holds every tunable parameter of the trajectory linker.
// Fields left nil fall back to the defaults returned by the Get* methods, so
// partial configs are safe.
type LinkingConfig struct {
	// Frame matching
	MaxCost              *float64  `json:"max_cost,omitempty" toml:"max_cost,omitempty"`               // unset: calibrated from data
	MaxCostMissed        []float64 `json:"max_cost_missed,omitempty" toml:"max_cost_missed,omitempty"` // unset: calibrated per gap length
	MaxFramesMissed      *int      `json:"max_frames_missed,omitempty" toml:"max_frames_missed,omitempty"`
	StrictMatchThreshold *float64  `json:"strict_match_threshold,omitempty" toml:"strict_match_threshold,omitempty"`

	// Identity-informed matching
	CostMissing    *float64 `json:"cost_missing,omitempty" toml:"cost_missing,omitempty"`
	CostExtra      *float64 `json:"cost_extra,omitempty" toml:"cost_extra,omitempty"`
	WeightMovement *float64 `json:"weight_movement,omitempty" toml:"weight_movement,omitempty"`

	// Calibration
	MaxCostMult            *float64 `json:"max_cost_mult,omitempty" toml:"max_cost_mult,omitempty"`
	MaxCostPercentile      *float64 `json:"max_cost_percentile,omitempty" toml:"max_cost_percentile,omitempty"`
	MaxCostHeuristic       *string  `json:"max_cost_heuristic,omitempty" toml:"max_cost_heuristic,omitempty"`
	MaxCostFramesFit       *int     `json:"max_cost_frames_fit,omitempty" toml:"max_cost_frames_fit,omitempty"`
	MaxCostSamples         *int     `json:"max_cost_samples,omitempty" toml:"max_cost_samples,omitempty"`
	KneeMinValue           *float64 `json:"knee_min_value,omitempty" toml:"knee_min_value,omitempty"`
	KneeFallbackPercentile *float64 `json:"knee_fallback_percentile,omitempty" toml:"knee_fallback_percentile,omitempty"`

	// Pruning
	MaxFramesDelete *int     `json:"max_frames_delete,omitempty" toml:"max_frames_delete,omitempty"`
	MinConfDelete   *float64 `json:"min_conf_delete,omitempty" toml:"min_conf_delete,omitempty"`
	NMSMaxDist      *float64 `json:"nms_max_dist,omitempty" toml:"nms_max_dist,omitempty"` // unset: duplicate suppression disabled

	// Long-range linking and identity clustering
	LinkCostMult            *float64 `json:"link_cost_mult,omitempty" toml:"link_cost_mult,omitempty"`
	LinkMaxGapMult          *int     `json:"link_max_gap_mult,omitempty" toml:"link_max_gap_mult,omitempty"`
	ClusterClosePercentile  *float64 `json:"cluster_close_percentile,omitempty" toml:"cluster_close_percentile,omitempty"`
	ClusterCloseMin         *float64 `json:"cluster_close_min,omitempty" toml:"cluster_close_min,omitempty"`
	ClusterFarPercentile    *float64 `json:"cluster_far_percentile,omitempty" toml:"cluster_far_percentile,omitempty"`
	ClusterOverlapTolerance *float64 `json:"cluster_overlap_tolerance,omitempty" toml:"cluster_overlap_tolerance,omitempty"`
	MinTrackletLen          *int     `json:"min_tracklet_len,omitempty" toml:"min_tracklet_len,omitempty"`
	KeepAllTracklets        *bool    `json:"keep_all_tracklets,omitempty" toml:"keep_all_tracklets,omitempty"`
	InterpolateMaxGap       *int     `json:"interpolate_max_gap,omitempty" toml:"interpolate_max_gap,omitempty"`
	InterpolateMaxRatio     *float64 `json:"interpolate_max_ratio,omitempty" toml:"interpolate_max_ratio,omitempty"`

	// Runtime
	Workers   *int `json:"workers,omitempty" toml:"workers,omitempty"`
	Verbosity *int `json:"verbosity,omitempty" toml:"verbosity,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyLinkingConfig returns a LinkingConfig with all fields set to nil.
func EmptyLinkingConfig() *LinkingConfig {
	return &LinkingConfig{}
}

// DefaultLinkingConfig returns a config with every defaulted field set
// explicitly. Calibrated fields (max_cost, max_cost_missed, nms_max_dist)
// stay unset.
func DefaultLinkingConfig() *LinkingConfig {
	e := EmptyLinkingConfig()
	return &LinkingConfig{
		MaxFramesMissed:         ptrInt(e.GetMaxFramesMissed()),
		StrictMatchThreshold:    ptrFloat64(e.GetStrictMatchThreshold()),
		CostMissing:             ptrFloat64(e.GetCostMissing()),
		CostExtra:               ptrFloat64(e.GetCostExtra()),
		WeightMovement:          ptrFloat64(e.GetWeightMovement()),
		MaxCostMult:             ptrFloat64(e.GetMaxCostMult()),
		MaxCostPercentile:       ptrFloat64(e.GetMaxCostPercentile()),
		MaxCostHeuristic:        ptrString(e.GetMaxCostHeuristic()),
		MaxCostFramesFit:        ptrInt(e.GetMaxCostFramesFit()),
		MaxCostSamples:          ptrInt(e.GetMaxCostSamples()),
		KneeMinValue:            ptrFloat64(e.GetKneeMinValue()),
		KneeFallbackPercentile:  ptrFloat64(e.GetKneeFallbackPercentile()),
		MaxFramesDelete:         ptrInt(e.GetMaxFramesDelete()),
		MinConfDelete:           ptrFloat64(e.GetMinConfDelete()),
		LinkCostMult:            ptrFloat64(e.GetLinkCostMult()),
		LinkMaxGapMult:          ptrInt(e.GetLinkMaxGapMult()),
		ClusterClosePercentile:  ptrFloat64(e.GetClusterClosePercentile()),
		ClusterCloseMin:         ptrFloat64(e.GetClusterCloseMin()),
		ClusterFarPercentile:    ptrFloat64(e.GetClusterFarPercentile()),
		ClusterOverlapTolerance: ptrFloat64(e.GetClusterOverlapTolerance()),
		MinTrackletLen:          ptrInt(e.GetMinTrackletLen()),
		KeepAllTracklets:        ptrBool(e.GetKeepAllTracklets()),
		InterpolateMaxGap:       ptrInt(e.GetInterpolateMaxGap()),
		InterpolateMaxRatio:     ptrFloat64(e.GetInterpolateMaxRatio()),
		Workers:                 ptrInt(e.GetWorkers()),
		Verbosity:               ptrInt(e.GetVerbosity()),
	}
}

// LoadLinkingConfig loads a LinkingConfig from a JSON or TOML file, chosen
// by extension. The file must be under 1MB.
func LoadLinkingConfig(path string) (*LinkingConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLinkingConfig()
	if ext == ".toml" {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics when the file
// cannot be found; intended for test setup.
func MustLoadDefaultConfig() *LinkingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadLinkingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LinkingConfig) Validate() error {
	if c.MaxCost != nil && (*c.MaxCost <= 0 || math.IsNaN(*c.MaxCost)) {
		return fmt.Errorf("max_cost must be positive, got %f", *c.MaxCost)
	}
	for i, v := range c.MaxCostMissed {
		if v <= 0 || math.IsNaN(v) {
			return fmt.Errorf("max_cost_missed[%d] must be positive, got %f", i, v)
		}
	}
	if c.MaxFramesMissed != nil && *c.MaxFramesMissed < 0 {
		return fmt.Errorf("max_frames_missed must be non-negative, got %d", *c.MaxFramesMissed)
	}
	if c.MaxFramesDelete != nil && *c.MaxFramesDelete < 0 {
		return fmt.Errorf("max_frames_delete must be non-negative, got %d", *c.MaxFramesDelete)
	}
	if c.StrictMatchThreshold != nil && *c.StrictMatchThreshold < 0 {
		return fmt.Errorf("strict_match_threshold must be non-negative, got %f", *c.StrictMatchThreshold)
	}
	if c.MaxCostHeuristic != nil {
		switch *c.MaxCostHeuristic {
		case HeuristicPercentile, HeuristicKnee:
		default:
			return fmt.Errorf("max_cost_heuristic must be %q or %q, got %q", HeuristicPercentile, HeuristicKnee, *c.MaxCostHeuristic)
		}
	}
	for name, p := range map[string]*float64{
		"max_cost_percentile":      c.MaxCostPercentile,
		"knee_fallback_percentile": c.KneeFallbackPercentile,
		"cluster_close_percentile": c.ClusterClosePercentile,
		"cluster_far_percentile":   c.ClusterFarPercentile,
	} {
		if p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("%s must be between 0 and 100, got %f", name, *p)
		}
	}
	if c.MaxCostFramesFit != nil && *c.MaxCostFramesFit < 1 {
		return fmt.Errorf("max_cost_frames_fit must be at least 1, got %d", *c.MaxCostFramesFit)
	}
	if c.MaxCostSamples != nil && *c.MaxCostSamples < 1 {
		return fmt.Errorf("max_cost_samples must be at least 1, got %d", *c.MaxCostSamples)
	}
	if c.ClusterOverlapTolerance != nil && (*c.ClusterOverlapTolerance < 0 || *c.ClusterOverlapTolerance > 1) {
		return fmt.Errorf("cluster_overlap_tolerance must be between 0 and 1, got %f", *c.ClusterOverlapTolerance)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetMaxCost returns max_cost and whether it was configured.
func (c *LinkingConfig) GetMaxCost() (float64, bool) {
	if c.MaxCost == nil {
		return 0, false
	}
	return *c.MaxCost, true
}

// GetMaxCostMissed returns a copy of the configured gap threshold curve, nil
// when it should be calibrated.
func (c *LinkingConfig) GetMaxCostMissed() []float64 {
	if len(c.MaxCostMissed) == 0 {
		return nil
	}
	return append([]float64(nil), c.MaxCostMissed...)
}

// GetMaxFramesMissed returns the max_frames_missed value or the default.
func (c *LinkingConfig) GetMaxFramesMissed() int {
	if c.MaxFramesMissed == nil {
		return 10
	}
	return *c.MaxFramesMissed
}

// GetStrictMatchThreshold returns the strict_match_threshold value or the default.
func (c *LinkingConfig) GetStrictMatchThreshold() float64 {
	if c.StrictMatchThreshold == nil {
		return 2.0
	}
	return *c.StrictMatchThreshold
}

// GetCostMissing returns the cost_missing value or the default.
func (c *LinkingConfig) GetCostMissing() float64 {
	if c.CostMissing == nil {
		return 10
	}
	return *c.CostMissing
}

// GetCostExtra returns the cost_extra value or the default.
func (c *LinkingConfig) GetCostExtra() float64 {
	if c.CostExtra == nil {
		return 10
	}
	return *c.CostExtra
}

// GetWeightMovement returns the weight_movement value or the default.
func (c *LinkingConfig) GetWeightMovement() float64 {
	if c.WeightMovement == nil {
		return 1.0
	}
	return *c.WeightMovement
}

// GetMaxCostMult returns the max_cost_mult value or the default.
func (c *LinkingConfig) GetMaxCostMult() float64 {
	if c.MaxCostMult == nil {
		return 2.0
	}
	return *c.MaxCostMult
}

// GetMaxCostPercentile returns the max_cost_percentile value or the default.
func (c *LinkingConfig) GetMaxCostPercentile() float64 {
	if c.MaxCostPercentile == nil {
		return 95
	}
	return *c.MaxCostPercentile
}

// GetMaxCostHeuristic returns the max_cost_heuristic value or the default.
func (c *LinkingConfig) GetMaxCostHeuristic() string {
	if c.MaxCostHeuristic == nil || *c.MaxCostHeuristic == "" {
		return HeuristicKnee
	}
	return *c.MaxCostHeuristic
}

// GetMaxCostFramesFit returns the max_cost_frames_fit value or the default.
func (c *LinkingConfig) GetMaxCostFramesFit() int {
	if c.MaxCostFramesFit == nil {
		return 3
	}
	return *c.MaxCostFramesFit
}

// GetMaxCostSamples returns the max_cost_samples value or the default.
func (c *LinkingConfig) GetMaxCostSamples() int {
	if c.MaxCostSamples == nil {
		return 1000
	}
	return *c.MaxCostSamples
}

// GetKneeMinValue returns the knee_min_value value or the default.
func (c *LinkingConfig) GetKneeMinValue() float64 {
	if c.KneeMinValue == nil {
		return 0.2
	}
	return *c.KneeMinValue
}

// GetKneeFallbackPercentile returns the knee_fallback_percentile value or the default.
func (c *LinkingConfig) GetKneeFallbackPercentile() float64 {
	if c.KneeFallbackPercentile == nil {
		return 98
	}
	return *c.KneeFallbackPercentile
}

// GetMaxFramesDelete returns the max_frames_delete value or the default.
func (c *LinkingConfig) GetMaxFramesDelete() int {
	if c.MaxFramesDelete == nil {
		return 10
	}
	return *c.MaxFramesDelete
}

// GetMinConfDelete returns the min_conf_delete value or the default.
func (c *LinkingConfig) GetMinConfDelete() float64 {
	if c.MinConfDelete == nil {
		return 0.5
	}
	return *c.MinConfDelete
}

// GetNMSMaxDist returns nms_max_dist and whether duplicate suppression is enabled.
func (c *LinkingConfig) GetNMSMaxDist() (float64, bool) {
	if c.NMSMaxDist == nil {
		return 0, false
	}
	return *c.NMSMaxDist, true
}

// GetLinkCostMult returns the link_cost_mult value or the default.
func (c *LinkingConfig) GetLinkCostMult() float64 {
	if c.LinkCostMult == nil {
		return 3
	}
	return *c.LinkCostMult
}

// GetLinkMaxGapMult returns the link_max_gap_mult value or the default.
func (c *LinkingConfig) GetLinkMaxGapMult() int {
	if c.LinkMaxGapMult == nil {
		return 15
	}
	return *c.LinkMaxGapMult
}

// GetClusterClosePercentile returns the cluster_close_percentile value or the default.
func (c *LinkingConfig) GetClusterClosePercentile() float64 {
	if c.ClusterClosePercentile == nil {
		return 95
	}
	return *c.ClusterClosePercentile
}

// GetClusterCloseMin returns the cluster_close_min value or the default.
func (c *LinkingConfig) GetClusterCloseMin() float64 {
	if c.ClusterCloseMin == nil {
		return 0.5
	}
	return *c.ClusterCloseMin
}

// GetClusterFarPercentile returns the cluster_far_percentile value or the default.
func (c *LinkingConfig) GetClusterFarPercentile() float64 {
	if c.ClusterFarPercentile == nil {
		return 5
	}
	return *c.ClusterFarPercentile
}

// GetClusterOverlapTolerance returns the cluster_overlap_tolerance value or the default.
func (c *LinkingConfig) GetClusterOverlapTolerance() float64 {
	if c.ClusterOverlapTolerance == nil {
		return 0.05
	}
	return *c.ClusterOverlapTolerance
}

// GetMinTrackletLen returns the min_tracklet_len value or the default.
func (c *LinkingConfig) GetMinTrackletLen() int {
	if c.MinTrackletLen == nil {
		return 5
	}
	return *c.MinTrackletLen
}

// GetKeepAllTracklets returns the keep_all_tracklets value or the default.
func (c *LinkingConfig) GetKeepAllTracklets() bool {
	if c.KeepAllTracklets == nil {
		return false
	}
	return *c.KeepAllTracklets
}

// GetInterpolateMaxGap returns the interpolate_max_gap value or the default.
func (c *LinkingConfig) GetInterpolateMaxGap() int {
	if c.InterpolateMaxGap == nil {
		return 3
	}
	return *c.InterpolateMaxGap
}

// GetInterpolateMaxRatio returns the interpolate_max_ratio value or the default.
func (c *LinkingConfig) GetInterpolateMaxRatio() float64 {
	if c.InterpolateMaxRatio == nil {
		return 0.5
	}
	return *c.InterpolateMaxRatio
}

// GetWorkers returns the workers value or the default (0: one per CPU).
func (c *LinkingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetVerbosity returns the verbosity value or the default.
func (c *LinkingConfig) GetVerbosity() int {
	if c.Verbosity == nil {
		return 1
	}
	return *c.Verbosity
}
