package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLinkingConfig(t *testing.T) {
	cfg := DefaultLinkingConfig()

	if cfg.MaxFramesMissed == nil || *cfg.MaxFramesMissed != 10 {
		t.Errorf("Expected MaxFramesMissed 10, got %v", cfg.MaxFramesMissed)
	}
	if cfg.MaxCostHeuristic == nil || *cfg.MaxCostHeuristic != HeuristicKnee {
		t.Errorf("Expected MaxCostHeuristic %q, got %v", HeuristicKnee, cfg.MaxCostHeuristic)
	}
	if cfg.MaxCost != nil {
		t.Errorf("Expected MaxCost unset so it is calibrated, got %v", *cfg.MaxCost)
	}
	if _, ok := cfg.GetMaxCost(); ok {
		t.Error("GetMaxCost() reported a configured value")
	}
	if cfg.GetMaxCostMissed() != nil {
		t.Error("GetMaxCostMissed() should be nil by default")
	}
	if _, ok := cfg.GetNMSMaxDist(); ok {
		t.Error("duplicate suppression should be disabled by default")
	}
	if cfg.GetKneeMinValue() != 0.2 {
		t.Errorf("GetKneeMinValue() = %f, want 0.2", cfg.GetKneeMinValue())
	}
	if cfg.GetKneeFallbackPercentile() != 98 {
		t.Errorf("GetKneeFallbackPercentile() = %f, want 98", cfg.GetKneeFallbackPercentile())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadLinkingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "linking.json")

	testJSON := `{
  "max_cost": 4.5,
  "max_cost_missed": [5, 6, 7],
  "max_frames_missed": 5,
  "max_cost_heuristic": "percentile",
  "min_conf_delete": 0.3,
  "keep_all_tracklets": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadLinkingConfig(configPath)
	if err != nil {
		t.Fatalf("LoadLinkingConfig failed: %v", err)
	}

	if v, ok := cfg.GetMaxCost(); !ok || v != 4.5 {
		t.Errorf("GetMaxCost() = %v, %v; want 4.5, true", v, ok)
	}
	missed := cfg.GetMaxCostMissed()
	if len(missed) != 3 || missed[2] != 7 {
		t.Errorf("GetMaxCostMissed() = %v, want [5 6 7]", missed)
	}
	missed[0] = 100
	if cfg.MaxCostMissed[0] != 5 {
		t.Error("GetMaxCostMissed() must return a copy")
	}
	if cfg.GetMaxFramesMissed() != 5 {
		t.Errorf("GetMaxFramesMissed() = %d, want 5", cfg.GetMaxFramesMissed())
	}
	if cfg.GetMaxCostHeuristic() != HeuristicPercentile {
		t.Errorf("GetMaxCostHeuristic() = %q", cfg.GetMaxCostHeuristic())
	}
	if !cfg.GetKeepAllTracklets() {
		t.Error("GetKeepAllTracklets() = false, want true")
	}

	// Omitted fields fall back to defaults.
	if cfg.GetMaxFramesDelete() != 10 {
		t.Errorf("GetMaxFramesDelete() = %d, want default 10", cfg.GetMaxFramesDelete())
	}
	if cfg.GetStrictMatchThreshold() != 2.0 {
		t.Errorf("GetStrictMatchThreshold() = %f, want default 2.0", cfg.GetStrictMatchThreshold())
	}
}

func TestLoadLinkingConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linking.toml")
	body := `max_cost = 7.5
max_cost_missed = [8.0, 9.0]
max_frames_missed = 4
max_cost_heuristic = "percentile"
keep_all_tracklets = true
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadLinkingConfig(path)
	if err != nil {
		t.Fatalf("LoadLinkingConfig failed: %v", err)
	}
	if v, ok := cfg.GetMaxCost(); !ok || v != 7.5 {
		t.Errorf("GetMaxCost() = %v, %v; want 7.5, true", v, ok)
	}
	if got := cfg.GetMaxCostMissed(); len(got) != 2 || got[1] != 9 {
		t.Errorf("GetMaxCostMissed() = %v", got)
	}
	if cfg.GetMaxFramesMissed() != 4 {
		t.Errorf("GetMaxFramesMissed() = %d, want 4", cfg.GetMaxFramesMissed())
	}
	if cfg.GetMaxCostHeuristic() != HeuristicPercentile {
		t.Errorf("GetMaxCostHeuristic() = %q", cfg.GetMaxCostHeuristic())
	}
	if !cfg.GetKeepAllTracklets() {
		t.Error("GetKeepAllTracklets() = false, want true")
	}
	if cfg.GetCostMissing() != DefaultLinkingConfig().GetCostMissing() {
		t.Error("unset keys should keep their defaults")
	}
}

func TestLoadLinkingConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "cfg.yaml", `{}`},
		{"bad json", "bad.json", `{"max_cost": `},
		{"bad heuristic", "h.json", `{"max_cost_heuristic": "median"}`},
		{"negative max cost", "mc.json", `{"max_cost": -1}`},
		{"bad missed curve", "mm.json", `{"max_cost_missed": [1, 0]}`},
		{"percentile range", "p.json", `{"max_cost_percentile": 120}`},
		{"overlap tolerance", "o.json", `{"cluster_overlap_tolerance": 2}`},
		{"bad toml", "bad.toml", `max_cost = `},
		{"unknown toml key", "u.toml", `max_costs = 5.0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadLinkingConfig(path); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}

	if _, err := LoadLinkingConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	def := DefaultLinkingConfig()

	if cfg.GetMaxFramesMissed() != def.GetMaxFramesMissed() {
		t.Errorf("defaults file max_frames_missed = %d, code default %d", cfg.GetMaxFramesMissed(), def.GetMaxFramesMissed())
	}
	if cfg.GetMaxCostHeuristic() != def.GetMaxCostHeuristic() {
		t.Errorf("defaults file heuristic = %q, code default %q", cfg.GetMaxCostHeuristic(), def.GetMaxCostHeuristic())
	}
	if cfg.GetClusterOverlapTolerance() != def.GetClusterOverlapTolerance() {
		t.Errorf("defaults file overlap tolerance = %f, code default %f", cfg.GetClusterOverlapTolerance(), def.GetClusterOverlapTolerance())
	}
}
