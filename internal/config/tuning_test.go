package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetFacetRLMode(); got != "all" {
		t.Errorf("GetFacetRLMode() = %q, want all", got)
	}
	if got := cfg.GetMinTrackHits(); got != 7 {
		t.Errorf("GetMinTrackHits() = %d, want 7", got)
	}
	if got := cfg.GetSegmentOrientation(); got != "outwards" {
		t.Errorf("GetSegmentOrientation() = %q, want outwards", got)
	}
	if got := cfg.GetTrackCleanupSteps(); len(got) != len(CleanupSteps) {
		t.Errorf("GetTrackCleanupSteps() = %v, want all steps", got)
	}
	if got := cfg.GetFilter(StageTrack); got.Name != "size" {
		t.Errorf("GetFilter(track) = %+v, want size", got)
	}
	if !cfg.GetDeleteRejected() {
		t.Errorf("GetDeleteRejected() = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.QuadTreeLevel == nil || *cfg.QuadTreeLevel != 12 {
		t.Errorf("Expected QuadTreeLevel 12, got %v", cfg.QuadTreeLevel)
	}
	if cfg.MinimumHitsInQuadTree == nil || *cfg.MinimumHitsInQuadTree != 10 {
		t.Errorf("Expected MinimumHitsInQuadTree 10, got %v", cfg.MinimumHitsInQuadTree)
	}
	if got := cfg.GetFilter(StageFacet); got.Name != "simple" || got.Params["max_kink"] == 0 {
		t.Errorf("facet filter = %+v, want simple with max_kink", got)
	}

	// The defaults file and the Get* fallbacks must agree.
	empty := EmptyTuningConfig().Resolve()
	loaded := cfg.Resolve()
	if empty.TDCOffset != loaded.TDCOffset || empty.MinTrackHits != loaded.MinTrackHits ||
		empty.MaxAppendDistance != loaded.MaxAppendDistance || empty.CombinerMode != loaded.CombinerMode {
		t.Errorf("defaults file drifted from Get* defaults:\n%+v\n%+v", empty, loaded)
	}
}

func TestLoadTuningConfigFormats(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"c.json", `{"quad_tree_level": 8, "segment_orientation": "symmetric", "filters": {"facet": {"name": "all"}}}`},
		{"c.toml", "quad_tree_level = 8\nsegment_orientation = \"symmetric\"\n[filters.facet]\nname = \"all\"\n"},
		{"c.yaml", "quad_tree_level: 8\nsegment_orientation: symmetric\nfilters:\n  facet:\n    name: all\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadTuningConfig(writeConfig(t, tc.name, tc.body))
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			if cfg.GetQuadTreeLevel() != 8 {
				t.Errorf("GetQuadTreeLevel() = %d, want 8", cfg.GetQuadTreeLevel())
			}
			if cfg.GetSegmentOrientation() != "symmetric" {
				t.Errorf("GetSegmentOrientation() = %q, want symmetric", cfg.GetSegmentOrientation())
			}
			if cfg.GetFilter(StageFacet).Name != "all" {
				t.Errorf("facet filter = %+v, want all", cfg.GetFilter(StageFacet))
			}
			// Unset fields fall back to defaults.
			if cfg.GetMinTrackHits() != 7 {
				t.Errorf("GetMinTrackHits() = %d, want 7", cfg.GetMinTrackHits())
			}
		})
	}
}

func TestLoadTuningConfigRejects(t *testing.T) {
	cases := []struct {
		name, file, body, want string
	}{
		{"bad orientation", "c.json", `{"segment_orientation": "sideways"}`, "segment_orientation"},
		{"bad track orientation", "c.yaml", "track_orientation: up\n", "track_orientation"},
		{"unknown key", "c.json", `{"quadtree_level": 3}`, "quadtree_level"},
		{"unknown toml key", "c.toml", "quadtree_level = 3\n", "quadtree_level"},
		{"unknown stage", "c.json", `{"filters": {"facets": {"name": "all"}}}`, "facets"},
		{"bad cleanup step", "c.json", `{"track_cleanup_steps": ["remove_everything"]}`, "remove_everything"},
		{"recording without inner", "c.json", `{"filters": {"facet": {"name": "recording"}}}`, "inner"},
		{"mva without file", "c.json", `{"filters": {"cluster": {"name": "mva"}}}`, "weights file"},
		{"inverted drift window", "c.json", `{"min_drift_time": 10, "max_drift_time": 5}`, "max_drift_time"},
		{"gap", "c.json", `{"max_axial_superlayer_gap": 3}`, "max_axial_superlayer_gap"},
		{"fraction", "c.json", `{"combiner_min_shared_fraction": 1.5}`, "combiner_min_shared_fraction"},
		{"malformed", "c.json", `{"quad_tree_level": `, "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeConfig(t, tc.file, tc.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadTuningConfigRejectsUnknownExtension(t *testing.T) {
	_, err := LoadTuningConfig(writeConfig(t, "c.ini", "x=1"))
	if err == nil || !strings.Contains(err.Error(), "extension") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	big := `{"log_level": "info"` + strings.Repeat(" ", 1024*1024) + `}`
	_, err := LoadTuningConfig(writeConfig(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := MustLoadDefaultConfig()
	override := &TuningConfig{
		MinTrackHits: ptrInt(5),
		UseLegendre:  ptrBool(false),
		Filters:      map[string]FilterSpec{StageCluster: {Name: "cuts", Params: map[string]float64{"min_size": 3}}},
	}

	merged, err := base.Merge(override)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.GetMinTrackHits() != 5 {
		t.Errorf("GetMinTrackHits() = %d, want 5", merged.GetMinTrackHits())
	}
	if merged.GetUseLegendre() {
		t.Error("GetUseLegendre() = true, want false")
	}
	if merged.GetFilter(StageCluster).Name != "cuts" {
		t.Errorf("cluster filter = %+v, want cuts", merged.GetFilter(StageCluster))
	}
	if merged.GetFilter(StageFacet).Name != "simple" {
		t.Errorf("facet filter lost in merge: %+v", merged.GetFilter(StageFacet))
	}
	if merged.GetQuadTreeLevel() != 12 {
		t.Errorf("GetQuadTreeLevel() = %d, want 12", merged.GetQuadTreeLevel())
	}
	if base.GetMinTrackHits() != 7 {
		t.Error("Merge modified the receiver")
	}
}

func TestValidateRecordingFilter(t *testing.T) {
	cfg := &TuningConfig{Filters: map[string]FilterSpec{
		StageFacet: {Name: "recording", Inner: &FilterSpec{Name: "simple"}},
	}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("recording filter should validate: %v", err)
	}

	cfg.Filters[StageFacet] = FilterSpec{Name: "recording", Inner: &FilterSpec{Name: "recording", Inner: &FilterSpec{Name: "all"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("nested recording filters should be rejected")
	}

	cfg = &TuningConfig{LogLevel: ptrString("loud"), MaxAppendDistance: ptrFloat64(-1)}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "max_append_distance") {
		t.Errorf("expected log_level and max_append_distance errors, got %v", err)
	}
}
