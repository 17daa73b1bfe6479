package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrInvalidConfig is wrapped by every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Filter stage keys accepted in TuningConfig.Filters.
const (
	StageCluster               = "cluster"
	StageFacet                 = "facet"
	StageFacetRelation         = "facet_relation"
	StageAxialPair             = "axial_pair"
	StageAxialPairRelation     = "axial_pair_relation"
	StageSegmentTriple         = "segment_triple"
	StageSegmentTripleRelation = "segment_triple_relation"
	StageTrack                 = "track"
)

// Stages lists the filter stage keys in pipeline order.
var Stages = []string{
	StageCluster, StageFacet, StageFacetRelation,
	StageAxialPair, StageAxialPairRelation,
	StageSegmentTriple, StageSegmentTripleRelation,
	StageTrack,
}

// Track cleanup step names, in the order they are applied.
var CleanupSteps = []string{
	"remove_hits_after_cdc_wall",
	"remove_hits_if_small",
	"remove_hits_after_layer_break",
	"remove_hits_if_only_one_superlayer",
	"remove_hits_on_wrong_side",
	"remove_arc_length_holes",
}

// FilterSpec selects the scoring strategy of one stage.
type FilterSpec struct {
	Name   string             `json:"name" toml:"name" yaml:"name"`
	Params map[string]float64 `json:"params,omitempty" toml:"params,omitempty" yaml:"params,omitempty"`
	// File is the weights file of trained filters.
	File string `json:"file,omitempty" toml:"file,omitempty" yaml:"file,omitempty"`
	// Inner is the filter wrapped by the recording filter.
	Inner *FilterSpec `json:"inner,omitempty" toml:"inner,omitempty" yaml:"inner,omitempty"`
}

// TuningConfig represents the root configuration of the track finder.
// All fields are optional; the Get* accessors supply defaults.
type TuningConfig struct {
	// Hit preparation
	TDCOffset         *int     `json:"tdc_offset,omitempty" toml:"tdc_offset" yaml:"tdc_offset"`
	TDCBinWidth       *float64 `json:"tdc_bin_width,omitempty" toml:"tdc_bin_width" yaml:"tdc_bin_width"` // ns
	MinDriftTime      *float64 `json:"min_drift_time,omitempty" toml:"min_drift_time" yaml:"min_drift_time"`
	MaxDriftTime      *float64 `json:"max_drift_time,omitempty" toml:"max_drift_time" yaml:"max_drift_time"`
	MinADC            *int     `json:"min_adc,omitempty" toml:"min_adc" yaml:"min_adc"`
	DriftVelocity     *float64 `json:"drift_velocity,omitempty" toml:"drift_velocity" yaml:"drift_velocity"` // cm/ns
	DriftSigma        *float64 `json:"drift_sigma,omitempty" toml:"drift_sigma" yaml:"drift_sigma"`          // cm
	ASICMinHits       *int     `json:"asic_min_hits,omitempty" toml:"asic_min_hits" yaml:"asic_min_hits"`
	ASICMaxDeviation  *float64 `json:"asic_max_deviation,omitempty" toml:"asic_max_deviation" yaml:"asic_max_deviation"` // ns
	ASICMaxSignalHits *int     `json:"asic_max_signal_hits,omitempty" toml:"asic_max_signal_hits" yaml:"asic_max_signal_hits"`

	// Facets and automaton
	FacetRLMode        *string `json:"facet_rl_mode,omitempty" toml:"facet_rl_mode" yaml:"facet_rl_mode"`
	UseNBestCandidates *int    `json:"use_n_best_candidates,omitempty" toml:"use_n_best_candidates" yaml:"use_n_best_candidates"`
	MaxPasses          *int    `json:"max_passes,omitempty" toml:"max_passes" yaml:"max_passes"`

	// Segments and relations
	SegmentOrientation    *string `json:"segment_orientation,omitempty" toml:"segment_orientation" yaml:"segment_orientation"`
	MaxAxialSuperLayerGap *int    `json:"max_axial_superlayer_gap,omitempty" toml:"max_axial_superlayer_gap" yaml:"max_axial_superlayer_gap"`

	// Tracks
	TrackOrientation     *string  `json:"track_orientation,omitempty" toml:"track_orientation" yaml:"track_orientation"`
	SingleSegmentMinHits *int     `json:"single_segment_min_hits,omitempty" toml:"single_segment_min_hits" yaml:"single_segment_min_hits"`
	MinTrackHits         *int     `json:"min_track_hits,omitempty" toml:"min_track_hits" yaml:"min_track_hits"`
	MaxLayerBreak        *int     `json:"max_layer_break,omitempty" toml:"max_layer_break" yaml:"max_layer_break"`
	MaxArcLengthHole     *float64 `json:"max_arc_length_hole,omitempty" toml:"max_arc_length_hole" yaml:"max_arc_length_hole"`    // cm
	WrongSideTolerance   *float64 `json:"wrong_side_tolerance,omitempty" toml:"wrong_side_tolerance" yaml:"wrong_side_tolerance"` // cm
	TrackCleanupSteps    []string `json:"track_cleanup_steps,omitempty" toml:"track_cleanup_steps" yaml:"track_cleanup_steps"`
	DeleteRejected       *bool    `json:"delete_rejected,omitempty" toml:"delete_rejected" yaml:"delete_rejected"`

	// Legendre quadtree pass
	UseLegendre           *bool `json:"use_legendre,omitempty" toml:"use_legendre" yaml:"use_legendre"`
	QuadTreeLevel         *int  `json:"quad_tree_level,omitempty" toml:"quad_tree_level" yaml:"quad_tree_level"`
	MinimumHitsInQuadTree *int  `json:"minimum_hits_in_quad_tree,omitempty" toml:"minimum_hits_in_quad_tree" yaml:"minimum_hits_in_quad_tree"`

	// Combiner, merger and hit attacher
	CombinerMode              *string  `json:"combiner_mode,omitempty" toml:"combiner_mode" yaml:"combiner_mode"`
	CombinerMinSharedFraction *float64 `json:"combiner_min_shared_fraction,omitempty" toml:"combiner_min_shared_fraction" yaml:"combiner_min_shared_fraction"`
	MergeTracksInTheEnd       *bool    `json:"merge_tracks_in_the_end,omitempty" toml:"merge_tracks_in_the_end" yaml:"merge_tracks_in_the_end"`
	MergeMinProbability       *float64 `json:"merge_min_probability,omitempty" toml:"merge_min_probability" yaml:"merge_min_probability"`
	MergeMinHits              *int     `json:"merge_min_hits,omitempty" toml:"merge_min_hits" yaml:"merge_min_hits"`
	AppendUnusedHits          *bool    `json:"append_unused_hits,omitempty" toml:"append_unused_hits" yaml:"append_unused_hits"`
	MaxAppendDistance         *float64 `json:"max_append_distance,omitempty" toml:"max_append_distance" yaml:"max_append_distance"` // cm

	// Per-stage filter selection, keyed by stage name.
	Filters map[string]FilterSpec `json:"filters,omitempty" toml:"filters" yaml:"filters"`

	// Runtime
	LogLevel *string `json:"log_level,omitempty" toml:"log_level" yaml:"log_level"`
	Workers  *int    `json:"workers,omitempty" toml:"workers" yaml:"workers"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a .json, .toml, .yaml or .yml
// file. Unknown keys are rejected. Fields omitted from the file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .toml or .yaml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg, err := ParseTuningConfig(data, ext)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTuningConfig decodes config data in the format named by ext without
// validating it.
func ParseTuningConfig(data []byte, ext string) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config JSON: %v", ErrInvalidConfig, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse config TOML: %v", ErrInvalidConfig, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown TOML keys %v", ErrInvalidConfig, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config YAML: %v", ErrInvalidConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,             // from cmd/cdctrack/
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/cdc/pipeline/
		"../../../../" + DefaultConfigPath,    // from internal/cdc/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a copy of c with every field set in o taken from o.
// Filters are merged per stage.
func (c *TuningConfig) Merge(o *TuningConfig) (*TuningConfig, error) {
	// Round-trip both through JSON: the copy owns its pointers and only
	// fields set in o overwrite it.
	out := EmptyTuningConfig()
	for _, src := range []*TuningConfig{c, o} {
		if src == nil {
			continue
		}
		filters := out.Filters
		out.Filters = nil
		data, err := json.Marshal(src)
		if err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
		merged := make(map[string]FilterSpec, len(filters)+len(out.Filters))
		for k, v := range filters {
			merged[k] = v
		}
		for k, v := range out.Filters {
			merged[k] = v
		}
		out.Filters = nil
		if len(merged) > 0 {
			out.Filters = merged
		}
	}
	return out, nil
}

// GetTDCOffset returns the TDC count of zero drift time.
func (c *TuningConfig) GetTDCOffset() int {
	if c.TDCOffset == nil {
		return 4100 // default
	}
	return *c.TDCOffset
}

// GetTDCBinWidth returns the TDC bin width in ns.
func (c *TuningConfig) GetTDCBinWidth() float64 {
	if c.TDCBinWidth == nil {
		return 0.98 // default
	}
	return *c.TDCBinWidth
}

// GetMinDriftTime returns the earliest drift time of signal hits.
func (c *TuningConfig) GetMinDriftTime() float64 {
	if c.MinDriftTime == nil {
		return -20 // default
	}
	return *c.MinDriftTime
}

// GetMaxDriftTime returns the latest drift time of signal hits.
func (c *TuningConfig) GetMaxDriftTime() float64 {
	if c.MaxDriftTime == nil {
		return 500 // default
	}
	return *c.MaxDriftTime
}

func (c *TuningConfig) GetMinADC() int {
	if c.MinADC == nil {
		return 0 // default
	}
	return *c.MinADC
}

func (c *TuningConfig) GetDriftVelocity() float64 {
	if c.DriftVelocity == nil {
		return 0.004 // default
	}
	return *c.DriftVelocity
}

func (c *TuningConfig) GetDriftSigma() float64 {
	if c.DriftSigma == nil {
		return 0.012 // default
	}
	return *c.DriftSigma
}

func (c *TuningConfig) GetASICMinHits() int {
	if c.ASICMinHits == nil {
		return 4 // default
	}
	return *c.ASICMinHits
}

func (c *TuningConfig) GetASICMaxDeviation() float64 {
	if c.ASICMaxDeviation == nil {
		return 10 // default
	}
	return *c.ASICMaxDeviation
}

func (c *TuningConfig) GetASICMaxSignalHits() int {
	if c.ASICMaxSignalHits == nil {
		return 2 // default
	}
	return *c.ASICMaxSignalHits
}

// GetFacetRLMode returns "best" or "all".
func (c *TuningConfig) GetFacetRLMode() string {
	if c.FacetRLMode == nil || *c.FacetRLMode == "" {
		return "all" // default
	}
	return *c.FacetRLMode
}

// GetUseNBestCandidates returns the per-node relation limit, 0 for no limit.
func (c *TuningConfig) GetUseNBestCandidates() int {
	if c.UseNBestCandidates == nil {
		return 0 // default
	}
	return *c.UseNBestCandidates
}

// GetMaxPasses returns the multipass limit, 0 for no limit.
func (c *TuningConfig) GetMaxPasses() int {
	if c.MaxPasses == nil {
		return 0 // default
	}
	return *c.MaxPasses
}

func (c *TuningConfig) GetSegmentOrientation() string {
	if c.SegmentOrientation == nil || *c.SegmentOrientation == "" {
		return "outwards" // default
	}
	return *c.SegmentOrientation
}

func (c *TuningConfig) GetMaxAxialSuperLayerGap() int {
	if c.MaxAxialSuperLayerGap == nil {
		return 2 // default
	}
	return *c.MaxAxialSuperLayerGap
}

func (c *TuningConfig) GetTrackOrientation() string {
	if c.TrackOrientation == nil || *c.TrackOrientation == "" {
		return "outwards" // default
	}
	return *c.TrackOrientation
}

func (c *TuningConfig) GetSingleSegmentMinHits() int {
	if c.SingleSegmentMinHits == nil {
		return 7 // default
	}
	return *c.SingleSegmentMinHits
}

func (c *TuningConfig) GetMinTrackHits() int {
	if c.MinTrackHits == nil {
		return 7 // default
	}
	return *c.MinTrackHits
}

func (c *TuningConfig) GetMaxLayerBreak() int {
	if c.MaxLayerBreak == nil {
		return 2 // default
	}
	return *c.MaxLayerBreak
}

func (c *TuningConfig) GetMaxArcLengthHole() float64 {
	if c.MaxArcLengthHole == nil {
		return 20 // default
	}
	return *c.MaxArcLengthHole
}

func (c *TuningConfig) GetWrongSideTolerance() float64 {
	if c.WrongSideTolerance == nil {
		return 1 // default
	}
	return *c.WrongSideTolerance
}

// GetTrackCleanupSteps returns the enabled cleanup steps. A nil list
// enables every step; an empty list disables all of them.
func (c *TuningConfig) GetTrackCleanupSteps() []string {
	if c.TrackCleanupSteps == nil {
		return append([]string(nil), CleanupSteps...) // default
	}
	return c.TrackCleanupSteps
}

func (c *TuningConfig) GetDeleteRejected() bool {
	if c.DeleteRejected == nil {
		return true // default
	}
	return *c.DeleteRejected
}

func (c *TuningConfig) GetUseLegendre() bool {
	if c.UseLegendre == nil {
		return true // default
	}
	return *c.UseLegendre
}

func (c *TuningConfig) GetQuadTreeLevel() int {
	if c.QuadTreeLevel == nil {
		return 12 // default
	}
	return *c.QuadTreeLevel
}

func (c *TuningConfig) GetMinimumHitsInQuadTree() int {
	if c.MinimumHitsInQuadTree == nil {
		return 10 // default
	}
	return *c.MinimumHitsInQuadTree
}

func (c *TuningConfig) GetCombinerMode() string {
	if c.CombinerMode == nil || *c.CombinerMode == "" {
		return "automaton" // default
	}
	return *c.CombinerMode
}

func (c *TuningConfig) GetCombinerMinSharedFraction() float64 {
	if c.CombinerMinSharedFraction == nil {
		return 0.5 // default
	}
	return *c.CombinerMinSharedFraction
}

func (c *TuningConfig) GetMergeTracksInTheEnd() bool {
	if c.MergeTracksInTheEnd == nil {
		return true // default
	}
	return *c.MergeTracksInTheEnd
}

func (c *TuningConfig) GetMergeMinProbability() float64 {
	if c.MergeMinProbability == nil {
		return 0.001 // default
	}
	return *c.MergeMinProbability
}

func (c *TuningConfig) GetMergeMinHits() int {
	if c.MergeMinHits == nil {
		return 15 // default
	}
	return *c.MergeMinHits
}

func (c *TuningConfig) GetAppendUnusedHits() bool {
	if c.AppendUnusedHits == nil {
		return true // default
	}
	return *c.AppendUnusedHits
}

func (c *TuningConfig) GetMaxAppendDistance() float64 {
	if c.MaxAppendDistance == nil {
		return 0.3 // default
	}
	return *c.MaxAppendDistance
}

// GetFilter returns the filter selected for stage, or the built-in default.
func (c *TuningConfig) GetFilter(stage string) FilterSpec {
	if spec, ok := c.Filters[stage]; ok && spec.Name != "" {
		return spec
	}
	return FilterSpec{Name: defaultFilters[stage]}
}

var defaultFilters = map[string]string{
	StageCluster:               "all",
	StageFacet:                 "simple",
	StageFacetRelation:         "simple",
	StageAxialPair:             "simple",
	StageAxialPairRelation:     "simple",
	StageSegmentTriple:         "simple",
	StageSegmentTripleRelation: "simple",
	StageTrack:                 "size",
}

func (c *TuningConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info" // default
	}
	return *c.LogLevel
}

// GetWorkers returns the number of parallel event workers, 0 for one per CPU.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default
	}
	return *c.Workers
}

// FilterStages returns the configured stage keys in sorted order.
func (c *TuningConfig) FilterStages() []string {
	keys := make([]string, 0, len(c.Filters))
	for k := range c.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
