package pipeline

import (
	"fmt"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/config"
)

// Config is the fully defaulted tuning of one run.
type Config = config.Resolved

// ConfigFromTuning validates c and resolves its defaults.
func ConfigFromTuning(c *config.TuningConfig) (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c.Resolve(), nil
}

// DefaultConfig returns the configuration of the defaults file. It panics
// when the file cannot be found, so it is meant for tests and tools.
func DefaultConfig() Config {
	return config.MustLoadDefaultConfig().Resolve()
}

// NewGeometry builds the default chamber with the drift relation of cfg.
func NewGeometry(cfg Config) (*l1wires.Service, error) {
	return l1wires.NewService(l1wires.DefaultTopologyParams(), cfg.DriftVelocity, cfg.DriftSigma)
}

// NewPreparer returns the hit preparer of cfg, for tools that write hit
// records the pipeline will read back.
func NewPreparer(geo *l1wires.Service, cfg Config) *l2hits.Preparer {
	return l2hits.NewPreparer(geo, preparerConfig(cfg))
}

func preparerConfig(cfg Config) l2hits.PreparerConfig {
	return l2hits.PreparerConfig{
		TDCOffset:    cfg.TDCOffset,
		TDCBinWidth:  cfg.TDCBinWidth,
		MinDriftTime: cfg.MinDriftTime,
		MaxDriftTime: cfg.MaxDriftTime,
		MinADC:       cfg.MinADC,
	}
}

func asicDetector(cfg Config) l2hits.AsicBackgroundDetector {
	return l2hits.AsicBackgroundDetector{
		MinHits:       cfg.ASICMinHits,
		MaxDeviation:  cfg.ASICMaxDeviation,
		MaxSignalHits: cfg.ASICMaxSignalHits,
	}
}

func filterSpec(s config.FilterSpec) filter.Spec {
	out := filter.Spec{Name: s.Name, Params: filter.Params(s.Params), File: s.File}
	if s.Inner != nil {
		inner := filterSpec(*s.Inner)
		out.Inner = &inner
	}
	return out
}

// createFilter builds the filter configured for stage.
func createFilter[T any](f *filter.Factory[T], cfg Config, stage string, rec filter.RecorderSource) (filter.Filter[T], error) {
	if rec != nil {
		f.WithRecorders(rec)
	}
	spec, ok := cfg.Filters[stage]
	if !ok {
		spec = config.EmptyTuningConfig().GetFilter(stage)
	}
	flt, err := f.Create(filterSpec(spec))
	if err != nil {
		return nil, fmt.Errorf("%s filter: %w", stage, err)
	}
	return flt, nil
}

// trackFilterSpec fills in the size filter's minimum from min_track_hits.
func trackFilterSpec(cfg Config) Config {
	spec := cfg.Filters[config.StageTrack]
	target := &spec
	for target.Name == "recording" && target.Inner != nil {
		inner := *target.Inner
		target.Inner = &inner
		target = &inner
	}
	if target.Name != "size" {
		return cfg
	}
	if _, ok := target.Params["min_hits"]; ok {
		return cfg
	}
	params := make(map[string]float64, len(target.Params)+1)
	for k, v := range target.Params {
		params[k] = v
	}
	params["min_hits"] = float64(cfg.MinTrackHits)
	target.Params = params

	filters := make(map[string]config.FilterSpec, len(cfg.Filters))
	for k, v := range cfg.Filters {
		filters[k] = v
	}
	filters[config.StageTrack] = spec
	cfg.Filters = filters
	return cfg
}
