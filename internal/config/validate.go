package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Resolved is the fully defaulted view of a TuningConfig. It is what the
// pipeline consumes and what Validate checks.
type Resolved struct {
	TDCOffset         int     `json:"tdc_offset" validate:"gte=0"`
	TDCBinWidth       float64 `json:"tdc_bin_width" validate:"gt=0"`
	MinDriftTime      float64 `json:"min_drift_time"`
	MaxDriftTime      float64 `json:"max_drift_time" validate:"gtfield=MinDriftTime"`
	MinADC            int     `json:"min_adc" validate:"gte=0"`
	DriftVelocity     float64 `json:"drift_velocity" validate:"gt=0"`
	DriftSigma        float64 `json:"drift_sigma" validate:"gt=0"`
	ASICMinHits       int     `json:"asic_min_hits" validate:"gte=1"`
	ASICMaxDeviation  float64 `json:"asic_max_deviation" validate:"gte=0"`
	ASICMaxSignalHits int     `json:"asic_max_signal_hits" validate:"gte=0"`

	FacetRLMode        string `json:"facet_rl_mode" validate:"oneof=best all"`
	UseNBestCandidates int    `json:"use_n_best_candidates" validate:"gte=0"`
	MaxPasses          int    `json:"max_passes" validate:"gte=0"`

	SegmentOrientation    string `json:"segment_orientation" validate:"oneof=none outwards downwards symmetric curling"`
	MaxAxialSuperLayerGap int    `json:"max_axial_superlayer_gap" validate:"oneof=2 4"`

	TrackOrientation     string   `json:"track_orientation" validate:"oneof=none outwards downwards symmetric curling"`
	SingleSegmentMinHits int      `json:"single_segment_min_hits" validate:"gte=0"`
	MinTrackHits         int      `json:"min_track_hits" validate:"gte=1"`
	MaxLayerBreak        int      `json:"max_layer_break" validate:"gte=1"`
	MaxArcLengthHole     float64  `json:"max_arc_length_hole" validate:"gt=0"`
	WrongSideTolerance   float64  `json:"wrong_side_tolerance" validate:"gte=0"`
	TrackCleanupSteps    []string `json:"track_cleanup_steps" validate:"dive,cleanupstep"`
	DeleteRejected       bool     `json:"delete_rejected"`

	UseLegendre           bool `json:"use_legendre"`
	QuadTreeLevel         int  `json:"quad_tree_level" validate:"gte=1,lte=20"`
	MinimumHitsInQuadTree int  `json:"minimum_hits_in_quad_tree" validate:"gte=3"`

	CombinerMode              string  `json:"combiner_mode" validate:"oneof=automaton hungarian"`
	CombinerMinSharedFraction float64 `json:"combiner_min_shared_fraction" validate:"gt=0,lte=1"`
	MergeTracksInTheEnd       bool    `json:"merge_tracks_in_the_end"`
	MergeMinProbability       float64 `json:"merge_min_probability" validate:"gte=0,lte=1"`
	MergeMinHits              int     `json:"merge_min_hits" validate:"gte=0"`
	AppendUnusedHits          bool    `json:"append_unused_hits"`
	MaxAppendDistance         float64 `json:"max_append_distance" validate:"gte=0"`

	Filters map[string]FilterSpec `json:"filters" validate:"dive,keys,stage,endkeys"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`
	Workers  int    `json:"workers" validate:"gte=0"`
}

// Resolve returns the defaulted view of c. Every filter stage is present.
func (c *TuningConfig) Resolve() Resolved {
	filters := make(map[string]FilterSpec, len(Stages)+len(c.Filters))
	for k, v := range c.Filters {
		filters[k] = v
	}
	for _, s := range Stages {
		filters[s] = c.GetFilter(s)
	}
	return Resolved{
		TDCOffset:                 c.GetTDCOffset(),
		TDCBinWidth:               c.GetTDCBinWidth(),
		MinDriftTime:              c.GetMinDriftTime(),
		MaxDriftTime:              c.GetMaxDriftTime(),
		MinADC:                    c.GetMinADC(),
		DriftVelocity:             c.GetDriftVelocity(),
		DriftSigma:                c.GetDriftSigma(),
		ASICMinHits:               c.GetASICMinHits(),
		ASICMaxDeviation:          c.GetASICMaxDeviation(),
		ASICMaxSignalHits:         c.GetASICMaxSignalHits(),
		FacetRLMode:               c.GetFacetRLMode(),
		UseNBestCandidates:        c.GetUseNBestCandidates(),
		MaxPasses:                 c.GetMaxPasses(),
		SegmentOrientation:        c.GetSegmentOrientation(),
		MaxAxialSuperLayerGap:     c.GetMaxAxialSuperLayerGap(),
		TrackOrientation:          c.GetTrackOrientation(),
		SingleSegmentMinHits:      c.GetSingleSegmentMinHits(),
		MinTrackHits:              c.GetMinTrackHits(),
		MaxLayerBreak:             c.GetMaxLayerBreak(),
		MaxArcLengthHole:          c.GetMaxArcLengthHole(),
		WrongSideTolerance:        c.GetWrongSideTolerance(),
		TrackCleanupSteps:         c.GetTrackCleanupSteps(),
		DeleteRejected:            c.GetDeleteRejected(),
		UseLegendre:               c.GetUseLegendre(),
		QuadTreeLevel:             c.GetQuadTreeLevel(),
		MinimumHitsInQuadTree:     c.GetMinimumHitsInQuadTree(),
		CombinerMode:              c.GetCombinerMode(),
		CombinerMinSharedFraction: c.GetCombinerMinSharedFraction(),
		MergeTracksInTheEnd:       c.GetMergeTracksInTheEnd(),
		MergeMinProbability:       c.GetMergeMinProbability(),
		MergeMinHits:              c.GetMergeMinHits(),
		AppendUnusedHits:          c.GetAppendUnusedHits(),
		MaxAppendDistance:         c.GetMaxAppendDistance(),
		Filters:                   filters,
		LogLevel:                  c.GetLogLevel(),
		Workers:                   c.GetWorkers(),
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("cleanupstep", func(fl validator.FieldLevel) bool {
			return contains(CleanupSteps, fl.Field().String())
		})
		_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
			return contains(Stages, fl.Field().String())
		})
		validate = v
	})
	return validate
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Validate checks that the configuration values are valid. Errors wrap
// ErrInvalidConfig and name the offending key.
func (c *TuningConfig) Validate() error {
	r := c.Resolve()
	if err := structValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for stage, spec := range r.Filters {
		if err := validateFilterSpec(spec, 0); err != nil {
			return fmt.Errorf("%w: filters.%s: %v", ErrInvalidConfig, stage, err)
		}
	}
	return nil
}

func validateFilterSpec(spec FilterSpec, depth int) error {
	if spec.Name == "" {
		return fmt.Errorf("filter name is empty")
	}
	if spec.Name == "recording" {
		if spec.Inner == nil {
			return fmt.Errorf("recording filter needs an inner filter")
		}
		if depth > 0 {
			return fmt.Errorf("recording filters cannot be nested")
		}
		return validateFilterSpec(*spec.Inner, depth+1)
	}
	if spec.Name == "mva" && spec.File == "" {
		return fmt.Errorf("mva filter needs a weights file")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "cleanupstep":
		return fmt.Sprintf("%s: unknown cleanup step %q (known: %s)", field, fmt.Sprint(fe.Value()), strings.Join(CleanupSteps, ", "))
	case "stage":
		return fmt.Sprintf("%s: unknown filter stage %q (known: %s)", field, fmt.Sprint(fe.Value()), strings.Join(Stages, ", "))
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
