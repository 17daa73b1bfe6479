package filter

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Filter scores an object. NaN rejects it.
type Filter[T any] interface {
	Weight(obj T) float64
}

// Func adapts a function to a Filter.
type Func[T any] func(T) float64

func (f Func[T]) Weight(obj T) float64 { return f(obj) }

// Accepts reports whether w is an accepting weight.
func Accepts(w float64) bool { return !math.IsNaN(w) }

// Params are the numeric knobs of one filter.
type Params map[string]float64

// Get returns the named parameter or def.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Spec selects a filter by name.
type Spec struct {
	Name   string
	Params Params
	File   string // weights file for mva
	Inner  *Spec  // wrapped filter for recording
}

func (s Spec) String() string {
	if s.Inner != nil {
		return s.Name + "(" + s.Inner.String() + ")"
	}
	return s.Name
}

// Constructor builds a filter from its spec.
type Constructor[T any] func(spec Spec) (Filter[T], error)

// TruthFunc is the simulation oracle of a stage: signal reports whether the
// object belongs to one simulated track, known whether truth was available.
type TruthFunc[T any] func(obj T) (signal, known bool)

// Config describes the stage a factory builds filters for.
type Config[T any] struct {
	Stage string
	// Accept is the weight given to accepted objects by the generic filters.
	Accept func(T) float64
	Vars   VarSet[T]
	Truth  TruthFunc[T]
}

// Factory builds the filters of one stage by name.
type Factory[T any] struct {
	cfg       Config[T]
	ctors     map[string]Constructor[T]
	recorders RecorderSource
}

// NewFactory returns a factory offering the generic filters of cfg.
func NewFactory[T any](cfg Config[T]) *Factory[T] {
	if cfg.Accept == nil {
		cfg.Accept = func(T) float64 { return 1 }
	}
	f := &Factory[T]{cfg: cfg, ctors: map[string]Constructor[T]{}}
	f.Register("all", func(Spec) (Filter[T], error) { return Func[T](cfg.Accept), nil })
	f.Register("none", func(Spec) (Filter[T], error) { return Reject[T](), nil })
	if cfg.Truth != nil {
		f.Register("truth", func(Spec) (Filter[T], error) { return NewTruth(cfg.Truth, cfg.Accept), nil })
	}
	if len(cfg.Vars) > 0 {
		f.Register("mva", func(spec Spec) (Filter[T], error) {
			m, err := LoadLogisticModel(spec.File)
			if err != nil {
				return nil, err
			}
			mva, err := NewMVA(cfg.Vars, m, cfg.Accept)
			if err != nil {
				return nil, err
			}
			return mva, nil
		})
	}
	return f
}

// Register adds or replaces a named constructor.
func (f *Factory[T]) Register(name string, c Constructor[T]) *Factory[T] {
	f.ctors[name] = c
	return f
}

// WithRecorders sets the record sink used by recording filters.
func (f *Factory[T]) WithRecorders(src RecorderSource) *Factory[T] {
	f.recorders = src
	return f
}

// Stage returns the stage name.
func (f *Factory[T]) Stage() string { return f.cfg.Stage }

// Names returns the registered filter names in sorted order.
func (f *Factory[T]) Names() []string {
	names := make([]string, 0, len(f.ctors)+1)
	for n := range f.ctors {
		names = append(names, n)
	}
	if len(f.cfg.Vars) > 0 {
		names = append(names, "recording")
	}
	sort.Strings(names)
	return names
}

// Create builds the filter named by spec.
func (f *Factory[T]) Create(spec Spec) (Filter[T], error) {
	if spec.Name == "recording" && len(f.cfg.Vars) > 0 {
		return f.createRecording(spec)
	}
	c, ok := f.ctors[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w %q for stage %s (known: %s)", ErrUnknownFilter, spec.Name, f.cfg.Stage, strings.Join(f.Names(), ", "))
	}
	flt, err := c(spec)
	if err != nil {
		return nil, fmt.Errorf("stage %s filter %s: %w", f.cfg.Stage, spec.Name, err)
	}
	return flt, nil
}

func (f *Factory[T]) createRecording(spec Spec) (Filter[T], error) {
	if spec.Inner == nil {
		return nil, fmt.Errorf("stage %s: recording filter needs an inner filter", f.cfg.Stage)
	}
	if f.recorders == nil {
		return nil, fmt.Errorf("stage %s: %w", f.cfg.Stage, ErrNoRecorder)
	}
	inner, err := f.Create(*spec.Inner)
	if err != nil {
		return nil, err
	}
	rec, err := f.recorders.Recorder(f.cfg.Stage, f.cfg.Vars.Names())
	if err != nil {
		return nil, fmt.Errorf("stage %s: open recorder: %w", f.cfg.Stage, err)
	}
	return NewRecording(inner, f.cfg.Vars, f.cfg.Truth, rec), nil
}

// Reject returns a filter rejecting everything.
func Reject[T any]() Filter[T] {
	return Func[T](func(T) float64 { return math.NaN() })
}

// Truth accepts objects the oracle marks as signal.
type Truth[T any] struct {
	oracle TruthFunc[T]
	accept func(T) float64
}

// NewTruth returns a truth filter; unknown truth rejects.
func NewTruth[T any](oracle TruthFunc[T], accept func(T) float64) *Truth[T] {
	return &Truth[T]{oracle: oracle, accept: accept}
}

func (t *Truth[T]) Weight(obj T) float64 {
	signal, known := t.oracle(obj)
	if !known || !signal {
		return math.NaN()
	}
	return t.accept(obj)
}

// TruthValue encodes an oracle answer as 1 (signal), 0 (background) or NaN.
func TruthValue[T any](oracle TruthFunc[T], obj T) float64 {
	if oracle == nil {
		return math.NaN()
	}
	signal, known := oracle(obj)
	switch {
	case !known:
		return math.NaN()
	case signal:
		return 1
	}
	return 0
}
