package filter

import (
	"sync"
)

// Record is one row written by a recording filter.
type Record struct {
	Values []float64 // in VarSet order
	Truth  float64   // 1 signal, 0 background, NaN unknown
	Weight float64   // weight returned by the wrapped filter
}

// Recorder stores records of one stage.
type Recorder interface {
	Record(r Record) error
}

// RecorderSource opens the recorder of a stage with the given columns.
type RecorderSource interface {
	Recorder(stage string, names []string) (Recorder, error)
}

// Recording wraps a filter and stores every decision with its inputs.
type Recording[T any] struct {
	inner Filter[T]
	vars  VarSet[T]
	truth TruthFunc[T]
	rec   Recorder

	errOnce sync.Once
}

// NewRecording returns a recording wrapper around inner.
func NewRecording[T any](inner Filter[T], vars VarSet[T], truth TruthFunc[T], rec Recorder) *Recording[T] {
	return &Recording[T]{inner: inner, vars: vars, truth: truth, rec: rec}
}

// Weight returns the inner weight unchanged. Write failures are logged once
// and otherwise ignored.
func (r *Recording[T]) Weight(obj T) float64 {
	w := r.inner.Weight(obj)
	row := Record{Values: r.vars.Values(obj), Truth: TruthValue(r.truth, obj), Weight: w}
	if err := r.rec.Record(row); err != nil {
		r.errOnce.Do(func() { opsf("recording failed, further errors suppressed: %v", err) })
	}
	return w
}

// MemoryRecorder keeps records in memory. It is safe for concurrent use.
type MemoryRecorder struct {
	mu      sync.Mutex
	Names   []string
	Records []Record
}

func (m *MemoryRecorder) Record(r Record) error {
	m.mu.Lock()
	m.Records = append(m.Records, r)
	m.mu.Unlock()
	return nil
}

// MemorySource hands out one MemoryRecorder per stage.
type MemorySource struct {
	mu     sync.Mutex
	Stages map[string]*MemoryRecorder
}

func (s *MemorySource) Recorder(stage string, names []string) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stages == nil {
		s.Stages = map[string]*MemoryRecorder{}
	}
	r, ok := s.Stages[stage]
	if !ok {
		r = &MemoryRecorder{Names: names}
		s.Stages[stage] = r
	}
	return r, nil
}
