package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// LogisticModel is a trained linear classifier p = σ(bias + Σ w·x).
type LogisticModel struct {
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
	Cut     float64            `json:"cut"`
}

// LoadLogisticModel reads a model from a JSON weights file.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no weights file", ErrBadModel)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadModel, path, err)
	}
	if m.Cut < 0 || m.Cut > 1 {
		return nil, fmt.Errorf("%w: cut %g outside [0, 1]", ErrBadModel, m.Cut)
	}
	return &m, nil
}

// Save writes the model as indented JSON.
func (m *LogisticModel) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Bind orders the weights by names. Every weight must name a variable;
// variables without a weight get zero.
func (m *LogisticModel) Bind(names []string) ([]float64, error) {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	w := make([]float64, len(names))
	for name, v := range m.Weights {
		i, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("%w: weight for unknown variable %q", ErrBadModel, name)
		}
		w[i] = v
	}
	return w, nil
}

// Probability evaluates the model with bound weights w.
func (m *LogisticModel) Probability(w, x []float64) float64 {
	return sigmoid(m.Bias + floats.Dot(w, x))
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// MVA applies a logistic model to a stage's variables.
type MVA[T any] struct {
	vars   VarSet[T]
	model  *LogisticModel
	w      []float64
	accept func(T) float64
}

// NewMVA binds model to vars.
func NewMVA[T any](vars VarSet[T], model *LogisticModel, accept func(T) float64) (*MVA[T], error) {
	w, err := model.Bind(vars.Names())
	if err != nil {
		return nil, err
	}
	return &MVA[T]{vars: vars, model: model, w: w, accept: accept}, nil
}

// Probability returns the classifier output for obj.
func (m *MVA[T]) Probability(obj T) float64 {
	x := m.vars.Values(obj)
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.NaN()
		}
	}
	return m.model.Probability(m.w, x)
}

// Weight accepts objects whose probability reaches the model's cut with
// the stage's default weight.
func (m *MVA[T]) Weight(obj T) float64 {
	p := m.Probability(obj)
	if math.IsNaN(p) || p < m.model.Cut {
		return math.NaN()
	}
	return m.accept(obj)
}

// TrainOptions tune Train.
type TrainOptions struct {
	L2  float64 // ridge penalty on the weights (not the bias)
	Cut float64 // probability cut stored in the model
}

// Train fits a logistic model to labelled rows by minimising the
// L2-regularised log loss with BFGS. Rows with unknown truth or non-finite
// values are skipped; variables are standardised during the fit and the
// returned weights apply to raw values.
func Train(names []string, records []Record, opts TrainOptions) (*LogisticModel, error) {
	var (
		xs [][]float64
		ys []float64
	)
	for _, r := range records {
		if math.IsNaN(r.Truth) || len(r.Values) != len(names) || !finite(r.Values) {
			continue
		}
		xs = append(xs, r.Values)
		ys = append(ys, r.Truth)
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("%w: no labelled records", ErrBadModel)
	}
	if floats.Sum(ys) == 0 || floats.Sum(ys) == float64(len(ys)) {
		return nil, fmt.Errorf("%w: records contain a single class", ErrBadModel)
	}

	k := len(names)
	mean, scale := standardisation(xs, k)
	z := make([][]float64, len(xs))
	for i, x := range xs {
		z[i] = make([]float64, k)
		for j := range x {
			z[i][j] = (x[j] - mean[j]) / scale[j]
		}
	}

	n := float64(len(z))
	loss := func(p []float64) float64 {
		sum := 0.0
		for i, x := range z {
			s := p[k] + floats.Dot(p[:k], x)
			// log(1+exp(s)) - y*s, computed stably
			sum += math.Max(s, 0) + math.Log1p(math.Exp(-math.Abs(s))) - ys[i]*s
		}
		return sum/n + 0.5*opts.L2*floats.Dot(p[:k], p[:k])
	}
	grad := func(g, p []float64) {
		for j := range g {
			g[j] = 0
		}
		for i, x := range z {
			d := sigmoid(p[k]+floats.Dot(p[:k], x)) - ys[i]
			floats.AddScaled(g[:k], d/n, x)
			g[k] += d / n
		}
		floats.AddScaled(g[:k], opts.L2, p[:k])
	}

	res, err := optimize.Minimize(optimize.Problem{Func: loss, Grad: grad}, make([]float64, k+1), nil, &optimize.BFGS{})
	if err != nil && res == nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	m := &LogisticModel{Bias: res.X[k], Weights: make(map[string]float64, k), Cut: opts.Cut}
	for j, name := range names {
		w := res.X[j] / scale[j]
		m.Weights[name] = w
		m.Bias -= w * mean[j]
	}
	return m, nil
}

func standardisation(xs [][]float64, k int) (mean, scale []float64) {
	mean = make([]float64, k)
	scale = make([]float64, k)
	col := make([]float64, len(xs))
	for j := 0; j < k; j++ {
		for i, x := range xs {
			col[i] = x[j]
		}
		mean[j], scale[j] = stat.MeanStdDev(col, nil)
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}
	return mean, scale
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
