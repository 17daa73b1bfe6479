package filter

// Var is one named variable extracted from an object.
type Var[T any] struct {
	Name    string
	Extract func(T) float64
}

// VarSet is an ordered list of variables. The order is the column order of
// recorded rows and classifier weights.
type VarSet[T any] []Var[T]

// Names returns the variable names in order.
func (vs VarSet[T]) Names() []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}

// Values extracts all variables of obj in order.
func (vs VarSet[T]) Values(obj T) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Extract(obj)
	}
	return out
}

// Map extracts all variables of obj keyed by name.
func (vs VarSet[T]) Map(obj T) map[string]float64 {
	out := make(map[string]float64, len(vs))
	for _, v := range vs {
		out[v.Name] = v.Extract(obj)
	}
	return out
}
