package automaton

import (
	"math"
	"sort"
)

// Path is one extracted chain of nodes with its total weight.
type Path[T any] struct {
	Nodes  []T
	Weight float64
}

// PathStats summarises a multipass extraction.
type PathStats struct {
	Passes       int
	MaxRounds    int
	CyclesBroken int
	Skipped      int // paths extracted but shorter than the minimum length
}

// MultipassCellularPathFinder repeatedly runs the automaton and removes the
// best path until no path of sufficient weight remains. Nodes of an
// extracted path are flagged taken; nodes implementing TakenForwarder pass
// the flag on to their items and nodes implementing MaskReceiver are then
// given the chance to mask themselves.
type MultipassCellularPathFinder[T NodePtr] struct {
	MinState      float64 // paths lighter than this stop the extraction
	MinPathLength int     // shorter paths are consumed but not returned
	MaxPasses     int     // 0 means until exhaustion

	ca CellularAutomaton[T]
}

// NewMultipassCellularPathFinder returns a finder that extracts every path.
func NewMultipassCellularPathFinder[T NodePtr]() *MultipassCellularPathFinder[T] {
	return &MultipassCellularPathFinder[T]{MinState: math.Inf(-1), MinPathLength: 1}
}

// Apply extracts paths in order of decreasing weight. Every pass takes at
// least one node, so the number of passes is bounded by len(nodes).
// Without a single valid relation there is nothing to follow and the
// result is empty.
func (f *MultipassCellularPathFinder[T]) Apply(nodes []T, relations []Relation[T]) ([]Path[T], PathStats) {
	var (
		paths []Path[T]
		stats PathStats
	)
	for f.MaxPasses <= 0 || stats.Passes < f.MaxPasses {
		run := f.ca.Apply(nodes, relations)
		stats.Passes++
		stats.CyclesBroken += run.CyclesBroken
		if run.Rounds > stats.MaxRounds {
			stats.MaxRounds = run.Rounds
		}
		if stats.Passes == 1 && run.Edges == 0 {
			break
		}

		end, ok := BestEnd(nodes)
		if !ok {
			break
		}
		weight := nodes[end].AutomatonCell().State
		if weight < f.MinState {
			break
		}
		path := TracePath(nodes, end)
		f.take(nodes, path)

		if len(path) < f.MinPathLength {
			stats.Skipped++
			continue
		}
		paths = append(paths, Path[T]{Nodes: path, Weight: weight})
	}
	return paths, stats
}

func (f *MultipassCellularPathFinder[T]) take(nodes, path []T) {
	for _, n := range path {
		n.AutomatonCell().SetFlag(FlagTaken)
		if fw, ok := any(n).(TakenForwarder); ok {
			fw.ForwardTakenFlag()
		}
	}
	for _, n := range nodes {
		if n.AutomatonCell().IsTaken() {
			continue
		}
		if mr, ok := any(n).(MaskReceiver); ok {
			mr.ReceiveMaskedFlag()
		}
	}
}

// WeightFunc scores a candidate relation; NaN rejects it.
type WeightFunc[T any] func(from, to T) float64

// BuildRelations scores every candidate successor returned by next and
// keeps the accepted relations. When nBest is positive only the nBest
// heaviest relations of each source node are kept; ties keep candidate
// order.
func BuildRelations[T any](nodes []T, next func(T) []T, weight WeightFunc[T], nBest int) []Relation[T] {
	var rels []Relation[T]
	for _, from := range nodes {
		var local []Relation[T]
		for _, to := range next(from) {
			w := weight(from, to)
			if math.IsNaN(w) {
				continue
			}
			local = append(local, Relation[T]{From: from, To: to, Weight: w})
		}
		if nBest > 0 && len(local) > nBest {
			sort.SliceStable(local, func(i, j int) bool { return local[i].Weight > local[j].Weight })
			local = local[:nBest]
		}
		rels = append(rels, local...)
	}
	return rels
}
