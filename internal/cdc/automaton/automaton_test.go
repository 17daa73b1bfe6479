package automaton

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	cell Cell
	name string
}

func (n *item) AutomatonCell() *Cell { return &n.cell }

type bundle struct {
	item
	shared []*item
}

func (b *bundle) ForwardTakenFlag() {
	for _, s := range b.shared {
		s.cell.SetFlag(FlagTaken)
	}
}

func (b *bundle) ReceiveMaskedFlag() {
	for _, s := range b.shared {
		if s.cell.IsTaken() {
			b.cell.SetFlag(FlagMasked)
			return
		}
	}
}

func newItems(weights ...float64) []*item {
	out := make([]*item, len(weights))
	for i, w := range weights {
		out[i] = &item{cell: NewCell(w), name: string(rune('a' + i))}
	}
	return out
}

func rel(from, to *item, w float64) Relation[*item] {
	return Relation[*item]{From: from, To: to, Weight: w}
}

func names(path []*item) string {
	s := ""
	for _, n := range path {
		s += n.name
	}
	return s
}

func TestStateIsPathWeight(t *testing.T) {
	n := newItems(3, 3, 3, 3)
	rels := []Relation[*item]{
		rel(n[0], n[1], -2),
		rel(n[1], n[2], -2),
		rel(n[2], n[3], -2),
	}
	var ca CellularAutomaton[*item]
	stats := ca.Apply(n, rels)

	assert.Equal(t, 3.0, n[0].cell.State)
	assert.Equal(t, 4.0, n[1].cell.State)
	assert.Equal(t, 6.0, n[3].cell.State)
	assert.Equal(t, 4, n[3].cell.PathLength())
	assert.True(t, n[0].cell.HasFlag(FlagStart))
	assert.False(t, n[3].cell.HasFlag(FlagStart))
	assert.LessOrEqual(t, stats.Rounds, len(n))
	assert.Equal(t, 4, stats.Assigned)

	end, ok := BestEnd(n)
	require.True(t, ok)
	assert.Equal(t, "abcd", names(TracePath(n, end)))
}

func TestNegativeContinuationIsDropped(t *testing.T) {
	n := newItems(1, 1)
	var ca CellularAutomaton[*item]
	ca.Apply(n, []Relation[*item]{rel(n[0], n[1], -5)})
	assert.Equal(t, 1.0, n[1].cell.State)
	assert.True(t, n[1].cell.HasFlag(FlagStart))
}

func TestExcludedNodes(t *testing.T) {
	n := newItems(1, math.NaN(), 1)
	n[2].cell.SetFlag(FlagMasked)
	var ca CellularAutomaton[*item]
	stats := ca.Apply(n, []Relation[*item]{rel(n[0], n[1], 1), rel(n[0], n[2], 1), rel(n[0], n[0], 5)})

	assert.Equal(t, 1.0, n[0].cell.State)
	assert.True(t, math.IsInf(n[1].cell.State, -1))
	assert.True(t, math.IsInf(n[2].cell.State, -1))
	assert.Equal(t, 1, stats.Assigned)
}

func TestForbiddenRelationIgnored(t *testing.T) {
	n := newItems(1, 1)
	var ca CellularAutomaton[*item]
	ca.Apply(n, []Relation[*item]{rel(n[0], n[1], math.NaN())})
	assert.Equal(t, 1.0, n[1].cell.State)
}

func TestCycleIsBroken(t *testing.T) {
	n := newItems(1, 1, 1)
	rels := []Relation[*item]{
		rel(n[0], n[1], 0),
		rel(n[1], n[2], 0),
		rel(n[2], n[0], 0),
	}
	var ca CellularAutomaton[*item]
	stats := ca.Apply(n, rels)

	assert.Equal(t, 1, stats.CyclesBroken)
	assert.True(t, n[2].cell.HasFlag(FlagCycle))
	assert.True(t, n[0].cell.HasFlag(FlagCycle))
	// DFS from a visits a->b->c; c->a is the back edge.
	assert.Equal(t, 3.0, n[2].cell.State)
	assert.Equal(t, 1.0, n[0].cell.State)
	assert.LessOrEqual(t, stats.Rounds, len(n))
}

func TestTieBreakIsDeterministic(t *testing.T) {
	// Two predecessors give the same state; the longer path wins.
	n := newItems(1, 1, 2, 1)
	rels := []Relation[*item]{
		rel(n[2], n[3], 0), // state 3, length 2
		rel(n[0], n[1], 0),
		rel(n[1], n[3], 0), // state 3, length 3
	}
	var ca CellularAutomaton[*item]
	ca.Apply(n, rels)
	assert.Equal(t, 3.0, n[3].cell.State)
	assert.Equal(t, "abd", names(TracePath(n, 3)))

	// Equal state and length: larger |relation weight| wins.
	m := newItems(1, 1, 1)
	ca.Apply(m, []Relation[*item]{rel(m[0], m[2], 1), rel(m[1], m[2], 1)})
	assert.Equal(t, "ac", names(TracePath(m, 2)), "first relation kept on a full tie")

	m = newItems(2, 0, 1)
	ca.Apply(m, []Relation[*item]{rel(m[0], m[2], -1), rel(m[1], m[2], 1)})
	assert.Equal(t, 2.0, m[2].cell.State)
	assert.Equal(t, "ac", names(TracePath(m, 2)))

	m = newItems(0, 2, 1)
	ca.Apply(m, []Relation[*item]{rel(m[1], m[2], 0), rel(m[0], m[2], 2)})
	assert.Equal(t, "ac", names(TracePath(m, 2)), "larger |weight| wins over the equal-state alternative")
}

func TestBestEndPrefersLowerIndexOnTie(t *testing.T) {
	n := newItems(2, 2)
	var ca CellularAutomaton[*item]
	ca.Apply(n, nil)
	end, ok := BestEnd(n)
	require.True(t, ok)
	assert.Equal(t, 0, end)
}

func TestMultipassExtractsDisjointPaths(t *testing.T) {
	n := newItems(1, 1, 1, 1, 1)
	rels := []Relation[*item]{
		rel(n[0], n[1], 0),
		rel(n[1], n[2], 0),
		rel(n[3], n[4], 0),
		rel(n[3], n[1], 0),
	}
	f := NewMultipassCellularPathFinder[*item]()
	paths, stats := f.Apply(n, rels)

	require.Len(t, paths, 2)
	assert.Equal(t, 3.0, paths[0].Weight)
	assert.Equal(t, "abc", names(paths[0].Nodes))
	assert.Equal(t, "de", names(paths[1].Nodes))
	assert.LessOrEqual(t, stats.Passes, len(n)+1)

	seen := map[*item]bool{}
	for _, p := range paths {
		for _, x := range p.Nodes {
			assert.False(t, seen[x], "%s in two paths", x.name)
			seen[x] = true
		}
	}
}

func TestMultipassLimits(t *testing.T) {
	n := newItems(3, 1, 1)
	f := NewMultipassCellularPathFinder[*item]()
	f.MinState = 2.5
	paths, _ := f.Apply(n, []Relation[*item]{rel(n[1], n[2], 0)})
	require.Len(t, paths, 1)
	assert.Equal(t, "a", names(paths[0].Nodes))

	n = newItems(1, 1, 1)
	f = NewMultipassCellularPathFinder[*item]()
	f.MinPathLength = 2
	paths, stats := f.Apply(n, []Relation[*item]{rel(n[0], n[1], 0)})
	require.Len(t, paths, 1)
	assert.Equal(t, "ab", names(paths[0].Nodes))
	assert.Equal(t, 1, stats.Skipped)

	n = newItems(1, 1, 1, 1)
	f = NewMultipassCellularPathFinder[*item]()
	f.MaxPasses = 2
	paths, stats = f.Apply(n, []Relation[*item]{rel(n[0], n[1], 0)})
	require.Len(t, paths, 2)
	assert.Equal(t, "ab", names(paths[0].Nodes))
	assert.Equal(t, "c", names(paths[1].Nodes))
	assert.Equal(t, 2, stats.Passes)
}

func TestMultipassWithoutRelationsIsEmpty(t *testing.T) {
	f := NewMultipassCellularPathFinder[*item]()

	paths, stats := f.Apply(newItems(3, 3, 3), nil)
	assert.Empty(t, paths)
	assert.Equal(t, 1, stats.Passes)

	n := newItems(3, 3, 3)
	unusable := []Relation[*item]{
		rel(n[0], n[1], math.NaN()),
		rel(n[2], n[2], 1),
		rel(n[1], &item{cell: NewCell(1)}, 1),
	}
	paths, _ = f.Apply(n, unusable)
	assert.Empty(t, paths)
	for _, x := range n {
		assert.False(t, x.cell.IsTaken(), x.name)
	}

	n = newItems(3, 3, 3)
	n[1].cell.SetFlag(FlagMasked)
	paths, _ = f.Apply(n, []Relation[*item]{rel(n[0], n[1], 0)})
	assert.Empty(t, paths)

	paths, _ = f.Apply(nil, nil)
	assert.Empty(t, paths)
}

func TestTakenForwardingMasksSharingNodes(t *testing.T) {
	hits := newItems(0, 0, 0)
	a := &bundle{item: item{cell: NewCell(5), name: "A"}, shared: hits[:2]}
	b := &bundle{item: item{cell: NewCell(3), name: "B"}, shared: hits[1:]}
	c := &bundle{item: item{cell: NewCell(1), name: "C"}, shared: hits[2:]}

	f := NewMultipassCellularPathFinder[*bundle]()
	paths, _ := f.Apply([]*bundle{a, b, c}, []Relation[*bundle]{{From: b, To: c, Weight: -10}})

	require.Len(t, paths, 2)
	assert.Same(t, a, paths[0].Nodes[0])
	assert.Same(t, c, paths[1].Nodes[0])
	assert.True(t, b.cell.IsMasked())
	assert.True(t, hits[2].cell.IsTaken())
}

func TestBuildRelationsKeepsNBest(t *testing.T) {
	n := newItems(1, 1, 1, 1)
	next := func(x *item) []*item {
		if x == n[0] {
			return n[1:]
		}
		return nil
	}
	weight := func(from, to *item) float64 {
		switch to {
		case n[1]:
			return 1
		case n[2]:
			return math.NaN()
		default:
			return 2
		}
	}

	all := BuildRelations(n, next, weight, 0)
	require.Len(t, all, 2)
	assert.Same(t, n[1], all[0].To)

	best := BuildRelations(n, next, weight, 1)
	require.Len(t, best, 1)
	assert.Same(t, n[3], best[0].To)
}
