package l4facets

import (
	"math"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// rlPair is two consecutive hits together with the sides they are passed on.
type rlPair struct {
	a, b l2hits.RLWireHit
}

// RelationBuilder links facets that continue each other.
type RelationBuilder struct {
	filter filter.Filter[Relation]
	nBest  int
}

// NewRelationBuilder returns a builder weighing relations with flt. When
// nBest is positive only the nBest heaviest relations per facet are kept.
func NewRelationBuilder(flt filter.Filter[Relation], nBest int) *RelationBuilder {
	if flt == nil {
		flt = filter.Func[Relation](func(Relation) float64 { return RelationWeight })
	}
	return &RelationBuilder{filter: flt, nBest: nBest}
}

// Weight scores the relation from a to b. Relations whose outer hits sit on
// the same wire are forbidden regardless of the filter.
func (b *RelationBuilder) Weight(from, to *Facet) float64 {
	if l1wires.IsOnWire(from.Start.Hit.ID, to.End.Hit.ID) {
		return math.NaN()
	}
	return b.filter.Weight(Relation{From: from, To: to})
}

// Build returns the relations between facets: a facet continues another
// when its start and middle hits are the other's middle and end hits, each
// passed on the same side.
func (b *RelationBuilder) Build(facets []*Facet) []automaton.Relation[*Facet] {
	byHead := make(map[rlPair][]*Facet, len(facets))
	for _, f := range facets {
		k := rlPair{f.Start, f.Middle}
		byHead[k] = append(byHead[k], f)
	}
	next := func(f *Facet) []*Facet {
		return byHead[rlPair{f.Middle, f.End}]
	}
	rels := automaton.BuildRelations(facets, next, b.Weight, b.nBest)
	diagf("%d facets -> %d relations", len(facets), len(rels))
	return rels
}
