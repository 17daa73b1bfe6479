package l4facets

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l3clusters"
)

// RL modes of the creator.
const (
	ModeBest = "best"
	ModeAll  = "all"
)

// FacetCreator builds the facets of clusters.
type FacetCreator struct {
	topo   *l1wires.Topology
	mode   string
	filter filter.Filter[*Facet]
}

// NewFacetCreator returns a creator. A nil filter accepts every feasible
// facet with the default weight.
func NewFacetCreator(topo *l1wires.Topology, mode string, flt filter.Filter[*Facet]) (*FacetCreator, error) {
	switch mode {
	case ModeBest, ModeAll:
	case "":
		mode = ModeAll
	default:
		return nil, fmt.Errorf("unknown facet rl mode %q (want %s or %s)", mode, ModeBest, ModeAll)
	}
	if flt == nil {
		flt = filter.Func[*Facet](func(*Facet) float64 { return FacetWeight })
	}
	return &FacetCreator{topo: topo, mode: mode, filter: flt}, nil
}

// Apply returns the accepted facets of all clusters, cluster by cluster.
func (c *FacetCreator) Apply(clusters []*l3clusters.Cluster) []*Facet {
	var facets []*Facet
	for _, cl := range clusters {
		facets = append(facets, c.Create(cl)...)
	}
	diagf("%d clusters -> %d facets", len(clusters), len(facets))
	return facets
}

// Create returns the accepted facets of one cluster. Background clusters
// and clusters of fewer than three hits yield none.
func (c *FacetCreator) Create(cl *l3clusters.Cluster) []*Facet {
	if cl.Background || cl.Size() < 3 {
		return nil
	}
	var facets []*Facet
	for _, triple := range c.triples(cl) {
		facets = append(facets, c.fromTriple(triple[0], triple[1], triple[2])...)
	}
	return facets
}

// triples enumerates the oriented (start, middle, end) hit triples of cl:
// start and end are neighbors of middle but not of each other, and start
// precedes end.
func (c *FacetCreator) triples(cl *l3clusters.Cluster) [][3]*l2hits.WireHit {
	byID := make(map[l1wires.WireID]*l2hits.WireHit, len(cl.Hits))
	for _, h := range cl.Hits {
		byID[h.ID] = h
	}
	ccw := c.counterClockwise(cl, byID)

	var out [][3]*l2hits.WireHit
	for _, m := range cl.Hits {
		var near []*l2hits.WireHit
		for _, id := range c.topo.Neighbors(m.ID) {
			if h, ok := byID[id]; ok && !h.IsBackground() {
				near = append(near, h)
			}
		}
		sort.Slice(near, func(i, j int) bool { return near[i].ID.Less(near[j].ID) })
		for _, s := range near {
			for _, e := range near {
				if s == e || !precedes(s, e, ccw) || c.topo.AreNeighbors(s.ID, e.ID) {
					continue
				}
				out = append(out, [3]*l2hits.WireHit{s, m, e})
			}
		}
	}
	return out
}

// counterClockwise reports whether the hits of cl drift counter-clockwise
// from one layer to the next. Steps within a layer follow the same sense, so
// the facets of a clockwise track chain head to tail as well. Undecided
// clusters count as counter-clockwise.
func (c *FacetCreator) counterClockwise(cl *l3clusters.Cluster, byID map[l1wires.WireID]*l2hits.WireHit) bool {
	sense := 0
	for _, h := range cl.Hits {
		if h.IsBackground() {
			continue
		}
		for _, id := range c.topo.Neighbors(h.ID) {
			n, ok := byID[id]
			if !ok || n.IsBackground() || n.ICLayer != h.ICLayer+1 {
				continue
			}
			switch x := r2.Cross(h.RefPos, n.RefPos); {
			case x > 0:
				sense++
			case x < 0:
				sense--
			}
		}
	}
	return sense >= 0
}

// precedes orders hits by continuous layer, then in the winding sense.
func precedes(a, b *l2hits.WireHit, ccw bool) bool {
	if a.ICLayer != b.ICLayer {
		return a.ICLayer < b.ICLayer
	}
	x := r2.Cross(a.RefPos, b.RefPos)
	if ccw {
		return x > 0
	}
	return x < 0
}

func (c *FacetCreator) fromTriple(s, m, e *l2hits.WireHit) []*Facet {
	var feasible []*Facet
	for i, rl := range RLCombinations {
		f, ok := NewFacet(
			l2hits.RLWireHit{Hit: s, RL: rl[0]},
			l2hits.RLWireHit{Hit: m, RL: rl[1]},
			l2hits.RLWireHit{Hit: e, RL: rl[2]},
		)
		if !ok || !Feasible(f) {
			continue
		}
		f.Combination = i
		feasible = append(feasible, f)
	}
	if len(feasible) == 0 {
		tracef("no feasible rl combination for %s %s %s", s.ID, m.ID, e.ID)
		return nil
	}
	if c.mode == ModeBest {
		best := feasible[0]
		for _, f := range feasible[1:] {
			if f.Kink() < best.Kink() {
				best = f
			}
		}
		feasible = feasible[:1]
		feasible[0] = best
	}

	out := feasible[:0]
	for _, f := range feasible {
		w := c.filter.Weight(f)
		if math.IsNaN(w) {
			continue
		}
		f.cell.Weight = w
		out = append(out, f)
	}
	return out
}
