package l5segments

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l4facets"
)

// SegmentCreator converts facet paths into segments.
type SegmentCreator struct {
	topo *l1wires.Topology
}

// NewSegmentCreator returns a creator using topo for the superlayer kinds.
func NewSegmentCreator(topo *l1wires.Topology) *SegmentCreator {
	return &SegmentCreator{topo: topo}
}

// Apply creates one segment per path.
func (c *SegmentCreator) Apply(paths []automaton.Path[*l4facets.Facet]) []*Segment2D {
	segs := make([]*Segment2D, 0, len(paths))
	for _, p := range paths {
		if s := c.Create(p.Nodes); s != nil {
			segs = append(segs, s)
		}
	}
	diagf("%d facet paths -> %d segments", len(paths), len(segs))
	return segs
}

// vote collects the hypotheses the facets of a path hold for one hit.
type vote struct {
	left, right int
	posL, posR  r2.Vec
	first       l2hits.RLInfo
	middle      l2hits.RLInfo
}

func (v *vote) add(rl l2hits.RLInfo, pos r2.Vec, middle bool) {
	if v.first == l2hits.Unknown {
		v.first = rl
	}
	if middle && v.middle == l2hits.Unknown {
		v.middle = rl
	}
	switch rl {
	case l2hits.Left:
		v.left++
		v.posL = r2.Add(v.posL, pos)
	case l2hits.Right:
		v.right++
		v.posR = r2.Add(v.posR, pos)
	}
}

// resolve applies the majority; ties go to the facet holding the hit in
// the middle, then to the first facet.
func (v *vote) resolve() (l2hits.RLInfo, r2.Vec) {
	rl := v.first
	switch {
	case v.left > v.right:
		rl = l2hits.Left
	case v.right > v.left:
		rl = l2hits.Right
	case v.middle != l2hits.Unknown:
		rl = v.middle
	}
	if rl == l2hits.Left {
		return rl, r2.Scale(1/float64(v.left), v.posL)
	}
	return rl, r2.Scale(1/float64(v.right), v.posR)
}

// Create builds the segment of a facet path: the start and middle hit of
// the first facet followed by the end hit of every facet. Each hit takes
// the passage side most facets containing it agree on and the mean of their
// touch points on that side. It returns nil for an empty path.
func (c *SegmentCreator) Create(path []*l4facets.Facet) *Segment2D {
	if len(path) == 0 {
		return nil
	}
	order := []*l2hits.WireHit{path[0].Start.Hit, path[0].Middle.Hit}
	for _, f := range path {
		order = append(order, f.End.Hit)
	}

	votes := make(map[*l2hits.WireHit]*vote, len(order))
	for _, h := range order {
		votes[h] = &vote{}
	}
	for _, f := range path {
		for i, h := range f.Hits() {
			votes[h.Hit].add(h.RL, f.RecoPos(i), i == 1)
		}
	}

	sl := path[0].Middle.Hit.ISuperLayer()
	seg := &Segment2D{
		Hits:        make([]RecoHit2D, len(order)),
		ISuperLayer: sl,
		Axial:       c.topo.IsAxialSuperLayer(sl),
	}
	for i, h := range order {
		rl, pos := votes[h].resolve()
		seg.Hits[i] = RecoHit2D{RLWireHit: l2hits.RLWireHit{Hit: h, RL: rl}, Pos: pos}
	}
	seg.cell = automaton.NewCell(float64(seg.Size()))
	seg.Refit()
	return seg
}
