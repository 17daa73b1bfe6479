package l5segments

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
)

// Reconstruct3D places the hits of a stereo segment on the circle t. Hits
// whose wire never meets the circle on their passage side are dropped.
func Reconstruct3D(topo *l1wires.Topology, t fitting.Trajectory2D, hits []RecoHit2D) []RecoHit3D {
	out := make([]RecoHit3D, 0, len(hits))
	for _, h := range hits {
		id := h.Hit.ID
		zMin, zMax := topo.ZRange(id)
		wireAt := func(z float64) r2.Vec { return topo.WirePosition(id, z) }
		z, pos, s, ok := fitting.ReconstructZ(t, wireAt, zMin, zMax, h.SignedDriftLength())
		if !ok {
			continue
		}
		out = append(out, RecoHit3D{RLWireHit: h.RLWireHit, Pos: r3.Vec{X: pos.X, Y: pos.Y, Z: z}, ArcLength2D: s})
	}
	return out
}

// FitSZ fits the heights of reconstructed stereo hits against their arc
// lengths. The height variance follows from the drift variance and the
// wire's skew.
func FitSZ(topo *l1wires.Topology, hits []RecoHit3D) (fitting.SZLine, error) {
	s := make([]float64, len(hits))
	z := make([]float64, len(hits))
	v := make([]float64, len(hits))
	for i, h := range hits {
		s[i], z[i] = h.ArcLength2D, h.Pos.Z
		skew := r2.Norm(topo.SkewPerZ(h.Hit.ID))
		variance := h.Hit.DriftVariance
		if variance <= 0 {
			variance = fitting.DefaultVariance
		}
		if skew > 0 {
			v[i] = variance / (skew * skew)
		}
	}
	return fitting.FitSZ(s, z, v)
}

// SegmentTriple joins a stereo segment to an axial pair enclosing it.
type SegmentTriple struct {
	Start, Middle, End *Segment2D
	Pair               *AxialSegmentPair
	Stereo             []RecoHit3D // reconstructed hits of Middle
	Helix              fitting.Helix

	cell automaton.Cell
}

// Size is the total number of hits.
func (t *SegmentTriple) Size() int { return t.Start.Size() + t.Middle.Size() + t.End.Size() }

// ReconstructedFraction is the share of stereo hits placed in 3D.
func (t *SegmentTriple) ReconstructedFraction() float64 {
	return float64(len(t.Stereo)) / float64(t.Middle.Size())
}

// AutomatonCell exposes the triple's automaton state.
func (t *SegmentTriple) AutomatonCell() *automaton.Cell { return &t.cell }

// ForwardTakenFlag marks the three segments and their hits as used.
func (t *SegmentTriple) ForwardTakenFlag() {
	for _, s := range []*Segment2D{t.Start, t.Middle, t.End} {
		s.AutomatonCell().SetFlag(automaton.FlagTaken)
		s.ForwardTakenFlag()
	}
}

// ReceiveMaskedFlag masks the triple when one of its hits is used.
func (t *SegmentTriple) ReceiveMaskedFlag() {
	for _, s := range []*Segment2D{t.Start, t.Middle, t.End} {
		s.ReceiveMaskedFlag()
		if s.AutomatonCell().IsMasked() {
			t.cell.SetFlag(automaton.FlagMasked)
		}
	}
}

// TripleVars are the segment triple variables.
var TripleVars = filter.VarSet[*SegmentTriple]{
	{Name: "size", Extract: func(t *SegmentTriple) float64 { return float64(t.Size()) }},
	{Name: "stereo_size", Extract: func(t *SegmentTriple) float64 { return float64(t.Middle.Size()) }},
	{Name: "reconstructed_fraction", Extract: (*SegmentTriple).ReconstructedFraction},
	{Name: "z0", Extract: func(t *SegmentTriple) float64 { return szOr(t, t.Helix.SZ.Z0) }},
	{Name: "tan_lambda", Extract: func(t *SegmentTriple) float64 { return szOr(t, t.Helix.SZ.TanLambda) }},
	{Name: "sz_p_value", Extract: func(t *SegmentTriple) float64 { return szOr(t, t.Helix.SZ.PValue()) }},
	{Name: "pair_p_value", Extract: func(t *SegmentTriple) float64 { return t.Helix.Circle.PValue() }},
	{Name: "curvature", Extract: func(t *SegmentTriple) float64 { return t.Helix.Circle.Curvature }},
}

func szOr(t *SegmentTriple, v float64) float64 {
	if !t.Helix.SZ.Valid {
		return math.NaN()
	}
	return v
}

// TripleTruth marks triples of three segments of one simulated track.
func TripleTruth(t *SegmentTriple) (signal, known bool) {
	return sameTrack(t.Start, t.Middle, t.End)
}

// NewTripleFilterFactory returns the segment triple filters: all, none,
// truth, mva, recording and simple.
func NewTripleFilterFactory() *filter.Factory[*SegmentTriple] {
	accept := func(t *SegmentTriple) float64 { return float64(t.Size()) }
	f := filter.NewFactory(filter.Config[*SegmentTriple]{
		Stage:  "segment_triple",
		Accept: accept,
		Vars:   TripleVars,
		Truth:  TripleTruth,
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[*SegmentTriple], error) {
		minFraction := spec.Params.Get("min_reconstructed_fraction", 0.5)
		maxZ0 := spec.Params.Get("max_z0", 60)
		minP := spec.Params.Get("min_p_value", 1e-6)
		return filter.Func[*SegmentTriple](func(t *SegmentTriple) float64 {
			sz := t.Helix.SZ
			if t.ReconstructedFraction() < minFraction || !sz.Valid ||
				math.Abs(sz.Z0) > maxZ0 || sz.PValue() < minP {
				return math.NaN()
			}
			return accept(t)
		}), nil
	})
	return f
}

// TripleRelation is a candidate continuation A -> B with A.End == B.Start.
type TripleRelation struct {
	From, To *SegmentTriple
}

// TanLambdaDiff is the difference in dip between both triples.
func (r TripleRelation) TanLambdaDiff() float64 {
	return math.Abs(r.From.Helix.SZ.TanLambda - r.To.Helix.SZ.TanLambda)
}

// TripleRelationVars are the triple relation variables.
var TripleRelationVars = filter.VarSet[TripleRelation]{
	{Name: "shared_size", Extract: func(r TripleRelation) float64 { return float64(r.From.End.Size()) }},
	{Name: "tan_lambda_diff", Extract: TripleRelation.TanLambdaDiff},
	{Name: "z0_diff", Extract: func(r TripleRelation) float64 { return math.Abs(r.From.Helix.SZ.Z0 - r.To.Helix.SZ.Z0) }},
	{Name: "curvature_diff", Extract: func(r TripleRelation) float64 {
		return math.Abs(r.From.Helix.Circle.Curvature - r.To.Helix.Circle.Curvature)
	}},
}

// TripleRelationTruth marks relations of triples of one simulated track.
func TripleRelationTruth(r TripleRelation) (signal, known bool) {
	return sameTrack(r.From.Start, r.From.Middle, r.From.End, r.To.Middle, r.To.End)
}

// NewTripleRelationFilterFactory returns the triple relation filters: all,
// none, truth, mva, recording and simple.
func NewTripleRelationFilterFactory() *filter.Factory[TripleRelation] {
	accept := func(r TripleRelation) float64 { return -float64(r.From.End.Size()) }
	f := filter.NewFactory(filter.Config[TripleRelation]{
		Stage:  "segment_triple_relation",
		Accept: accept,
		Vars:   TripleRelationVars,
		Truth:  TripleRelationTruth,
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[TripleRelation], error) {
		maxDiff := spec.Params.Get("max_tan_lambda_diff", 0.3)
		return filter.Func[TripleRelation](func(r TripleRelation) float64 {
			if r.TanLambdaDiff() > maxDiff {
				return math.NaN()
			}
			return accept(r)
		}), nil
	})
	return f
}

// TripleBuilder combines axial pairs with the stereo segments between them.
type TripleBuilder struct {
	Topology       *l1wires.Topology
	Filter         filter.Filter[*SegmentTriple]
	RelationFilter filter.Filter[TripleRelation]
	NBest          int
}

// Triples returns the accepted triples for pairs of neighboring axial
// superlayers and the stereo segments of the superlayer between them.
func (b TripleBuilder) Triples(pairs []*AxialSegmentPair, segs []*Segment2D) []*SegmentTriple {
	bySL := map[int][]*Segment2D{}
	for _, s := range segs {
		if !s.Axial {
			bySL[s.ISuperLayer] = append(bySL[s.ISuperLayer], s)
		}
	}
	var triples []*SegmentTriple
	for _, p := range pairs {
		if p.To.ISuperLayer-p.From.ISuperLayer != 2 || !p.Trajectory.Valid {
			continue
		}
		for _, m := range bySL[p.From.ISuperLayer+1] {
			t := b.build(p, m)
			if t == nil {
				continue
			}
			w := b.Filter.Weight(t)
			if math.IsNaN(w) {
				continue
			}
			t.cell = automaton.NewCell(w)
			triples = append(triples, t)
		}
	}
	diagf("%d axial pairs -> %d segment triples", len(pairs), len(triples))
	return triples
}

// build reconstructs m against the pair's circle. It returns nil when m
// travels against the pair.
func (b TripleBuilder) build(p *AxialSegmentPair, m *Segment2D) *SegmentTriple {
	stereo := Reconstruct3D(b.Topology, p.Trajectory, m.Hits)
	if len(stereo) >= 2 && stereo[len(stereo)-1].ArcLength2D < stereo[0].ArcLength2D {
		return nil
	}
	t := &SegmentTriple{Start: p.From, Middle: m, End: p.To, Pair: p, Stereo: stereo}
	t.Helix.Circle = p.Trajectory
	if sz, err := FitSZ(b.Topology, stereo); err == nil {
		t.Helix.SZ = sz
	} else {
		tracef("triple %s %s %s: %v", p.From, m, p.To, err)
	}
	return t
}

// Relations links triples sharing an axial segment.
func (b TripleBuilder) Relations(triples []*SegmentTriple) []automaton.Relation[*SegmentTriple] {
	byStart := make(map[*Segment2D][]*SegmentTriple, len(triples))
	for _, t := range triples {
		byStart[t.Start] = append(byStart[t.Start], t)
	}
	next := func(t *SegmentTriple) []*SegmentTriple { return byStart[t.End] }
	weight := func(a, c *SegmentTriple) float64 {
		return b.RelationFilter.Weight(TripleRelation{From: a, To: c})
	}
	return automaton.BuildRelations(triples, next, weight, b.NBest)
}

// TriplePathSegments flattens a path of triples into its segments in
// travel order.
func TriplePathSegments(path []*SegmentTriple) []*Segment2D {
	if len(path) == 0 {
		return nil
	}
	segs := []*Segment2D{path[0].Start}
	for _, t := range path {
		segs = append(segs, t.Middle, t.End)
	}
	return segs
}
