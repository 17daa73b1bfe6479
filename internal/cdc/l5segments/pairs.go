package l5segments

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l4facets"
)

// AxialSegmentPair links an axial segment to one in a following axial
// superlayer under a common circle.
type AxialSegmentPair struct {
	From, To   *Segment2D
	Trajectory fitting.Trajectory2D // common fit, Valid false on failure

	cell automaton.Cell
}

// NewAxialSegmentPair fits the common circle of both segments.
func NewAxialSegmentPair(from, to *Segment2D) *AxialSegmentPair {
	p := &AxialSegmentPair{From: from, To: to}
	if traj, err := fitting.FitCircle(fitObservations(from, to)); err == nil {
		p.Trajectory = traj
	}
	return p
}

func fitObservations(segs ...*Segment2D) []fitting.Observation {
	var obs []fitting.Observation
	for _, s := range segs {
		obs = append(obs, s.Observations()...)
	}
	return obs
}

// AutomatonCell exposes the pair's automaton state.
func (p *AxialSegmentPair) AutomatonCell() *automaton.Cell { return &p.cell }

// Size is the total number of hits.
func (p *AxialSegmentPair) Size() int { return p.From.Size() + p.To.Size() }

// ForwardTakenFlag marks both segments and their hits as used.
func (p *AxialSegmentPair) ForwardTakenFlag() {
	for _, s := range []*Segment2D{p.From, p.To} {
		s.AutomatonCell().SetFlag(automaton.FlagTaken)
		s.ForwardTakenFlag()
	}
}

// ReceiveMaskedFlag masks the pair when one of its hits is used.
func (p *AxialSegmentPair) ReceiveMaskedFlag() {
	for _, s := range []*Segment2D{p.From, p.To} {
		s.ReceiveMaskedFlag()
		if s.AutomatonCell().IsMasked() {
			p.cell.SetFlag(automaton.FlagMasked)
		}
	}
}

// Kink is the angle between the travel direction at the end of From and
// the chord to the start of To.
func (p *AxialSegmentPair) Kink() float64 {
	dir := p.From.TravelDirection()
	if p.From.Trajectory.Valid {
		dir = p.From.Trajectory.DirectionAt(p.From.Back().ArcLength)
	}
	chord := r2.Sub(p.To.Front().Pos, p.From.Back().Pos)
	return l4facets.Angle(dir, chord)
}

// ahead reports whether to starts beyond the end of from along from's
// travel direction.
func ahead(from, to *Segment2D) bool {
	if from.Trajectory.Valid {
		return from.Trajectory.ArcLength(to.Front().Pos) > from.Back().ArcLength
	}
	return r2.Dot(r2.Sub(to.Front().Pos, from.Back().Pos), from.TravelDirection()) > 0
}

// PairVars are the axial pair variables.
var PairVars = filter.VarSet[*AxialSegmentPair]{
	{Name: "from_size", Extract: func(p *AxialSegmentPair) float64 { return float64(p.From.Size()) }},
	{Name: "to_size", Extract: func(p *AxialSegmentPair) float64 { return float64(p.To.Size()) }},
	{Name: "superlayer_gap", Extract: func(p *AxialSegmentPair) float64 { return float64(p.To.ISuperLayer - p.From.ISuperLayer) }},
	{Name: "kink", Extract: (*AxialSegmentPair).Kink},
	{Name: "gap_distance", Extract: func(p *AxialSegmentPair) float64 {
		return r2.Norm(r2.Sub(p.To.Front().Pos, p.From.Back().Pos))
	}},
	{Name: "fit_valid", Extract: func(p *AxialSegmentPair) float64 { return boolValue(p.Trajectory.Valid) }},
	{Name: "p_value", Extract: func(p *AxialSegmentPair) float64 { return validOr(p.Trajectory, p.Trajectory.PValue()) }},
	{Name: "curvature", Extract: func(p *AxialSegmentPair) float64 { return validOr(p.Trajectory, p.Trajectory.Curvature) }},
	{Name: "impact", Extract: func(p *AxialSegmentPair) float64 { return validOr(p.Trajectory, p.Trajectory.Impact()) }},
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func validOr(t fitting.Trajectory2D, v float64) float64 {
	if !t.Valid {
		return math.NaN()
	}
	return v
}

// PairTruth marks pairs of two segments of the same simulated track.
func PairTruth(p *AxialSegmentPair) (signal, known bool) {
	return sameTrack(p.From, p.To)
}

func sameTrack(segs ...*Segment2D) (signal, known bool) {
	first := -1
	for i, s := range segs {
		id, purity, ok := s.MCTrack()
		if !ok {
			return false, false
		}
		if id < 0 || purity < 0.5 {
			return false, true
		}
		if i == 0 {
			first = id
		} else if id != first {
			return false, true
		}
	}
	return true, true
}

// NewPairFilterFactory returns the axial pair filters: all, none, truth,
// mva, recording, simple (common fit probability) and fitless (direction
// continuity).
func NewPairFilterFactory() *filter.Factory[*AxialSegmentPair] {
	accept := func(p *AxialSegmentPair) float64 { return float64(p.Size()) }
	f := filter.NewFactory(filter.Config[*AxialSegmentPair]{
		Stage:  "axial_pair",
		Accept: accept,
		Vars:   PairVars,
		Truth:  PairTruth,
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[*AxialSegmentPair], error) {
		minP := spec.Params.Get("min_p_value", 1e-6)
		return filter.Func[*AxialSegmentPair](func(p *AxialSegmentPair) float64 {
			if !p.Trajectory.Valid || p.Trajectory.PValue() < minP {
				return math.NaN()
			}
			return accept(p)
		}), nil
	})
	f.Register("fitless", func(spec filter.Spec) (filter.Filter[*AxialSegmentPair], error) {
		maxKink := spec.Params.Get("max_kink", 0.5)
		return filter.Func[*AxialSegmentPair](func(p *AxialSegmentPair) float64 {
			if p.Kink() > maxKink {
				return math.NaN()
			}
			return accept(p)
		}), nil
	})
	return f
}

// PairRelation is a candidate continuation A -> B with A.To == B.From.
type PairRelation struct {
	From, To *AxialSegmentPair
}

// Fit returns the common circle of the three segments.
func (r PairRelation) Fit() fitting.Trajectory2D {
	traj, err := fitting.FitCircle(fitObservations(r.From.From, r.From.To, r.To.To))
	if err != nil {
		return fitting.Trajectory2D{}
	}
	return traj
}

// PairRelationVars are the pair relation variables.
var PairRelationVars = filter.VarSet[PairRelation]{
	{Name: "shared_size", Extract: func(r PairRelation) float64 { return float64(r.From.To.Size()) }},
	{Name: "p_value", Extract: func(r PairRelation) float64 { t := r.Fit(); return validOr(t, t.PValue()) }},
	{Name: "curvature_diff", Extract: func(r PairRelation) float64 {
		if !r.From.Trajectory.Valid || !r.To.Trajectory.Valid {
			return math.NaN()
		}
		return math.Abs(r.From.Trajectory.Curvature - r.To.Trajectory.Curvature)
	}},
}

// PairRelationTruth marks relations over three segments of one track.
func PairRelationTruth(r PairRelation) (signal, known bool) {
	return sameTrack(r.From.From, r.From.To, r.To.To)
}

// NewPairRelationFilterFactory returns the pair relation filters: all,
// none, truth, mva, recording and simple.
func NewPairRelationFilterFactory() *filter.Factory[PairRelation] {
	accept := func(r PairRelation) float64 { return -float64(r.From.To.Size()) }
	f := filter.NewFactory(filter.Config[PairRelation]{
		Stage:  "axial_pair_relation",
		Accept: accept,
		Vars:   PairRelationVars,
		Truth:  PairRelationTruth,
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[PairRelation], error) {
		minP := spec.Params.Get("min_p_value", 1e-6)
		return filter.Func[PairRelation](func(r PairRelation) float64 {
			t := r.Fit()
			if !t.Valid || t.PValue() < minP {
				return math.NaN()
			}
			return accept(r)
		}), nil
	})
	return f
}

// PairBuilder creates axial segment pairs and their relations.
type PairBuilder struct {
	Filter         filter.Filter[*AxialSegmentPair]
	RelationFilter filter.Filter[PairRelation]
	// MaxSuperLayerGap is 2 (neighboring axial superlayers) or 4 (one
	// axial superlayer may be skipped).
	MaxSuperLayerGap int
	NBest            int
}

// Pairs returns the accepted pairs among the axial segments of segs.
func (b PairBuilder) Pairs(segs []*Segment2D) []*AxialSegmentPair {
	maxGap := max(2, b.MaxSuperLayerGap)
	var pairs []*AxialSegmentPair
	for _, from := range segs {
		if !from.Axial {
			continue
		}
		for _, to := range segs {
			gap := to.ISuperLayer - from.ISuperLayer
			if !to.Axial || gap <= 0 || gap > maxGap || !ahead(from, to) {
				continue
			}
			p := NewAxialSegmentPair(from, to)
			w := b.Filter.Weight(p)
			if math.IsNaN(w) {
				continue
			}
			p.cell = automaton.NewCell(w)
			pairs = append(pairs, p)
		}
	}
	diagf("%d segments -> %d axial pairs", len(segs), len(pairs))
	return pairs
}

// Relations links pairs sharing a segment.
func (b PairBuilder) Relations(pairs []*AxialSegmentPair) []automaton.Relation[*AxialSegmentPair] {
	byFrom := make(map[*Segment2D][]*AxialSegmentPair, len(pairs))
	for _, p := range pairs {
		byFrom[p.From] = append(byFrom[p.From], p)
	}
	next := func(p *AxialSegmentPair) []*AxialSegmentPair { return byFrom[p.To] }
	weight := func(a, c *AxialSegmentPair) float64 {
		return b.RelationFilter.Weight(PairRelation{From: a, To: c})
	}
	return automaton.BuildRelations(pairs, next, weight, b.NBest)
}

// PathSegments flattens a path of pairs into its segments.
func PathSegments(path []*AxialSegmentPair) []*Segment2D {
	if len(path) == 0 {
		return nil
	}
	segs := []*Segment2D{path[0].From}
	for _, p := range path {
		segs = append(segs, p.To)
	}
	return segs
}
