package l4facets

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// FacetWeight is the weight of an accepted straight facet, one per hit.
const FacetWeight = 3

// kinkWeight lowers the weight of a facet by its kink relative to the cut,
// so that among the right-left passages of the same hits the straightest
// chain weighs most.
func kinkWeight(f *Facet, cut float64) float64 {
	if cut <= 0 {
		return FacetWeight
	}
	return FacetWeight - f.Kink()/cut
}

// Feasible reports whether a trajectory can pass the facet's hits on the
// hypothesised sides: the creator has already checked that the tangents
// exist, so only a kink of at least 90 degrees is excluded.
func Feasible(f *Facet) bool { return f.Kink() < math.Pi/2 }

// KinkSigma estimates the uncertainty of the kink angle from the drift
// length variances of the three hits.
func KinkSigma(f *Facet) float64 {
	sm := f.StartToMiddle.Length()
	me := f.MiddleToEnd.Length()
	if sm == 0 || me == 0 {
		return math.Inf(1)
	}
	vs := f.Start.Hit.DriftVariance / (sm * sm)
	vm := f.Middle.Hit.DriftVariance * math.Pow(1/sm+1/me, 2)
	ve := f.End.Hit.DriftVariance / (me * me)
	return math.Sqrt(vs + vm + ve)
}

// FacetVars are the facet variables for recording and the classifier.
var FacetVars = filter.VarSet[*Facet]{
	{Name: "kink", Extract: (*Facet).Kink},
	{Name: "kink_sigma", Extract: KinkSigma},
	{Name: "start_drift_length", Extract: func(f *Facet) float64 { return f.Start.Hit.DriftLength }},
	{Name: "middle_drift_length", Extract: func(f *Facet) float64 { return f.Middle.Hit.DriftLength }},
	{Name: "end_drift_length", Extract: func(f *Facet) float64 { return f.End.Hit.DriftLength }},
	{Name: "layer_span", Extract: func(f *Facet) float64 { return float64(f.End.Hit.ICLayer - f.Start.Hit.ICLayer) }},
	{Name: "superlayer", Extract: func(f *Facet) float64 { return float64(f.Middle.Hit.ISuperLayer()) }},
	{Name: "start_to_end_length", Extract: func(f *Facet) float64 { return f.StartToEnd.Length() }},
	{Name: "middle_distance", Extract: func(f *Facet) float64 {
		// middle touch point distance from the start-end tangent
		return math.Abs(f.StartToEnd.DistanceTo(f.RecoPos(1)))
	}},
	{Name: "combination", Extract: func(f *Facet) float64 { return float64(f.Combination) }},
}

// FacetTruth marks facets whose hits come from one simulated track with the
// simulated passage sides.
func FacetTruth(f *Facet) (signal, known bool) {
	return sameTrack(true, f.Start, f.Middle, f.End)
}

func sameTrack(checkRL bool, hits ...l2hits.RLWireHit) (signal, known bool) {
	var id int
	for i, h := range hits {
		t := h.Hit.Truth
		if t == nil {
			return false, false
		}
		if t.IsBackground() {
			return false, true
		}
		if i == 0 {
			id = t.TrackID
		} else if t.TrackID != id {
			return false, true
		}
		if checkRL && t.RL != l2hits.Unknown && t.RL != h.RL {
			return false, true
		}
	}
	return true, true
}

// NewFilterFactory returns the facet filters: all, none, truth, mva,
// recording, feasible, simple and realistic.
func NewFilterFactory() *filter.Factory[*Facet] {
	accept := func(*Facet) float64 { return FacetWeight }
	f := filter.NewFactory(filter.Config[*Facet]{
		Stage:  "facet",
		Accept: accept,
		Vars:   FacetVars,
		Truth:  FacetTruth,
	})
	f.Register("feasible", func(filter.Spec) (filter.Filter[*Facet], error) {
		return filter.Func[*Facet](func(fc *Facet) float64 {
			if !Feasible(fc) {
				return math.NaN()
			}
			return FacetWeight
		}), nil
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[*Facet], error) {
		maxKink := spec.Params.Get("max_kink", 0.8)
		return filter.Func[*Facet](func(fc *Facet) float64 {
			if fc.Kink() > maxKink {
				return math.NaN()
			}
			return kinkWeight(fc, maxKink)
		}), nil
	})
	f.Register("realistic", func(spec filter.Spec) (filter.Filter[*Facet], error) {
		maxPull := spec.Params.Get("max_pull", 5)
		minKink := spec.Params.Get("min_kink", 0.1)
		return filter.Func[*Facet](func(fc *Facet) float64 {
			cut := maxPull*KinkSigma(fc) + minKink
			if fc.Kink() > cut {
				return math.NaN()
			}
			return kinkWeight(fc, cut)
		}), nil
	})
	return f
}

// Relation is a candidate continuation from one facet to the next.
type Relation struct {
	From, To *Facet
}

// Angle is the direction change from the first tangent of From to the last
// tangent of To. The shared tangent in between is the same line for both.
func (r Relation) Angle() float64 {
	return Angle(r.From.StartToMiddle.Dir, r.To.MiddleToEnd.Dir)
}

// RelationWeight is the weight of an accepted facet relation; it cancels
// the two hits shared by the facets.
const RelationWeight = -2

// RelationVars are the facet relation variables.
var RelationVars = filter.VarSet[Relation]{
	{Name: "angle", Extract: Relation.Angle},
	{Name: "from_kink", Extract: func(r Relation) float64 { return r.From.Kink() }},
	{Name: "to_kink", Extract: func(r Relation) float64 { return r.To.Kink() }},
	{Name: "kink_sigma", Extract: func(r Relation) float64 { return math.Hypot(KinkSigma(r.From), KinkSigma(r.To)) }},
	{Name: "superlayer", Extract: func(r Relation) float64 { return float64(r.From.Middle.Hit.ISuperLayer()) }},
	{Name: "start_end_distance", Extract: func(r Relation) float64 {
		return r2.Norm(r2.Sub(r.To.End.Hit.RefPos, r.From.Start.Hit.RefPos))
	}},
}

// RelationTruth marks relations whose four hits come from one simulated
// track.
func RelationTruth(r Relation) (signal, known bool) {
	return sameTrack(false, r.From.Start, r.From.Middle, r.From.End, r.To.End)
}

// NewRelationFilterFactory returns the facet relation filters: all, none,
// truth, mva, recording and simple.
func NewRelationFilterFactory() *filter.Factory[Relation] {
	f := filter.NewFactory(filter.Config[Relation]{
		Stage:  "facet_relation",
		Accept: func(Relation) float64 { return RelationWeight },
		Vars:   RelationVars,
		Truth:  RelationTruth,
	})
	f.Register("simple", func(spec filter.Spec) (filter.Filter[Relation], error) {
		maxAngle := spec.Params.Get("max_angle", 0.6)
		return filter.Func[Relation](func(r Relation) float64 {
			if r.Angle() > maxAngle {
				return math.NaN()
			}
			return RelationWeight
		}), nil
	})
	return f
}
