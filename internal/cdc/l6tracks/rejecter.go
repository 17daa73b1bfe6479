package l6tracks

import (
	"math"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
)

// TrackVars are the track variables.
var TrackVars = filter.VarSet[*Track]{
	{Name: "size", Extract: func(t *Track) float64 { return float64(t.Size()) }},
	{Name: "n_superlayers", Extract: func(t *Track) float64 { return float64(len(t.ISuperLayers())) }},
	{Name: "is_3d", Extract: func(t *Track) float64 { return boolValue(t.Is3D()) }},
	{Name: "p_value", Extract: func(t *Track) float64 { return circleOr(t, t.Helix.PValue()) }},
	{Name: "curvature", Extract: func(t *Track) float64 { return circleOr(t, t.Helix.Circle.Curvature) }},
	{Name: "impact", Extract: func(t *Track) float64 { return circleOr(t, t.Helix.Circle.Impact()) }},
	{Name: "tan_lambda", Extract: func(t *Track) float64 { return szOr(t, t.Helix.SZ.TanLambda) }},
	{Name: "z0", Extract: func(t *Track) float64 { return szOr(t, t.Perigee().Z0) }},
	{Name: "layer_span", Extract: func(t *Track) float64 {
		if t.Empty() {
			return 0
		}
		lo, hi := t.Hits[0].Hit.ICLayer, t.Hits[0].Hit.ICLayer
		for _, h := range t.Hits[1:] {
			lo, hi = min(lo, h.Hit.ICLayer), max(hi, h.Hit.ICLayer)
		}
		return float64(hi - lo + 1)
	}},
	{Name: "arc_length", Extract: func(t *Track) float64 {
		if t.Empty() {
			return 0
		}
		return t.Hits[len(t.Hits)-1].ArcLength2D - t.Hits[0].ArcLength2D
	}},
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func circleOr(t *Track, v float64) float64 {
	if !t.Helix.Circle.Valid {
		return math.NaN()
	}
	return v
}

func szOr(t *Track, v float64) float64 {
	if !t.Helix.SZ.Valid {
		return math.NaN()
	}
	return v
}

// TrackTruth marks tracks whose hits mostly belong to one simulated track.
func TrackTruth(t *Track) (signal, known bool) {
	id, purity, ok := t.MCTrack()
	if !ok {
		return false, false
	}
	return id >= 0 && purity >= 0.5, true
}

// NewTrackFilterFactory returns the track filters: size, all, none, truth,
// mva and recording. Accepted tracks weigh their number of hits.
func NewTrackFilterFactory() *filter.Factory[*Track] {
	accept := func(t *Track) float64 { return float64(t.Size()) }
	f := filter.NewFactory(filter.Config[*Track]{
		Stage:  "track",
		Accept: accept,
		Vars:   TrackVars,
		Truth:  TrackTruth,
	})
	f.Register("size", func(spec filter.Spec) (filter.Filter[*Track], error) {
		minHits := int(spec.Params.Get("min_hits", 7))
		return filter.Func[*Track](func(t *Track) float64 {
			if t.Size() < minHits {
				return math.NaN()
			}
			return accept(t)
		}), nil
	})
	return f
}

// Rejecter drops tracks the quality filter refuses.
type Rejecter struct {
	Filter filter.Filter[*Track]
	// DeleteRejected removes rejected tracks; otherwise they are kept masked
	// with a NaN quality.
	DeleteRejected bool
}

// Apply weighs every track and returns the surviving list and the number
// of rejected tracks. Empty tracks are always rejected.
func (r Rejecter) Apply(tracks []*Track) ([]*Track, int) {
	out := tracks[:0]
	rejected := 0
	for _, t := range tracks {
		w := math.NaN()
		if !t.Empty() {
			w = r.Filter.Weight(t)
		}
		if !math.IsNaN(w) {
			t.Quality = w
			out = append(out, t)
			continue
		}
		rejected++
		tracef("rejected %s", t)
		if r.DeleteRejected {
			continue
		}
		t.Quality = math.NaN()
		t.cell.SetFlag(automaton.FlagMasked)
		out = append(out, t)
	}
	diagf("rejected %d of %d tracks", rejected, len(tracks))
	return out, rejected
}
