package l6tracks

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// Origin tags how a track candidate was found.
type Origin string

const (
	OriginSegments Origin = "segments" // path of segment triples
	OriginAxial    Origin = "axial"    // path of axial segment pairs
	OriginSingle   Origin = "single"   // one long axial segment
	OriginLegendre Origin = "legendre"
	OriginMerged   Origin = "merged"
)

// Track is a track candidate: hits in travel order and the helix through
// them. Arc lengths are measured from the helix support point.
type Track struct {
	Hits    []l5segments.RecoHit3D
	Helix   fitting.Helix
	Quality float64 // track filter weight, NaN once rejected
	Origin  Origin

	cell automaton.Cell
}

// NewTrack returns an unfitted track over hits.
func NewTrack(origin Origin, hits []l5segments.RecoHit3D) *Track {
	return &Track{Hits: hits, Origin: origin, cell: automaton.NewCell(0)}
}

// AutomatonCell exposes the track's automaton state.
func (t *Track) AutomatonCell() *automaton.Cell { return &t.cell }

// Size is the number of hits.
func (t *Track) Size() int { return len(t.Hits) }

// Empty reports whether the cleanup removed every hit.
func (t *Track) Empty() bool { return len(t.Hits) == 0 }

// Is3D reports whether the track has a longitudinal fit.
func (t *Track) Is3D() bool { return t.Helix.SZ.Valid }

// Rejected reports whether the rejecter kept the track only as masked.
func (t *Track) Rejected() bool { return t.cell.IsMasked() }

// WireHits returns the underlying hits in order.
func (t *Track) WireHits() []*l2hits.WireHit {
	out := make([]*l2hits.WireHit, len(t.Hits))
	for i, h := range t.Hits {
		out[i] = h.Hit
	}
	return out
}

// ISuperLayers returns the sorted superlayers the track crosses.
func (t *Track) ISuperLayers() []int {
	var sls []int
	for _, h := range t.Hits {
		sls = append(sls, h.Hit.ISuperLayer())
	}
	slices.Sort(sls)
	return slices.Compact(sls)
}

// ForwardTakenFlag marks the track's hits as used.
func (t *Track) ForwardTakenFlag() {
	for _, h := range t.Hits {
		h.Hit.AutomatonCell().SetFlag(automaton.FlagTaken)
	}
}

// MCTrack returns the simulated track most hits belong to and its share.
func (t *Track) MCTrack() (id int, purity float64, ok bool) {
	return l5segments.MajorityTrack(t.WireHits())
}

// Reversed returns a copy travelled backwards.
func (t *Track) Reversed() *Track {
	r := &Track{
		Hits:    make([]l5segments.RecoHit3D, len(t.Hits)),
		Helix:   t.Helix.Reversed(),
		Quality: t.Quality,
		Origin:  t.Origin,
		cell:    automaton.NewCell(t.cell.Weight),
	}
	for i, h := range t.Hits {
		h.RLWireHit = h.RLWireHit.Reversed()
		h.ArcLength2D = -h.ArcLength2D
		r.Hits[len(t.Hits)-1-i] = h
	}
	return r
}

// Key identifies the hit sequence including its direction.
func (t *Track) Key() string {
	var b strings.Builder
	for _, h := range t.Hits {
		fmt.Fprintf(&b, "%d,", h.Hit.ID.EWire())
	}
	return b.String()
}

func (t *Track) String() string {
	return fmt.Sprintf("track(%s n=%d %s)", t.Origin, len(t.Hits), t.Helix.Circle)
}

// Perigee are the helix parameters at the point of closest approach to the
// beam axis.
type Perigee struct {
	Curvature float64 `json:"curvature"`
	Phi0      float64 `json:"phi0"`
	D0        float64 `json:"d0"`
	TanLambda float64 `json:"tan_lambda"`
	Z0        float64 `json:"z0"`
}

// Perigee evaluates the helix at the perigee. Height parameters are zero
// for 2D tracks.
func (t *Track) Perigee() Perigee {
	c := t.Helix.Circle
	p := Perigee{Curvature: c.Curvature, Phi0: c.Phi0(), D0: c.Impact()}
	if t.Is3D() {
		p.TanLambda = t.Helix.SZ.TanLambda
		p.Z0 = t.Helix.SZ.Z(c.ArcLength(r2.Vec{}))
	}
	return p
}

// AxialHit positions an axial hit on the side rl of its wire, towards the
// closest point of traj.
func AxialHit(h *l2hits.WireHit, rl l2hits.RLInfo, traj fitting.Trajectory2D) l5segments.RecoHit3D {
	dir := r2.Sub(traj.Closest(h.RefPos), h.RefPos)
	pos := h.RefPos
	if n := r2.Norm(dir); n > 0 {
		pos = r2.Add(pos, r2.Scale(h.DriftLength/n, dir))
	}
	return l5segments.RecoHit3D{
		RLWireHit:   l2hits.RLWireHit{Hit: h, RL: rl},
		Pos:         r3.Vec{X: pos.X, Y: pos.Y},
		ArcLength2D: traj.ArcLength(pos),
	}
}

// PassageSide is the RL of a hit whose wire lies at signed distance
// DistanceLeft from the trajectory.
func PassageSide(traj fitting.Trajectory2D, wire r2.Vec) l2hits.RLInfo {
	if traj.DistanceLeft(wire) > 0 {
		return l2hits.Left
	}
	return l2hits.Right
}

// Fitter refits tracks against the chamber geometry.
type Fitter struct {
	Topology *l1wires.Topology
}

// Fit fits the circle over the axial hits, places the stereo hits on it,
// fits the longitudinal line through them and lifts the axial hits onto
// that line. Stereo hits that cannot be placed are dropped. When the circle
// fit fails the track is left untouched and the error returned.
func (f Fitter) Fit(t *Track) error {
	var obs []fitting.Observation
	for _, h := range t.Hits {
		if f.Topology.IsAxialSuperLayer(h.Hit.ISuperLayer()) {
			obs = append(obs, fitting.Observation{Pos: h.Pos2D(), Variance: h.Hit.DriftVariance})
		}
	}
	circle, err := fitting.FitCircle(obs)
	if err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}

	kept := t.Hits[:0]
	var stereo []l5segments.RecoHit3D
	for _, h := range t.Hits {
		if f.Topology.IsAxialSuperLayer(h.Hit.ISuperLayer()) {
			h.ArcLength2D = circle.ArcLength(h.Pos2D())
			kept = append(kept, h)
			continue
		}
		placed := l5segments.Reconstruct3D(f.Topology, circle, []l5segments.RecoHit2D{{RLWireHit: h.RLWireHit}})
		if len(placed) == 0 {
			tracef("%s: dropping stereo hit %s", t, h.RLWireHit)
			continue
		}
		kept = append(kept, placed[0])
		stereo = append(stereo, placed[0])
	}
	t.Hits = kept

	t.Helix = fitting.Helix{Circle: circle}
	if sz, err := l5segments.FitSZ(f.Topology, stereo); err == nil {
		t.Helix.SZ = sz
		for i := range t.Hits {
			if f.Topology.IsAxialSuperLayer(t.Hits[i].Hit.ISuperLayer()) {
				t.Hits[i].Pos.Z = sz.Z(t.Hits[i].ArcLength2D)
			}
		}
	}
	return nil
}

// Normalize sorts the hits by arc length along the circle and moves the
// support point to the first hit, so arc lengths start at zero.
func Normalize(t *Track) {
	if !t.Helix.Circle.Valid || len(t.Hits) == 0 {
		return
	}
	c := t.Helix.Circle
	for i := range t.Hits {
		t.Hits[i].ArcLength2D = c.ArcLength(t.Hits[i].Pos2D())
	}
	sort.SliceStable(t.Hits, func(i, j int) bool { return t.Hits[i].ArcLength2D < t.Hits[j].ArcLength2D })
	s0 := t.Hits[0].ArcLength2D
	t.Helix = t.Helix.Moved(s0)
	for i := range t.Hits {
		t.Hits[i].ArcLength2D -= s0
	}
}

// Refit fits and normalizes t. Failures are logged and leave the previous
// helix in place.
func (f Fitter) Refit(t *Track) {
	if err := f.Fit(t); err != nil {
		tracef("refit: %v", err)
	}
	Normalize(t)
}
