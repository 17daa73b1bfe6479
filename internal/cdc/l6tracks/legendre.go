package l6tracks

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// DefaultRhoMax bounds the Legendre curvature axis (1/cm).
const DefaultRhoMax = 0.15

// LegendreFinder finds circles through the origin among the axial hits. In
// the conformal plane a hit's drift circle becomes a pair of sinusoids
//
//	ρ(θ) = x'·cos θ + y'·sin θ ± r'
//
// with x' = 2x/(x²+y²-l²), y' = 2y/(x²+y²-l²), r' = 2l/(x²+y²-l²), and a
// track of radius R whose center lies in direction θ becomes the point
// (θ, 1/R). The finder refines a quadtree over θ∈[0,π), ρ∈[-RhoMax, RhoMax]
// towards the box crossed by the most hits.
type LegendreFinder struct {
	Fitter   Fitter
	MaxLevel int // depth of the accepted boxes
	MinHits  int // least hits in a box and in a candidate
	RhoMax   float64
	// CollectDistance is the largest difference between a hit's drift
	// length and its wire's distance from a candidate circle for the hit to
	// join the candidate (cm).
	CollectDistance float64
}

type sinusoid struct {
	hit     int
	x, y, r float64 // r carries the sign of the branch
}

func (s sinusoid) at(theta float64) float64 {
	return s.x*math.Cos(theta) + s.y*math.Sin(theta) + s.r
}

// span is the range of s over [lo, hi].
func (s sinusoid) span(lo, hi float64) (float64, float64) {
	a, b := s.at(lo), s.at(hi)
	fmin, fmax := math.Min(a, b), math.Max(a, b)
	// the extremum sits at atan2(y, x) modulo π
	t := math.Atan2(s.y, s.x)
	for _, c := range []float64{t - math.Pi, t, t + math.Pi} {
		if c > lo && c < hi {
			v := s.at(c)
			fmin, fmax = math.Min(fmin, v), math.Max(fmax, v)
		}
	}
	return fmin, fmax
}

type quadBox struct {
	thetaLo, thetaHi float64
	rhoLo, rhoHi     float64
	level            int
	items            []sinusoid
	nHits            int
}

func newQuadBox(thetaLo, thetaHi, rhoLo, rhoHi float64, level int, parent []sinusoid) *quadBox {
	b := &quadBox{thetaLo: thetaLo, thetaHi: thetaHi, rhoLo: rhoLo, rhoHi: rhoHi, level: level}
	last := -1
	for _, s := range parent {
		lo, hi := s.span(thetaLo, thetaHi)
		if hi < rhoLo || lo > rhoHi {
			continue
		}
		b.items = append(b.items, s)
		if s.hit != last {
			b.nHits++
			last = s.hit
		}
	}
	return b
}

func (b *quadBox) children() []*quadBox {
	tm, rm := 0.5*(b.thetaLo+b.thetaHi), 0.5*(b.rhoLo+b.rhoHi)
	kids := []*quadBox{
		newQuadBox(b.thetaLo, tm, b.rhoLo, rm, b.level+1, b.items),
		newQuadBox(tm, b.thetaHi, b.rhoLo, rm, b.level+1, b.items),
		newQuadBox(b.thetaLo, tm, rm, b.rhoHi, b.level+1, b.items),
		newQuadBox(tm, b.thetaHi, rm, b.rhoHi, b.level+1, b.items),
	}
	sort.SliceStable(kids, func(i, j int) bool { return kids[i].nHits > kids[j].nHits })
	return kids
}

// best returns the deepest box with the most hits, at least MinHits.
func (f LegendreFinder) best(root *quadBox) *quadBox {
	var found *quadBox
	var walk func(b *quadBox)
	walk = func(b *quadBox) {
		if b.nHits < f.MinHits || (found != nil && b.nHits <= found.nHits) {
			return
		}
		if b.level >= f.MaxLevel {
			found = b
			return
		}
		for _, k := range b.children() {
			walk(k)
		}
	}
	walk(root)
	return found
}

// Find returns the candidates found among hits. Background hits and
// stereo hits are ignored. Each hit joins at most one candidate.
func (f LegendreFinder) Find(hits []*l2hits.WireHit) []*Track {
	rhoMax := f.RhoMax
	if rhoMax <= 0 {
		rhoMax = DefaultRhoMax
	}
	var axial []*l2hits.WireHit
	for _, h := range hits {
		if !h.IsBackground() && f.Fitter.Topology.IsAxialSuperLayer(h.ISuperLayer()) {
			axial = append(axial, h)
		}
	}
	used := make([]bool, len(axial))

	var tracks []*Track
	for {
		var items []sinusoid
		for i, h := range axial {
			if used[i] {
				continue
			}
			x, y, l := h.RefPos.X, h.RefPos.Y, h.DriftLength
			d := x*x + y*y - l*l
			if d <= 0 {
				continue
			}
			items = append(items,
				sinusoid{hit: i, x: 2 * x / d, y: 2 * y / d, r: 2 * l / d},
				sinusoid{hit: i, x: 2 * x / d, y: 2 * y / d, r: -2 * l / d})
		}
		leaf := f.best(newQuadBox(0, math.Pi, -rhoMax, rhoMax, 0, items))
		if leaf == nil {
			break
		}
		theta, rho := 0.5*(leaf.thetaLo+leaf.thetaHi), 0.5*(leaf.rhoLo+leaf.rhoHi)
		t, collected := f.candidate(axial, used, leaf, originCircle(theta, rho))
		if t == nil {
			// consume the leaf so the search moves on
			for _, s := range leaf.items {
				used[s.hit] = true
			}
			continue
		}
		for _, i := range collected {
			used[i] = true
		}
		tracks = append(tracks, t)
	}
	diagf("legendre: %d axial hits -> %d candidates", len(axial), len(tracks))
	return tracks
}

// originCircle is the trajectory leaving the origin on the circle with
// center direction theta and signed inverse radius rho.
func originCircle(theta, rho float64) fitting.Trajectory2D {
	t := fitting.NewLine(r2.Vec{}, theta-math.Pi/2)
	t.Curvature = rho
	return t
}

// candidate fits the leaf hits, then three times collects the free hits near
// the circle and refits. It returns the track and the indices of its hits.
func (f LegendreFinder) candidate(axial []*l2hits.WireHit, used []bool, leaf *quadBox, seed fitting.Trajectory2D) (*Track, []int) {
	var idx []int
	for _, s := range leaf.items {
		if len(idx) == 0 || idx[len(idx)-1] != s.hit {
			idx = append(idx, s.hit)
		}
	}
	pick := func(idx []int) []*l2hits.WireHit {
		out := make([]*l2hits.WireHit, len(idx))
		for k, i := range idx {
			out[k] = axial[i]
		}
		return out
	}

	circle := outgoing(seed, pick(idx))
	for range 3 {
		t := f.place(pick(idx), circle)
		if err := f.Fitter.Fit(t); err != nil {
			tracef("legendre candidate: %v", err)
			return nil, nil
		}
		circle = t.Helix.Circle
		idx = f.collect(axial, used, circle)
		if len(idx) < f.MinHits {
			return nil, nil
		}
	}
	t := f.place(pick(idx), circle)
	if err := f.Fitter.Fit(t); err != nil {
		return nil, nil
	}
	Normalize(t)
	return t, idx
}

// collect returns the free hits whose drift circle touches c after its
// perigee.
func (f LegendreFinder) collect(axial []*l2hits.WireHit, used []bool, c fitting.Trajectory2D) []int {
	perigee := c.ArcLength(r2.Vec{})
	var idx []int
	for i, h := range axial {
		if used[i] || c.ArcLength(h.RefPos) < perigee {
			continue
		}
		if math.Abs(math.Abs(c.DistanceLeft(h.RefPos))-h.DriftLength) <= f.CollectDistance {
			idx = append(idx, i)
		}
	}
	return idx
}

// outgoing reverses seed when most hits lie behind its start.
func outgoing(seed fitting.Trajectory2D, hits []*l2hits.WireHit) fitting.Trajectory2D {
	ahead := 0
	for _, h := range hits {
		if seed.ArcLength(h.RefPos) > 0 {
			ahead++
		} else {
			ahead--
		}
	}
	if ahead < 0 {
		return seed.Reversed()
	}
	return seed
}

// place positions hits against traj, sorted by arc length.
func (f LegendreFinder) place(hits []*l2hits.WireHit, traj fitting.Trajectory2D) *Track {
	reco := make([]l5segments.RecoHit3D, len(hits))
	for i, h := range hits {
		reco[i] = AxialHit(h, PassageSide(traj, h.RefPos), traj)
	}
	sort.SliceStable(reco, func(i, j int) bool { return reco[i].ArcLength2D < reco[j].ArcLength2D })
	return NewTrack(OriginLegendre, reco)
}
