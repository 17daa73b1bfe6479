package synthetic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// TrackParams are the helix parameters at the point of closest approach to
// the beam axis. Curvature is positive for counter-clockwise travel and D0
// is positive when the axis lies to the left of the track.
type TrackParams struct {
	Curvature float64 `json:"curvature"` // 1/cm
	Phi0      float64 `json:"phi0"`
	D0        float64 `json:"d0"` // cm
	TanLambda float64 `json:"tan_lambda"`
	Z0        float64 `json:"z0"` // cm
}

// Trajectory is the transverse circle with its support point at the perigee.
func (p TrackParams) Trajectory() fitting.Trajectory2D {
	left := r2.Vec{X: -math.Sin(p.Phi0), Y: math.Cos(p.Phi0)}
	t := fitting.NewLine(r2.Scale(-p.D0, left), p.Phi0)
	t.Curvature = p.Curvature
	return t
}

// Helix is the full trajectory of the track.
func (p TrackParams) Helix() fitting.Helix {
	return fitting.Helix{
		Circle: p.Trajectory(),
		SZ:     fitting.SZLine{Z0: p.Z0, TanLambda: p.TanLambda, Valid: true},
	}
}

func (p TrackParams) String() string {
	return fmt.Sprintf("track(κ=%.4g φ0=%.3f d0=%.3g tanλ=%.3f z0=%.3g)", p.Curvature, p.Phi0, p.D0, p.TanLambda, p.Z0)
}

// Config controls the simulation.
type Config struct {
	DriftSigma     float64 `validate:"gte=0"`      // cm, 0 disables smearing
	Efficiency     float64 `validate:"gt=0,lte=1"` // chance that a crossed cell records a hit
	NoiseHits      int     `validate:"gte=0"`      // per event
	ExactDriftTime bool    // write drift times next to the TDC counts
	MinADC         int     `validate:"gte=0"`
	MaxADC         int     `validate:"gtefield=MinADC"`

	// Ranges of RandomTrack.
	MinCurvature float64 `validate:"gte=0"`
	MaxCurvature float64 `validate:"gtefield=MinCurvature"`
	MaxD0        float64 `validate:"gte=0"`
	MaxZ0        float64 `validate:"gte=0"`
	MinTanLambda float64
	MaxTanLambda float64 `validate:"gtefield=MinTanLambda"`
}

// DefaultConfig returns clean events with tracks above roughly 0.3 GeV/c.
func DefaultConfig() Config {
	return Config{
		DriftSigma:     l1wires.DefaultDriftSigma,
		Efficiency:     1,
		ExactDriftTime: true,
		MinADC:         20,
		MaxADC:         200,
		MinCurvature:   0.001,
		MaxCurvature:   0.01,
		MaxD0:          0.5,
		MaxZ0:          2,
		MinTanLambda:   -0.6,
		MaxTanLambda:   0.9,
	}
}

var validate = validator.New()

// Validate checks the ranges of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("synthetic config: %w", err)
	}
	return nil
}

// Hit is one simulated wire crossing before smearing.
type Hit struct {
	Wire        l1wires.WireID
	Pos         r3.Vec // closest point of the track to the wire
	ArcLength   float64
	DriftLength float64 // true distance of the wire
	RL          l2hits.RLInfo
}

// Generator simulates events. It is not safe for concurrent use.
type Generator struct {
	geo   *l1wires.Service
	prep  *l2hits.Preparer
	cfg   Config
	src   rand.Source
	rng   *rand.Rand
	event int
}

// NewGenerator returns a generator over geo. prep converts drift times to
// TDC counts; nil uses the default preparer settings. Equal seeds give
// equal event sequences.
func NewGenerator(geo *l1wires.Service, prep *l2hits.Preparer, cfg Config, seed uint64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prep == nil {
		prep = l2hits.NewPreparer(geo, l2hits.DefaultPreparerConfig())
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Generator{geo: geo, prep: prep, cfg: cfg, src: src, rng: rand.New(src)}, nil
}

// TrackHits returns the true crossings of p in layer order: every cell the
// track passes between the inner and outer edge of a layer, ordered by arc
// length within the layer.
func (g *Generator) TrackHits(p TrackParams) []Hit {
	traj := p.Trajectory()
	layers := g.geo.Layers()
	var hits []Hit
	for i := range layers {
		l := &layers[i]
		s, ok := traj.ExitArcLength(l.Radius)
		if !ok {
			continue
		}
		hits = append(hits, g.crossLayer(traj, p, l, s)...)
	}
	return hits
}

// crossLayer returns the hits of layer l around the crossing at arc length
// s. A track that turns back inside the layer is followed up to s only.
func (g *Generator) crossLayer(traj fitting.Trajectory2D, p TrackParams, l *l1wires.Layer, s float64) []Hit {
	from, to := s, s
	if in, ok := traj.ExitArcLength(l.Radius - 0.5*l.CellHeight); ok && in < s {
		from = in
	}
	if out, ok := traj.ExitArcLength(l.Radius + 0.5*l.CellHeight); ok && out > s {
		to = out
	}
	lo, hi := g.cellCoordinate(traj, p, l, from), g.cellCoordinate(traj, p, l, to)
	n := float64(l.NWires)
	hi = lo + (hi - lo) - n*math.Round((hi-lo)/n)
	if hi < lo {
		lo, hi = hi, lo
	}

	z := p.Z0 + p.TanLambda*s
	var hits []Hit
	for c := int(math.Round(lo)); c <= int(math.Round(hi)); c++ {
		iw := c % l.NWires
		if iw < 0 {
			iw += l.NWires
		}
		id := l1wires.WireID{ISuperLayer: l.ISuperLayer, ILayer: l.ILayer, IWire: iw}
		if h, ok := g.closest(traj, p, id, z); ok && h.DriftLength <= l.MaxDriftLength() {
			hits = append(hits, h)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ArcLength < hits[j].ArcLength })
	return hits
}

// cellCoordinate is the azimuth of the track at arc length s in units of
// cells of l, so that wire i sits at i.
func (g *Generator) cellCoordinate(traj fitting.Trajectory2D, p TrackParams, l *l1wires.Layer, s float64) float64 {
	pos := traj.Position(s)
	z := p.Z0 + p.TanLambda*s
	// stereo wires turn by z·tanα/r in azimuth
	phi := math.Atan2(pos.Y, pos.X) - z*math.Tan(l.StereoAngle)/l.Radius
	return phi*float64(l.NWires)/(2*math.Pi) - l.Shift
}

// closest solves z = z0 + tanλ·s(wire(z)) by fixed-point iteration.
func (g *Generator) closest(traj fitting.Trajectory2D, p TrackParams, id l1wires.WireID, z float64) (Hit, bool) {
	var w r2.Vec
	var s float64
	for range 6 {
		w = g.geo.WirePosition(id, z)
		s = traj.ArcLength(w)
		z = p.Z0 + p.TanLambda*s
	}
	zMin, zMax := g.geo.ZRange(id)
	if s <= 0 || z < zMin || z > zMax {
		return Hit{}, false
	}
	d := traj.DistanceLeft(w)
	rl := l2hits.Right
	if d > 0 {
		rl = l2hits.Left
	}
	c := traj.Position(s)
	return Hit{
		Wire:        id,
		Pos:         r3.Vec{X: c.X, Y: c.Y, Z: z},
		ArcLength:   s,
		DriftLength: math.Abs(d),
		RL:          rl,
	}, true
}

// Record converts a crossing into a hit record of track trackID, smearing
// the drift length.
func (g *Generator) Record(trackID int, h Hit) l2hits.HitRecord {
	length := h.DriftLength
	if g.cfg.DriftSigma > 0 {
		length = math.Abs(distuv.Normal{Mu: length, Sigma: g.cfg.DriftSigma, Src: g.src}.Rand())
	}
	rl := int(h.RL)
	return g.record(h.Wire, length, &trackID, &rl)
}

func (g *Generator) record(id l1wires.WireID, length float64, trackID, rl *int) l2hits.HitRecord {
	t := g.geo.Drift.DriftTime(g.geo.ICLayer(id), length)
	r := l2hits.HitRecord{
		EWire:     id.EWire(),
		TDC:       g.prep.TDCForDriftTime(t),
		ADC:       g.cfg.MinADC + g.rng.IntN(g.cfg.MaxADC-g.cfg.MinADC+1),
		MCTrackID: trackID,
		MCRL:      rl,
	}
	if g.cfg.ExactDriftTime {
		r.DriftTime = &t
	}
	return r
}

// Noise returns n hits on random wires with random drift lengths, labelled
// as background.
func (g *Generator) Noise(n int) []l2hits.HitRecord {
	layers := g.geo.Layers()
	out := make([]l2hits.HitRecord, 0, n)
	for range n {
		l := &layers[g.rng.IntN(len(layers))]
		id := l1wires.WireID{ISuperLayer: l.ISuperLayer, ILayer: l.ILayer, IWire: g.rng.IntN(l.NWires)}
		bg := -1
		out = append(out, g.record(id, g.rng.Float64()*l.MaxDriftLength(), &bg, nil))
	}
	return out
}

// CrossTalk returns n background hits with equal drift time on consecutive
// wires of the ASIC reading out first.
func (g *Generator) CrossTalk(first l1wires.WireID, n int, driftTime float64) []l2hits.HitRecord {
	base := first.IWire - first.IWire%l1wires.WiresPerASIC
	out := make([]l2hits.HitRecord, 0, n)
	for i := range min(n, l1wires.WiresPerASIC) {
		id := l1wires.WireID{ISuperLayer: first.ISuperLayer, ILayer: first.ILayer, IWire: base + i}
		t := driftTime
		bg := -1
		out = append(out, l2hits.HitRecord{
			EWire:     id.EWire(),
			TDC:       g.prep.TDCForDriftTime(t),
			ADC:       g.cfg.MinADC,
			DriftTime: &t,
			MCTrackID: &bg,
		})
	}
	return out
}

// RandomTrack draws track parameters from the configured ranges.
func (g *Generator) RandomTrack() TrackParams {
	u := func(lo, hi float64) float64 { return lo + (hi-lo)*g.rng.Float64() }
	k := u(g.cfg.MinCurvature, g.cfg.MaxCurvature)
	if g.rng.IntN(2) == 0 {
		k = -k
	}
	return TrackParams{
		Curvature: k,
		Phi0:      u(-math.Pi, math.Pi),
		D0:        u(-g.cfg.MaxD0, g.cfg.MaxD0),
		TanLambda: u(g.cfg.MinTanLambda, g.cfg.MaxTanLambda),
		Z0:        u(-g.cfg.MaxZ0, g.cfg.MaxZ0),
	}
}

// Event simulates the given tracks plus the configured noise. Track i is
// labelled with truth id i.
func (g *Generator) Event(tracks []TrackParams) l2hits.Event {
	g.event++
	ev := l2hits.Event{Number: g.event}
	for i, p := range tracks {
		n := 0
		for _, h := range g.TrackHits(p) {
			if g.rng.Float64() >= g.cfg.Efficiency {
				continue
			}
			ev.Hits = append(ev.Hits, g.Record(i, h))
			n++
		}
		tracef("event %d: %s left %d hits", ev.Number, p, n)
	}
	ev.Hits = append(ev.Hits, g.Noise(g.cfg.NoiseHits)...)
	return ev
}

// RandomEvent simulates n random tracks.
func (g *Generator) RandomEvent(n int) (l2hits.Event, []TrackParams) {
	tracks := make([]TrackParams, n)
	for i := range tracks {
		tracks[i] = g.RandomTrack()
	}
	return g.Event(tracks), tracks
}
