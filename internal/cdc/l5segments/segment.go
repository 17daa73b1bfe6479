package l5segments

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// RecoHit2D is a hit with a resolved passage side and a reconstructed
// position in the transverse plane.
type RecoHit2D struct {
	l2hits.RLWireHit
	Pos       r2.Vec
	ArcLength float64
}

// Reversed returns the hit seen from the opposite travel direction.
func (h RecoHit2D) Reversed() RecoHit2D {
	return RecoHit2D{RLWireHit: h.RLWireHit.Reversed(), Pos: h.Pos, ArcLength: -h.ArcLength}
}

// RecoHit3D is a hit positioned in space along a track.
type RecoHit3D struct {
	l2hits.RLWireHit
	Pos         r3.Vec
	ArcLength2D float64
}

// Pos2D drops the height.
func (h RecoHit3D) Pos2D() r2.Vec { return r2.Vec{X: h.Pos.X, Y: h.Pos.Y} }

// Segment2D is an ordered run of hits of one superlayer following a common
// trajectory.
type Segment2D struct {
	Hits        []RecoHit2D
	ISuperLayer int
	Axial       bool
	Trajectory  fitting.Trajectory2D
	// Alias marks reversed copies emitted by the orienter.
	Alias bool

	cell automaton.Cell
}

// AutomatonCell exposes the segment's automaton state.
func (s *Segment2D) AutomatonCell() *automaton.Cell { return &s.cell }

// Size is the number of hits.
func (s *Segment2D) Size() int { return len(s.Hits) }

// Front is the first hit.
func (s *Segment2D) Front() RecoHit2D { return s.Hits[0] }

// Back is the last hit.
func (s *Segment2D) Back() RecoHit2D { return s.Hits[len(s.Hits)-1] }

// WireHits returns the underlying hits in order.
func (s *Segment2D) WireHits() []*l2hits.WireHit {
	out := make([]*l2hits.WireHit, len(s.Hits))
	for i, h := range s.Hits {
		out[i] = h.Hit
	}
	return out
}

// Observations returns the reco positions as fit input.
func (s *Segment2D) Observations() []fitting.Observation {
	return observations(s.Hits)
}

func observations(hits []RecoHit2D) []fitting.Observation {
	obs := make([]fitting.Observation, len(hits))
	for i, h := range hits {
		obs[i] = fitting.Observation{Pos: h.Pos, Variance: h.Hit.DriftVariance}
	}
	return obs
}

// Refit fits the trajectory and updates the arc lengths. A failed fit
// leaves the trajectory invalid and the arc lengths along the chords.
func (s *Segment2D) Refit() {
	traj, err := fitting.FitCircle(s.Observations())
	if err != nil {
		tracef("segment %s: %v", s, err)
		s.Trajectory = fitting.Trajectory2D{}
	} else {
		s.Trajectory = traj
	}
	s.updateArcLengths()
}

func (s *Segment2D) updateArcLengths() {
	if s.Trajectory.Valid {
		for i := range s.Hits {
			s.Hits[i].ArcLength = s.Trajectory.ArcLength(s.Hits[i].Pos)
		}
		return
	}
	sum := 0.0
	for i := range s.Hits {
		if i > 0 {
			sum += r2.Norm(r2.Sub(s.Hits[i].Pos, s.Hits[i-1].Pos))
		}
		s.Hits[i].ArcLength = sum
	}
}

// Reversed returns a copy travelled backwards: hits in reverse order with
// flipped passage sides and a reversed trajectory.
func (s *Segment2D) Reversed() *Segment2D {
	r := &Segment2D{
		Hits:        make([]RecoHit2D, len(s.Hits)),
		ISuperLayer: s.ISuperLayer,
		Axial:       s.Axial,
		Alias:       s.Alias,
		cell:        automaton.NewCell(s.cell.Weight),
	}
	for i, h := range s.Hits {
		r.Hits[len(s.Hits)-1-i] = h.Reversed()
	}
	if s.Trajectory.Valid {
		r.Trajectory = s.Trajectory.Reversed()
	}
	r.updateArcLengths()
	return r
}

// TravelDirection is the direction at the first hit: the fitted one, or the
// chord from the first to the last hit.
func (s *Segment2D) TravelDirection() r2.Vec {
	if s.Trajectory.Valid {
		return s.Trajectory.DirectionAt(s.Front().ArcLength)
	}
	d := r2.Sub(s.Back().Pos, s.Front().Pos)
	if n := r2.Norm(d); n > 0 {
		return r2.Scale(1/n, d)
	}
	return d
}

// Key identifies the hit sequence including its direction.
func (s *Segment2D) Key() string {
	var b strings.Builder
	for _, h := range s.Hits {
		fmt.Fprintf(&b, "%d,", h.Hit.ID.EWire())
	}
	return b.String()
}

func (s *Segment2D) reversedKey() string {
	var b strings.Builder
	for i := len(s.Hits) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%d,", s.Hits[i].Hit.ID.EWire())
	}
	return b.String()
}

// ForwardTakenFlag marks the segment's hits as used.
func (s *Segment2D) ForwardTakenFlag() {
	for _, h := range s.Hits {
		h.Hit.AutomatonCell().SetFlag(automaton.FlagTaken)
	}
}

// ReceiveMaskedFlag masks the segment when one of its hits is used.
func (s *Segment2D) ReceiveMaskedFlag() {
	for _, h := range s.Hits {
		if h.Hit.IsTaken() {
			s.cell.SetFlag(automaton.FlagMasked)
			return
		}
	}
}

// MCTrack returns the simulated track most hits belong to and the fraction
// of hits it holds. ok is false without truth.
func (s *Segment2D) MCTrack() (id int, purity float64, ok bool) {
	return MajorityTrack(s.WireHits())
}

func (s *Segment2D) String() string {
	return fmt.Sprintf("segment(sl=%d n=%d)", s.ISuperLayer, len(s.Hits))
}

// MajorityTrack returns the simulated track most of hits belong to and its
// share of all hits. ok is false when no hit carries truth.
func MajorityTrack(hits []*l2hits.WireHit) (id int, purity float64, ok bool) {
	counts := map[int]int{}
	known := 0
	for _, h := range hits {
		if h.Truth == nil {
			continue
		}
		known++
		counts[h.Truth.TrackID]++
	}
	if known == 0 {
		return 0, 0, false
	}
	ids := make([]int, 0, len(counts))
	for k := range counts {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	best := ids[0]
	for _, k := range ids[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, float64(counts[best]) / float64(len(hits)), true
}

var (
	_ automaton.TakenForwarder = (*Segment2D)(nil)
	_ automaton.MaskReceiver   = (*Segment2D)(nil)
)
