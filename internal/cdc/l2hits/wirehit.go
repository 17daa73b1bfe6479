package l2hits

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
)

// RLInfo is the right-left passage hypothesis of a hit. Right means the
// wire lies to the right of the trajectory.
type RLInfo int8

const (
	Left    RLInfo = -1
	Unknown RLInfo = 0
	Right   RLInfo = 1
)

// Reversed is the hypothesis seen by a trajectory travelling backwards.
func (rl RLInfo) Reversed() RLInfo { return -rl }

func (rl RLInfo) String() string {
	switch rl {
	case Left:
		return "L"
	case Right:
		return "R"
	}
	return "?"
}

// Truth is the simulation record attached to a hit, when available.
type Truth struct {
	TrackID int    // negative for background hits
	RL      RLInfo // true passage side
}

// IsBackground reports whether the hit was not produced by a simulated track.
func (t *Truth) IsBackground() bool { return t.TrackID < 0 }

// WireHit is a prepared hit of one event.
type WireHit struct {
	ID            l1wires.WireID
	ICLayer       int
	ASIC          l1wires.AsicID
	RefPos        r2.Vec // wire position at z = 0
	TDC           int
	ADC           int
	DriftTime     float64 // ns
	DriftLength   float64 // cm
	DriftVariance float64 // cm²
	// ASICBackground marks hits flagged as cross-talk by the ASIC detector.
	ASICBackground bool
	Truth          *Truth

	cell automaton.Cell
}

// AutomatonCell exposes the hit's flags (background, taken, masked).
func (h *WireHit) AutomatonCell() *automaton.Cell { return &h.cell }

// IsBackground reports whether the hit was flagged as background.
func (h *WireHit) IsBackground() bool { return h.cell.IsBackground() }

// IsTaken reports whether the hit was used by an extracted path.
func (h *WireHit) IsTaken() bool { return h.cell.IsTaken() }

// ISuperLayer is a shortcut for h.ID.ISuperLayer.
func (h *WireHit) ISuperLayer() int { return h.ID.ISuperLayer }

func (h *WireHit) String() string {
	return fmt.Sprintf("%s(t=%.1f,l=%.3f)", h.ID, h.DriftTime, h.DriftLength)
}

// Pointers returns pointers into the event's hit slice.
func Pointers(hits []WireHit) []*WireHit {
	out := make([]*WireHit, len(hits))
	for i := range hits {
		out[i] = &hits[i]
	}
	return out
}

// RLWireHit is a wire hit with a passage hypothesis.
type RLWireHit struct {
	Hit *WireHit
	RL  RLInfo
}

// SignedDriftLength is the drift length signed by the RL hypothesis.
func (h RLWireHit) SignedDriftLength() float64 { return float64(h.RL) * h.Hit.DriftLength }

// Reversed returns the same hit with the opposite hypothesis.
func (h RLWireHit) Reversed() RLWireHit { return RLWireHit{Hit: h.Hit, RL: h.RL.Reversed()} }

func (h RLWireHit) String() string { return h.Hit.ID.String() + h.RL.String() }
