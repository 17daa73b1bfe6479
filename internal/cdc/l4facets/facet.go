package l4facets

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// Facet is an oriented triple of neighboring hits with a passage hypothesis
// for each.
type Facet struct {
	Start, Middle, End l2hits.RLWireHit

	StartToMiddle Tangent
	MiddleToEnd   Tangent
	StartToEnd    Tangent

	// Combination is the index of the RL combination in RLCombinations.
	Combination int

	cell automaton.Cell
}

// RLCombinations lists the hypotheses of (start, middle, end) in the fixed
// evaluation order.
var RLCombinations = [8][3]l2hits.RLInfo{
	{l2hits.Left, l2hits.Left, l2hits.Left},
	{l2hits.Left, l2hits.Left, l2hits.Right},
	{l2hits.Left, l2hits.Right, l2hits.Left},
	{l2hits.Left, l2hits.Right, l2hits.Right},
	{l2hits.Right, l2hits.Left, l2hits.Left},
	{l2hits.Right, l2hits.Left, l2hits.Right},
	{l2hits.Right, l2hits.Right, l2hits.Left},
	{l2hits.Right, l2hits.Right, l2hits.Right},
}

// NewFacet builds a facet and its tangents. ok is false when any of the
// three tangents does not exist.
func NewFacet(start, middle, end l2hits.RLWireHit) (*Facet, bool) {
	sm, ok1 := NewTangent(start, middle)
	me, ok2 := NewTangent(middle, end)
	se, ok3 := NewTangent(start, end)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	return &Facet{
		Start: start, Middle: middle, End: end,
		StartToMiddle: sm, MiddleToEnd: me, StartToEnd: se,
		cell: automaton.NewCell(0),
	}, true
}

// AutomatonCell exposes the facet's automaton state.
func (f *Facet) AutomatonCell() *automaton.Cell { return &f.cell }

// Kink is the angle between the start-middle and middle-end tangents.
func (f *Facet) Kink() float64 { return Angle(f.StartToMiddle.Dir, f.MiddleToEnd.Dir) }

// Hits returns the three hits in order.
func (f *Facet) Hits() [3]l2hits.RLWireHit { return [3]l2hits.RLWireHit{f.Start, f.Middle, f.End} }

// RecoPos returns the reconstructed position of hit i (0 start, 1 middle,
// 2 end): the touch point, or the mean of both touch points for the middle.
func (f *Facet) RecoPos(i int) r2.Vec {
	switch i {
	case 0:
		return f.StartToMiddle.From
	case 1:
		return r2.Scale(0.5, r2.Add(f.StartToMiddle.To, f.MiddleToEnd.From))
	}
	return f.MiddleToEnd.To
}

// ForwardTakenFlag marks the facet's hits as used.
func (f *Facet) ForwardTakenFlag() {
	for _, h := range f.Hits() {
		h.Hit.AutomatonCell().SetFlag(automaton.FlagTaken)
	}
}

// ReceiveMaskedFlag masks the facet when one of its hits is used.
func (f *Facet) ReceiveMaskedFlag() {
	for _, h := range f.Hits() {
		if h.Hit.IsTaken() {
			f.cell.SetFlag(automaton.FlagMasked)
			return
		}
	}
}

func (f *Facet) String() string {
	return fmt.Sprintf("facet(%s %s %s)", f.Start, f.Middle, f.End)
}

var (
	_ automaton.TakenForwarder = (*Facet)(nil)
	_ automaton.MaskReceiver   = (*Facet)(nil)
)
