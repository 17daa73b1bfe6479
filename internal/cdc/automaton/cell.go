package automaton

import "math"

// NoContinuation is the state of a cell that cannot be part of any path.
var NoContinuation = math.Inf(-1)

// CellFlag is a bit set of automaton cell markers.
type CellFlag uint8

const (
	// FlagAssigned marks cells whose state was computed in the last run.
	FlagAssigned CellFlag = 1 << iota
	// FlagStart marks cells that begin their best path.
	FlagStart
	// FlagCycle marks cells touched by a relation that closed a cycle.
	FlagCycle
	// FlagMasked marks cells blocked because they share items with taken cells.
	FlagMasked
	// FlagTaken marks cells consumed by an extracted path.
	FlagTaken
	// FlagBackground marks cells judged to be background.
	FlagBackground
)

// Cell is the per-node automaton state embedded in every graph node type
// (wire hits, facets, segments, segment pairs and triples, tracks).
type Cell struct {
	Weight float64 // intrinsic weight; NaN disables the node
	State  float64 // accumulated best path weight ending at this node

	flags  CellFlag
	pred   int32 // index of the best predecessor, -1 for none
	length int32 // number of nodes on the best path ending here
	predW  float64
}

// NewCell returns a cell with the given intrinsic weight.
func NewCell(weight float64) Cell {
	return Cell{Weight: weight, State: NoContinuation, pred: -1}
}

// HasFlag reports whether all bits of f are set.
func (c *Cell) HasFlag(f CellFlag) bool { return c.flags&f == f }

// HasAnyFlag reports whether any bit of f is set.
func (c *Cell) HasAnyFlag(f CellFlag) bool { return c.flags&f != 0 }

// SetFlag sets the bits of f.
func (c *Cell) SetFlag(f CellFlag) { c.flags |= f }

// ClearFlag clears the bits of f.
func (c *Cell) ClearFlag(f CellFlag) { c.flags &^= f }

// SetFlagTo sets or clears f.
func (c *Cell) SetFlagTo(f CellFlag, on bool) {
	if on {
		c.SetFlag(f)
	} else {
		c.ClearFlag(f)
	}
}

// Flags returns the raw flag bits.
func (c *Cell) Flags() CellFlag { return c.flags }

// IsTaken reports whether the cell was consumed by a path.
func (c *Cell) IsTaken() bool { return c.HasFlag(FlagTaken) }

// IsMasked reports whether the cell is blocked.
func (c *Cell) IsMasked() bool { return c.HasFlag(FlagMasked) }

// IsBackground reports whether the cell was judged background.
func (c *Cell) IsBackground() bool { return c.HasFlag(FlagBackground) }

// PathLength is the number of nodes on the best path ending at this cell.
func (c *Cell) PathLength() int { return int(c.length) }

// usable reports whether the cell may take part in a run.
func (c *Cell) usable() bool {
	return !c.HasAnyFlag(FlagTaken|FlagMasked) && !math.IsNaN(c.Weight) && !math.IsInf(c.Weight, -1)
}

// Node is implemented by every type the automaton can work on.
type Node interface {
	AutomatonCell() *Cell
}

// NodePtr constrains graph node types: comparable handles (pointers) to nodes.
type NodePtr interface {
	comparable
	Node
}

// TakenForwarder is implemented by nodes that share underlying items with
// other nodes; it is called when the node becomes part of an extracted path.
type TakenForwarder interface {
	ForwardTakenFlag()
}

// MaskReceiver is implemented by nodes that must be blocked once any of
// their underlying items was taken by another path.
type MaskReceiver interface {
	ReceiveMaskedFlag()
}

// ClearFlags clears f on every node.
func ClearFlags[T Node](nodes []T, f CellFlag) {
	for _, n := range nodes {
		n.AutomatonCell().ClearFlag(f)
	}
}
