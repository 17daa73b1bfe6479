package l1wires

import "math"

// Neighbors returns the primary neighborhood of a wire in a fixed order:
// counter-clockwise and clockwise in the same layer, then the two closest
// wires of the inner layer and the two closest wires of the outer layer.
// Layers of other superlayers are never neighbors.
func (t *Topology) Neighbors(id WireID) []WireID {
	l := t.Layer(id)
	if l == nil {
		return nil
	}
	out := make([]WireID, 0, 6)
	out = append(out,
		WireID{ISuperLayer: id.ISuperLayer, ILayer: id.ILayer, IWire: wrap(id.IWire+1, l.NWires)},
		WireID{ISuperLayer: id.ISuperLayer, ILayer: id.ILayer, IWire: wrap(id.IWire-1, l.NWires)},
	)
	for _, dl := range []int{-1, 1} {
		other := t.Layer(WireID{ISuperLayer: id.ISuperLayer, ILayer: id.ILayer + dl})
		if other == nil {
			continue
		}
		a, b := closestPair(float64(id.IWire)+l.Shift, other)
		out = append(out,
			WireID{ISuperLayer: id.ISuperLayer, ILayer: id.ILayer + dl, IWire: a},
			WireID{ISuperLayer: id.ISuperLayer, ILayer: id.ILayer + dl, IWire: b},
		)
	}
	return out
}

// closestPair returns the two wires of layer o that straddle the half-cell
// position p (wire index plus stagger) of a wire in an adjacent layer.
func closestPair(p float64, o *Layer) (int, int) {
	// For unstaggered layers this yields the aligned wire and its ccw partner.
	lo := int(math.Floor(p - o.Shift))
	return wrap(lo, o.NWires), wrap(lo+1, o.NWires)
}

// AreNeighbors reports whether b is in the primary neighborhood of a.
func (t *Topology) AreNeighbors(a, b WireID) bool {
	if a.ISuperLayer != b.ISuperLayer || a == b {
		return false
	}
	dl := a.ILayer - b.ILayer
	if dl < -1 || dl > 1 {
		return false
	}
	for _, n := range t.Neighbors(a) {
		if n == b {
			return true
		}
	}
	return false
}

// IsAdjacent is AreNeighbors under the name used by the geometry service.
func (t *Topology) IsAdjacent(a, b WireID) bool { return t.AreNeighbors(a, b) }

// IsOnWire reports whether two hits sit on the same wire.
func IsOnWire(a, b WireID) bool { return a == b }

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
