package l1wires

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestDefaultTopologyCounts(t *testing.T) {
	topo := MustDefaultTopology()

	assert.Equal(t, 9, topo.NSuperLayers())
	assert.Equal(t, 56, topo.NLayers())

	total := 0
	for _, l := range topo.Layers() {
		total += l.NWires
	}
	assert.Equal(t, 14336, total)

	for sl := 0; sl < topo.NSuperLayers(); sl++ {
		assert.Equal(t, sl%2 == 0, topo.IsAxialSuperLayer(sl), "superlayer %d", sl)
	}
}

func TestNewTopologyRejectsInconsistentParams(t *testing.T) {
	p := DefaultTopologyParams()
	p.Kinds = p.Kinds[:3]
	_, err := NewTopology(p)
	require.Error(t, err)

	p = DefaultTopologyParams()
	p.StereoAngles[0] = 0.05
	_, err = NewTopology(p)
	require.Error(t, err)

	p = DefaultTopologyParams()
	p.FirstLayerRadius[3] = 10
	_, err = NewTopology(p)
	require.Error(t, err)
}

func TestWireIDEncoding(t *testing.T) {
	id := WireID{ISuperLayer: 3, ILayer: 5, IWire: 201}
	assert.Equal(t, 3*4096+5*512+201, id.EWire())
	assert.Equal(t, id, WireIDFromEWire(id.EWire()))
	assert.True(t, WireID{ISuperLayer: 1}.Less(WireID{ISuperLayer: 1, IWire: 1}))
	assert.Equal(t, "SL3/L5/W201", id.String())
}

func TestResolve(t *testing.T) {
	topo := MustDefaultTopology()

	id, err := topo.Resolve(WireID{ISuperLayer: 8, ILayer: 5, IWire: 383}.EWire())
	require.NoError(t, err)
	assert.Equal(t, 383, id.IWire)

	for _, bad := range []int{
		-1,
		WireID{ISuperLayer: 0, ILayer: 0, IWire: 160}.EWire(), // wire out of range
		WireID{ISuperLayer: 1, ILayer: 6, IWire: 0}.EWire(),   // layer out of range
		WireID{ISuperLayer: 9, ILayer: 0, IWire: 0}.EWire(),   // superlayer out of range
	} {
		_, err := topo.Resolve(bad)
		assert.True(t, errors.Is(err, ErrUnknownWire), "eWire %d: %v", bad, err)
	}
}

func TestNeighborsAreSymmetric(t *testing.T) {
	topo := MustDefaultTopology()
	for _, id := range []WireID{
		{ISuperLayer: 0, ILayer: 0, IWire: 0},
		{ISuperLayer: 0, ILayer: 3, IWire: 159},
		{ISuperLayer: 2, ILayer: 2, IWire: 77},
		{ISuperLayer: 5, ILayer: 5, IWire: 287},
	} {
		nbs := topo.Neighbors(id)
		for _, n := range nbs {
			require.True(t, topo.Valid(n), "%s neighbor %s invalid", id, n)
			assert.True(t, topo.AreNeighbors(n, id), "%s -> %s not symmetric", id, n)
			assert.Equal(t, id.ISuperLayer, n.ISuperLayer)
		}
	}
}

func TestNeighborhoodShape(t *testing.T) {
	topo := MustDefaultTopology()

	inner := WireID{ISuperLayer: 2, ILayer: 0, IWire: 10}
	assert.Len(t, topo.Neighbors(inner), 4, "innermost layer of a superlayer has no inner neighbors")

	mid := WireID{ISuperLayer: 2, ILayer: 2, IWire: 10}
	nbs := topo.Neighbors(mid)
	require.Len(t, nbs, 6)
	// Layer 2 is unstaggered, layers 1 and 3 carry the half-cell shift.
	assert.Contains(t, nbs, WireID{ISuperLayer: 2, ILayer: 1, IWire: 9})
	assert.Contains(t, nbs, WireID{ISuperLayer: 2, ILayer: 1, IWire: 10})
	assert.Contains(t, nbs, WireID{ISuperLayer: 2, ILayer: 3, IWire: 9})
	assert.Contains(t, nbs, WireID{ISuperLayer: 2, ILayer: 3, IWire: 10})

	assert.False(t, topo.AreNeighbors(mid, mid))
	assert.False(t, topo.AreNeighbors(mid, WireID{ISuperLayer: 2, ILayer: 4, IWire: 10}))
	assert.False(t, topo.AreNeighbors(WireID{ISuperLayer: 1, ILayer: 5, IWire: 3}, WireID{ISuperLayer: 2, ILayer: 0, IWire: 3}))
}

func TestWirePositions(t *testing.T) {
	topo := MustDefaultTopology()

	axial := WireID{ISuperLayer: 0, ILayer: 0, IWire: 40}
	ref := topo.RefPosition(axial)
	assert.InDelta(t, 16.8, r2.Norm(ref), 1e-9)
	assert.InDelta(t, math.Pi/2, math.Atan2(ref.Y, ref.X), 1e-9)
	assert.Equal(t, ref, topo.WirePosition(axial, 100))

	stereo := WireID{ISuperLayer: 1, ILayer: 1, IWire: 0}
	p0 := topo.WirePosition(stereo, 0)
	p1 := topo.WirePosition(stereo, 100)
	shift := r2.Sub(p1, p0)
	// The skew is tangential: perpendicular to the radial direction.
	assert.InDelta(t, 0, r2.Dot(shift, p0), 1e-9)
	assert.InDelta(t, 100*math.Tan(0.0686), r2.Norm(shift), 1e-9)
}

func TestASIC(t *testing.T) {
	topo := MustDefaultTopology()
	a := topo.ASIC(WireID{ISuperLayer: 0, ILayer: 2, IWire: 15})
	b := topo.ASIC(WireID{ISuperLayer: 0, ILayer: 2, IWire: 8})
	c := topo.ASIC(WireID{ISuperLayer: 0, ILayer: 2, IWire: 16})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLinearDriftRelation(t *testing.T) {
	svc := MustDefaultService()
	id := WireID{ISuperLayer: 2, ILayer: 0, IWire: 0}
	layer := svc.Layer(id)

	l, v := svc.DriftLength(id, 100)
	assert.InDelta(t, 0.4, l, 1e-12)
	assert.InDelta(t, DefaultDriftSigma*DefaultDriftSigma, v, 1e-15)

	l, _ = svc.DriftLength(id, -5)
	assert.Equal(t, 0.0, l)

	l, _ = svc.DriftLength(id, 1e6)
	assert.InDelta(t, layer.MaxDriftLength(), l, 1e-12)

	assert.InDelta(t, 100, svc.Drift.DriftTime(layer.ICLayer, 0.4), 1e-9)

	_, err := NewLinearDriftRelation(svc.Topology, 0, 0.01)
	assert.Error(t, err)
}
