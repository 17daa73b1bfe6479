package l3clusters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

func prepare(t *testing.T, ids ...l1wires.WireID) []l2hits.WireHit {
	t.Helper()
	geo := l1wires.MustDefaultService()
	records := make([]l2hits.HitRecord, len(ids))
	for i, id := range ids {
		dt := 50.0
		records[i] = l2hits.HitRecord{EWire: id.EWire(), ADC: 20, DriftTime: &dt}
	}
	hits, err := l2hits.NewPreparer(geo, l2hits.DefaultPreparerConfig()).Prepare(records)
	require.NoError(t, err)
	return hits
}

func w(sl, l, wire int) l1wires.WireID {
	return l1wires.WireID{ISuperLayer: sl, ILayer: l, IWire: wire}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(2, 3)
	uf.union(1, 3)
	assert.Equal(t, uf.find(0), uf.find(2))
	assert.NotEqual(t, uf.find(0), uf.find(4))
	assert.Equal(t, 4, uf.size[uf.find(3)])
}

func TestClusterizerGroupsNeighbors(t *testing.T) {
	topo := l1wires.MustDefaultTopology()
	hits := prepare(t,
		// chain in SL2 across layers 0..2
		w(2, 0, 10), w(2, 1, 10), w(2, 2, 11),
		// isolated hit in SL2
		w(2, 0, 50),
		// neighbor by wire number but in another superlayer
		w(3, 0, 10),
		// wrap-around pair in SL0
		w(0, 0, 0), w(0, 0, 159),
	)

	clusters := NewWireHitClusterizer(topo).Apply(hits)
	require.Len(t, clusters, 4)

	sizes := map[int][]int{}
	for _, c := range clusters {
		sizes[c.ISuperLayer] = append(sizes[c.ISuperLayer], c.Size())
		for i := 1; i < len(c.Hits); i++ {
			assert.True(t, c.Hits[i-1].ID.Less(c.Hits[i].ID), "hits sorted")
		}
	}
	assert.Equal(t, []int{2}, sizes[0])
	assert.Equal(t, []int{3, 1}, sizes[2])
	assert.Equal(t, []int{1}, sizes[3])

	// ordered by first hit
	for i := 1; i < len(clusters); i++ {
		assert.True(t, clusters[i-1].Hits[0].ID.Less(clusters[i].Hits[0].ID))
	}
}

func TestClusterizerSkipsBackground(t *testing.T) {
	topo := l1wires.MustDefaultTopology()
	d := l2hits.DefaultAsicBackgroundDetector()
	// ASIC 1 of SL4 layer 0 fires on every wire at the same time.
	var ids []l1wires.WireID
	for wire := 8; wire < 16; wire++ {
		ids = append(ids, w(4, 0, wire))
	}
	hits := prepare(t, ids...)
	require.Equal(t, 8, d.Apply(hits))

	assert.Empty(t, NewWireHitClusterizer(topo).Apply(hits))
}

func TestScreen(t *testing.T) {
	topo := l1wires.MustDefaultTopology()
	hits := prepare(t, w(2, 0, 10), w(2, 1, 10), w(2, 0, 50))
	clusters := NewWireHitClusterizer(topo).Apply(hits)
	require.Len(t, clusters, 2)

	flt, err := NewFilterFactory().Create(filter.Spec{Name: "cuts", Params: filter.Params{"min_size": 2}})
	require.NoError(t, err)

	assert.Equal(t, 1, Screen(clusters, flt))
	assert.False(t, clusters[0].Background)
	assert.Equal(t, 2.0, clusters[0].Weight)
	assert.True(t, clusters[1].Background)
	assert.True(t, math.IsNaN(clusters[1].Weight))
	assert.True(t, clusters[1].Hits[0].IsBackground())
	assert.False(t, clusters[0].Hits[0].IsBackground())
}

func TestClusterVars(t *testing.T) {
	topo := l1wires.MustDefaultTopology()
	hits := prepare(t, w(2, 0, 10), w(2, 1, 10), w(2, 2, 11))
	c := NewWireHitClusterizer(topo).Apply(hits)[0]

	v := Vars.Map(c)
	assert.Equal(t, 3.0, v["size"])
	assert.Equal(t, 60.0, v["total_adc"])
	assert.Equal(t, 3.0, v["layer_span"])
	assert.InDelta(t, 3.0/6.0, v["density"], 1e-12)
	assert.Equal(t, 0.0, v["drift_time_std"])
	assert.Equal(t, 2.0, v["superlayer"])
	assert.Len(t, Vars.Names(), len(v))

	signal, known := Truth(c)
	assert.False(t, known)
	assert.False(t, signal)
}
