package l3clusters

import (
	"math"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// Cluster is a connected group of hits within one superlayer.
type Cluster struct {
	Hits        []*l2hits.WireHit // sorted by wire id
	ISuperLayer int
	Background  bool
	Weight      float64 // filter weight, NaN when rejected
}

// Size returns the number of hits.
func (c *Cluster) Size() int { return len(c.Hits) }

// Clusterer groups the hits of one event.
type Clusterer interface {
	Apply(hits []l2hits.WireHit) []*Cluster
}

// WireHitClusterizer joins hits on neighboring wires with a union-find over
// the event's hit slice.
type WireHitClusterizer struct {
	topo *l1wires.Topology
}

var _ Clusterer = (*WireHitClusterizer)(nil)

// NewWireHitClusterizer returns a clusterizer using topo's neighborhoods.
func NewWireHitClusterizer(topo *l1wires.Topology) *WireHitClusterizer {
	return &WireHitClusterizer{topo: topo}
}

// Apply returns the clusters of the non-background hits. Clusters are
// ordered by their first hit; hits inside a cluster by wire id.
func (c *WireHitClusterizer) Apply(hits []l2hits.WireHit) []*Cluster {
	index := make(map[l1wires.WireID]int, len(hits))
	for i := range hits {
		if hits[i].IsBackground() {
			continue
		}
		index[hits[i].ID] = i
	}

	uf := newUnionFind(len(hits))
	for i := range hits {
		if hits[i].IsBackground() {
			continue
		}
		for _, n := range c.topo.Neighbors(hits[i].ID) {
			if j, ok := index[n]; ok {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int]*Cluster)
	var clusters []*Cluster
	// hits are sorted, so clusters and their hits come out in wire order
	for i := range hits {
		if hits[i].IsBackground() {
			continue
		}
		root := uf.find(i)
		cl, ok := byRoot[root]
		if !ok {
			cl = &Cluster{ISuperLayer: hits[i].ID.ISuperLayer, Weight: math.NaN()}
			byRoot[root] = cl
			clusters = append(clusters, cl)
		}
		cl.Hits = append(cl.Hits, &hits[i])
	}
	diagf("%d hits -> %d clusters", len(hits), len(clusters))
	return clusters
}

// unionFind is a disjoint set forest over indices with path compression and
// union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	root := i
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[i] != root {
		uf.parent[i], i = root, uf.parent[i]
	}
	return root
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
