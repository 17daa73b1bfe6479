package l5segments

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l3clusters"
	"github.com/banshee-data/cdctrack/internal/cdc/l4facets"
	"github.com/banshee-data/cdctrack/internal/cdc/synthetic"
)

func create[T any](t *testing.T, f *filter.Factory[T], name string) filter.Filter[T] {
	t.Helper()
	flt, err := f.Create(filter.Spec{Name: name})
	require.NoError(t, err)
	return flt
}

// buildSegments runs clustering, facet creation with the named facet filter
// and the facet automaton.
func buildSegments(t *testing.T, topo *l1wires.Topology, hits []l2hits.WireHit, facetFilter string) []*Segment2D {
	t.Helper()
	clusters := l3clusters.NewWireHitClusterizer(topo).Apply(hits)
	creator, err := l4facets.NewFacetCreator(topo, l4facets.ModeAll, create(t, l4facets.NewFilterFactory(), facetFilter))
	require.NoError(t, err)
	facets := creator.Apply(clusters)
	rels := l4facets.NewRelationBuilder(create(t, l4facets.NewRelationFilterFactory(), "all"), 0).Build(facets)
	paths, _ := automaton.NewMultipassCellularPathFinder[*l4facets.Facet]().Apply(facets, rels)
	segs := NewSegmentCreator(topo).Apply(paths)
	automaton.ClearFlags(l2hits.Pointers(hits), automaton.FlagTaken)
	return segs
}

func simulate(t *testing.T, tracks ...synthetic.TrackParams) (*l1wires.Service, []l2hits.WireHit) {
	t.Helper()
	geo := l1wires.MustDefaultService()
	cfg := synthetic.DefaultConfig()
	cfg.DriftSigma = 0
	gen, err := synthetic.NewGenerator(geo, nil, cfg, 1)
	require.NoError(t, err)
	hits, err := l2hits.NewPreparer(geo, l2hits.DefaultPreparerConfig()).Prepare(gen.Event(tracks).Hits)
	require.NoError(t, err)
	return geo, hits
}

var wireCounter int

// pointSegment places one hit of superlayer sl at each point.
func pointSegment(sl int, pts []r2.Vec) *Segment2D {
	s := &Segment2D{ISuperLayer: sl, Axial: sl%2 == 0}
	for i, p := range pts {
		wireCounter++
		h := &l2hits.WireHit{
			ID:            l1wires.WireID{ISuperLayer: sl, ILayer: i % 6, IWire: wireCounter % 160},
			RefPos:        p,
			DriftVariance: 1e-4,
		}
		s.Hits = append(s.Hits, RecoHit2D{RLWireHit: l2hits.RLWireHit{Hit: h, RL: l2hits.Right}, Pos: p})
	}
	s.Refit()
	return s
}

func radial(from, to float64, phi float64, n int) []r2.Vec {
	pts := make([]r2.Vec, n)
	for i := range pts {
		r := from + (to-from)*float64(i)/float64(n-1)
		pts[i] = r2.Vec{X: r * math.Cos(phi), Y: r * math.Sin(phi)}
	}
	return pts
}

func TestSegmentFromFacetChain(t *testing.T) {
	topo := l1wires.MustDefaultTopology()
	var records []l2hits.HitRecord
	for l, first := range []int{0, 3, 7, 10, 14} {
		for i := 0; i < 4; i++ {
			dt := 50.0
			id := l1wires.WireID{ISuperLayer: 2, ILayer: l, IWire: first + i}
			records = append(records, l2hits.HitRecord{EWire: id.EWire(), ADC: 20, DriftTime: &dt})
		}
	}
	hits, err := l2hits.NewPreparer(l1wires.MustDefaultService(), l2hits.DefaultPreparerConfig()).Prepare(records)
	require.NoError(t, err)

	segs := buildSegments(t, topo, hits, "feasible")
	require.Len(t, segs, 1)
	s := segs[0]
	assert.Equal(t, 20, s.Size())
	assert.Equal(t, 2, s.ISuperLayer)
	assert.True(t, s.Axial)
	assert.Equal(t, 20.0, s.AutomatonCell().Weight)

	seen := map[*l2hits.WireHit]bool{}
	for _, h := range s.Hits {
		assert.NotEqual(t, l2hits.Unknown, h.RL)
		assert.False(t, seen[h.Hit], "hit %s twice", h.Hit)
		seen[h.Hit] = true
		// reco positions average touch points on the drift circle
		assert.LessOrEqual(t, r2.Norm(r2.Sub(h.Pos, h.Hit.RefPos)), h.Hit.DriftLength+1e-9)
	}
	assert.Less(t, s.Front().ArcLength, s.Back().ArcLength)
}

func TestSegmentReversed(t *testing.T) {
	s := pointSegment(0, radial(17, 24, 0.3, 8))
	r := s.Reversed()

	require.Equal(t, s.Size(), r.Size())
	for i := range s.Hits {
		j := s.Size() - 1 - i
		assert.Same(t, s.Hits[i].Hit, r.Hits[j].Hit)
		assert.Equal(t, s.Hits[i].RL.Reversed(), r.Hits[j].RL)
		assert.Equal(t, s.Hits[i].Pos, r.Hits[j].Pos)
	}
	assert.Equal(t, s.reversedKey(), r.Key())
	assert.Equal(t, s.Key(), r.Reversed().Key())
	assert.Less(t, r.Front().ArcLength, r.Back().ArcLength)
	assert.InDelta(t, -1, r2.Dot(s.TravelDirection(), r.TravelDirection()), 1e-6)
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation("curling")
	require.NoError(t, err)
	assert.Equal(t, OrientationCurling, o)

	_, err = ParseOrientation("sideways")
	assert.True(t, errors.Is(err, ErrInvalidOrientation))
}

func TestOrienter(t *testing.T) {
	wall := l1wires.MustDefaultTopology().OuterWallRadius()
	inwards := func() *Segment2D { return pointSegment(0, radial(24, 17, 1.0, 8)) }
	keys := func(segs []*Segment2D) []string {
		out := make([]string, len(segs))
		for i, s := range segs {
			out[i] = s.Key()
		}
		return out
	}

	t.Run("none", func(t *testing.T) {
		s := inwards()
		out := SegmentOrienter{Orientation: OrientationNone, OuterWallRadius: wall}.Apply([]*Segment2D{s})
		require.Len(t, out, 1)
		assert.Same(t, s, out[0])
	})
	t.Run("outwards", func(t *testing.T) {
		o := SegmentOrienter{Orientation: OrientationOutwards, OuterWallRadius: wall}
		out := o.Apply([]*Segment2D{inwards()})
		require.Len(t, out, 1)
		assert.Less(t, r2.Norm(out[0].Front().Pos), r2.Norm(out[0].Back().Pos))
		assert.Equal(t, keys(out), keys(o.Apply(out)))
	})
	t.Run("downwards", func(t *testing.T) {
		o := SegmentOrienter{Orientation: OrientationDownwards, OuterWallRadius: wall}
		out := o.Apply([]*Segment2D{pointSegment(2, radial(37, 45, 1.2, 6))})
		require.Len(t, out, 1)
		assert.Greater(t, out[0].Front().Pos.Y, out[0].Back().Pos.Y)
		assert.Equal(t, keys(out), keys(o.Apply(out)))
	})
	t.Run("symmetric marks aliases", func(t *testing.T) {
		o := SegmentOrienter{Orientation: OrientationSymmetric, OuterWallRadius: wall}
		out := o.Apply([]*Segment2D{inwards(), pointSegment(2, radial(37, 45, 2.0, 6))})
		require.Len(t, out, 4)
		assert.Equal(t, []bool{false, true, false, true},
			[]bool{out[0].Alias, out[1].Alias, out[2].Alias, out[3].Alias})
		assert.Equal(t, out[0].reversedKey(), out[1].Key())

		again := o.Apply(out)
		assert.Equal(t, keys(out), keys(again))
	})
	t.Run("curling doubles curlers only", func(t *testing.T) {
		// circle of radius 10 through the origin region
		var arc []r2.Vec
		for i := 0; i < 8; i++ {
			a := -math.Pi/2 + 0.3 + 0.1*float64(i)
			arc = append(arc, r2.Vec{X: 10 * math.Cos(a), Y: 10 + 10*math.Sin(a)})
		}
		curler := pointSegment(0, arc)
		require.True(t, curler.Trajectory.Valid)
		require.True(t, curler.Trajectory.IsCurler(wall))

		out := SegmentOrienter{Orientation: OrientationCurling, OuterWallRadius: wall}.Apply([]*Segment2D{curler, inwards()})
		require.Len(t, out, 3)
		assert.Equal(t, curler.Key(), out[0].Key())
		assert.Equal(t, curler.reversedKey(), out[1].Key())
		assert.Less(t, r2.Norm(out[2].Front().Pos), r2.Norm(out[2].Back().Pos))
	})
}

func TestMajorityTrack(t *testing.T) {
	hit := func(id int) *l2hits.WireHit { return &l2hits.WireHit{Truth: &l2hits.Truth{TrackID: id}} }
	id, purity, ok := MajorityTrack([]*l2hits.WireHit{hit(3), hit(1), hit(3), {}})
	require.True(t, ok)
	assert.Equal(t, 3, id)
	assert.InDelta(t, 0.5, purity, 1e-12)

	_, _, ok = MajorityTrack([]*l2hits.WireHit{{}, {}})
	assert.False(t, ok)
}

func TestAxialPairsAlongTrack(t *testing.T) {
	geo, hits := simulate(t, synthetic.TrackParams{Curvature: 0.002, Phi0: 0.4})
	segs := buildSegments(t, geo.Topology, hits, "simple")
	segs = SegmentOrienter{Orientation: OrientationOutwards, OuterWallRadius: geo.OuterWallRadius()}.Apply(segs)

	axial := map[int]bool{}
	for _, s := range segs {
		if s.Axial {
			axial[s.ISuperLayer] = true
		}
	}
	require.Equal(t, map[int]bool{0: true, 2: true, 4: true, 6: true, 8: true}, axial)

	b := PairBuilder{
		Filter:           create(t, NewPairFilterFactory(), "fitless"),
		RelationFilter:   create(t, NewPairRelationFilterFactory(), "all"),
		MaxSuperLayerGap: 2,
	}
	pairs := b.Pairs(segs)
	gaps := map[[2]int]bool{}
	for _, p := range pairs {
		gaps[[2]int{p.From.ISuperLayer, p.To.ISuperLayer}] = true
		assert.True(t, p.Trajectory.Valid)
		signal, known := PairTruth(p)
		assert.True(t, known)
		assert.True(t, signal)
	}
	for _, g := range [][2]int{{0, 2}, {2, 4}, {4, 6}, {6, 8}} {
		assert.True(t, gaps[g], "no pair %v", g)
	}

	paths, _ := automaton.NewMultipassCellularPathFinder[*AxialSegmentPair]().Apply(pairs, b.Relations(pairs))
	require.NotEmpty(t, paths)
	chain := PathSegments(paths[0].Nodes)
	assert.Equal(t, 0, chain[0].ISuperLayer)
	assert.Equal(t, 8, chain[len(chain)-1].ISuperLayer)
	for _, s := range chain {
		assert.True(t, s.AutomatonCell().IsTaken())
	}
}

func TestPairFilters(t *testing.T) {
	from := pointSegment(0, radial(17, 24, 0.5, 8))
	straight := NewAxialSegmentPair(from, pointSegment(2, radial(37, 45, 0.5, 6)))
	bent := NewAxialSegmentPair(from, pointSegment(2, radial(37, 45, 1.5, 6)))

	fitless := create(t, NewPairFilterFactory(), "fitless")
	assert.Equal(t, 14.0, fitless.Weight(straight))
	assert.True(t, math.IsNaN(fitless.Weight(bent)))

	simple := create(t, NewPairFilterFactory(), "simple")
	assert.Equal(t, 14.0, simple.Weight(straight))
	assert.True(t, math.IsNaN(simple.Weight(bent)))

	assert.True(t, ahead(from, straight.To))
	assert.False(t, ahead(straight.To, from))
}

func TestTriplesReconstructHeights(t *testing.T) {
	p := synthetic.TrackParams{Curvature: 0.002, Phi0: -1.2, TanLambda: 0.4, Z0: 1}
	geo, hits := simulate(t, p)
	segs := buildSegments(t, geo.Topology, hits, "simple")
	segs = SegmentOrienter{Orientation: OrientationOutwards, OuterWallRadius: geo.OuterWallRadius()}.Apply(segs)

	pairs := PairBuilder{
		Filter:           create(t, NewPairFilterFactory(), "fitless"),
		RelationFilter:   create(t, NewPairRelationFilterFactory(), "all"),
		MaxSuperLayerGap: 2,
	}.Pairs(segs)

	tb := TripleBuilder{
		Topology:       geo.Topology,
		Filter:         create(t, NewTripleFilterFactory(), "all"),
		RelationFilter: create(t, NewTripleRelationFilterFactory(), "all"),
	}
	triples := tb.Triples(pairs, segs)
	require.NotEmpty(t, triples)

	truth := p.Trajectory()
	found := false
	for _, tr := range triples {
		assert.Equal(t, tr.Start.ISuperLayer+1, tr.Middle.ISuperLayer)
		if tr.Start.ISuperLayer != 0 {
			continue
		}
		found = true
		assert.Greater(t, tr.ReconstructedFraction(), 0.5)
		for _, h := range tr.Stereo {
			s := truth.ArcLength(h.Pos2D())
			assert.InDelta(t, p.Z0+p.TanLambda*s, h.Pos.Z, 1.0)
		}
		require.True(t, tr.Helix.SZ.Valid)
		assert.InDelta(t, p.TanLambda, tr.Helix.SZ.TanLambda, 0.05)
	}
	assert.True(t, found)

	rels := tb.Relations(triples)
	assert.NotEmpty(t, rels)
	for _, r := range rels {
		assert.Same(t, r.From.End, r.To.Start)
	}
}
