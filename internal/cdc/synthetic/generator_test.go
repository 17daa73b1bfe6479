package synthetic

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

func newGenerator(t *testing.T, cfg Config, seed uint64) (*Generator, *l1wires.Service) {
	t.Helper()
	geo := l1wires.MustDefaultService()
	g, err := NewGenerator(geo, nil, cfg, seed)
	require.NoError(t, err)
	return g, geo
}

func TestTrackParamsTrajectory(t *testing.T) {
	p := TrackParams{Curvature: 0.004, Phi0: 0.7, D0: 0.3}
	traj := p.Trajectory()
	assert.InDelta(t, 0.3, traj.Impact(), 1e-12)
	assert.InDelta(t, 0.7, traj.Phi0(), 1e-12)

	p.D0 = -0.3
	assert.InDelta(t, -0.3, p.Trajectory().Impact(), 1e-12)
}

func TestTrackHitsCoverCrossedCells(t *testing.T) {
	g, geo := newGenerator(t, DefaultConfig(), 1)
	for _, p := range []TrackParams{
		{Curvature: 0.002, Phi0: 1.1},
		{Curvature: 0.01, Phi0: 0.5},
		{Curvature: -0.01, Phi0: 2.0},
	} {
		t.Run(p.String(), func(t *testing.T) {
			traj := p.Trajectory()
			hits := g.TrackHits(p)
			require.GreaterOrEqual(t, len(hits), geo.NLayers())

			perLayer := map[int]int{}
			for i, h := range hits {
				perLayer[geo.ICLayer(h.Wire)]++
				d := traj.DistanceLeft(geo.WirePosition(h.Wire, h.Pos.Z))
				assert.InDelta(t, math.Abs(d), h.DriftLength, 1e-9)
				assert.LessOrEqual(t, h.DriftLength, geo.Layer(h.Wire).MaxDriftLength())
				if d > 0 {
					assert.Equal(t, l2hits.Left, h.RL, "hit %d", i)
				} else {
					assert.Equal(t, l2hits.Right, h.RL, "hit %d", i)
				}
				if i == 0 {
					continue
				}
				prev := hits[i-1]
				assert.GreaterOrEqual(t, geo.ICLayer(h.Wire), geo.ICLayer(prev.Wire))
				if geo.ICLayer(h.Wire) == geo.ICLayer(prev.Wire) {
					assert.Greater(t, h.ArcLength, prev.ArcLength)
				}
				// a track leaves no gap between cells of one superlayer
				if h.Wire.ISuperLayer == prev.Wire.ISuperLayer {
					assert.True(t, geo.AreNeighbors(prev.Wire, h.Wire), "%s -> %s", prev.Wire, h.Wire)
				}
			}
			assert.Len(t, perLayer, geo.NLayers())
			for layer, n := range perLayer {
				assert.LessOrEqual(t, n, 2, "layer %d", layer)
			}
		})
	}
}

func TestTrackHitsStereoHeights(t *testing.T) {
	g, geo := newGenerator(t, DefaultConfig(), 1)
	p := TrackParams{Curvature: -0.003, Phi0: -2.0, TanLambda: 0.5, Z0: 3}

	hits := g.TrackHits(p)
	require.Greater(t, len(hits), 50)
	stereo := 0
	for _, h := range hits {
		assert.InDelta(t, p.Z0+p.TanLambda*h.ArcLength, h.Pos.Z, 1e-6)
		if !geo.IsAxialSuperLayer(h.Wire.ISuperLayer) {
			stereo++
		}
	}
	assert.Greater(t, stereo, 20)
}

func TestCurlerStopsAtApex(t *testing.T) {
	g, geo := newGenerator(t, DefaultConfig(), 1)
	// diameter 50 cm
	p := TrackParams{Curvature: 0.04}
	hits := g.TrackHits(p)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		r := r2.Norm(geo.RefPosition(h.Wire))
		assert.Less(t, r, 51.0)
	}
	assert.Less(t, len(hits), geo.NLayers())
}

func TestEventRecordsPrepareToTruth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DriftSigma = 0
	g, geo := newGenerator(t, cfg, 7)
	p := TrackParams{Curvature: 0.002, Phi0: 0.3}

	ev := g.Event([]TrackParams{p})
	assert.Equal(t, 1, ev.Number)
	truth := g.TrackHits(p)
	require.Len(t, ev.Hits, len(truth))

	hits, err := l2hits.NewPreparer(geo, l2hits.DefaultPreparerConfig()).Prepare(ev.Hits)
	require.NoError(t, err)
	require.Len(t, hits, len(truth))
	byWire := make(map[l1wires.WireID]Hit, len(truth))
	for _, h := range truth {
		byWire[h.Wire] = h
	}
	for _, h := range hits {
		want, ok := byWire[h.ID]
		require.True(t, ok, "unexpected wire %s", h.ID)
		assert.InDelta(t, want.DriftLength, h.DriftLength, 1e-9)
		require.NotNil(t, h.Truth)
		assert.Equal(t, 0, h.Truth.TrackID)
		assert.Equal(t, want.RL, h.Truth.RL)
	}
}

func TestNoiseIsBackground(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseHits = 25
	g, geo := newGenerator(t, cfg, 3)

	ev := g.Event(nil)
	require.Len(t, ev.Hits, 25)
	for _, r := range ev.Hits {
		_, err := geo.Resolve(r.EWire)
		require.NoError(t, err)
		require.NotNil(t, r.MCTrackID)
		assert.Equal(t, -1, *r.MCTrackID)
		assert.Nil(t, r.MCRL)
		assert.GreaterOrEqual(t, r.ADC, cfg.MinADC)
		assert.LessOrEqual(t, r.ADC, cfg.MaxADC)
	}
}

func TestCrossTalkSharesASIC(t *testing.T) {
	g, geo := newGenerator(t, DefaultConfig(), 3)
	first := l1wires.WireID{ISuperLayer: 4, ILayer: 2, IWire: 19}

	recs := g.CrossTalk(first, 6, 120)
	require.Len(t, recs, 6)
	asic := geo.ASIC(first)
	for _, r := range recs {
		id, err := geo.Resolve(r.EWire)
		require.NoError(t, err)
		assert.Equal(t, asic, geo.ASIC(id))
		assert.InDelta(t, 120, *r.DriftTime, 0)
	}
}

func TestSeedsAreReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseHits = 5
	a, _ := newGenerator(t, cfg, 42)
	b, _ := newGenerator(t, cfg, 42)

	evA, tracksA := a.RandomEvent(3)
	evB, tracksB := b.RandomEvent(3)
	assert.Empty(t, cmp.Diff(tracksA, tracksB))
	assert.Empty(t, cmp.Diff(evA, evB))
}

func TestRandomTrackRanges(t *testing.T) {
	cfg := DefaultConfig()
	g, _ := newGenerator(t, cfg, 9)
	for range 200 {
		p := g.RandomTrack()
		k := math.Abs(p.Curvature)
		assert.True(t, k >= cfg.MinCurvature && k <= cfg.MaxCurvature, "curvature %g", p.Curvature)
		assert.LessOrEqual(t, math.Abs(p.D0), cfg.MaxD0)
		assert.LessOrEqual(t, math.Abs(p.Z0), cfg.MaxZ0)
		assert.True(t, p.TanLambda >= cfg.MinTanLambda && p.TanLambda <= cfg.MaxTanLambda)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Efficiency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxADC = cfg.MinADC - 1
	_, err := NewGenerator(l1wires.MustDefaultService(), nil, cfg, 1)
	assert.Error(t, err)
}
