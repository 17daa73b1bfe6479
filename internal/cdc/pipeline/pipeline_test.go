package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
	"github.com/banshee-data/cdctrack/internal/cdc/synthetic"
	"github.com/banshee-data/cdctrack/internal/config"
	"github.com/banshee-data/cdctrack/internal/monitoring"
)

func init() {
	monitoring.SetOutput(nil, log.InfoLevel)
}

func newPipeline(t *testing.T, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	geo, err := NewGeometry(cfg)
	require.NoError(t, err)
	p, err := New(geo, cfg, opts...)
	require.NoError(t, err)
	return p
}

func event(t *testing.T, geo *l1wires.Service, tracks ...synthetic.TrackParams) l2hits.Event {
	t.Helper()
	cfg := synthetic.DefaultConfig()
	cfg.DriftSigma = 0
	gen, err := synthetic.NewGenerator(geo, nil, cfg, 7)
	require.NoError(t, err)
	return gen.Event(tracks)
}

// largest returns the track with the most hits.
func largest(tracks []*l6tracks.Track) *l6tracks.Track {
	var best *l6tracks.Track
	for _, t := range tracks {
		if best == nil || t.Size() > best.Size() {
			best = t
		}
	}
	return best
}

func truthCount(hits []l2hits.WireHit, id int) int {
	n := 0
	for i := range hits {
		if hits[i].Truth != nil && hits[i].Truth.TrackID == id {
			n++
		}
	}
	return n
}

func TestNewWithoutGeometry(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoGeometry)
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		is     error
	}{
		{"unknown filter", func(c *Config) { c.Filters[config.StageFacet] = config.FilterSpec{Name: "bogus"} }, filter.ErrUnknownFilter},
		{"recording without recorder", func(c *Config) {
			c.Filters[config.StageTrack] = config.FilterSpec{Name: "recording", Inner: &config.FilterSpec{Name: "all"}}
		}, filter.ErrNoRecorder},
		{"segment orientation", func(c *Config) { c.SegmentOrientation = "sideways" }, nil},
		{"track orientation", func(c *Config) { c.TrackOrientation = "up" }, nil},
		{"cleanup step", func(c *Config) { c.TrackCleanupSteps = []string{"remove_everything"} }, nil},
		{"combiner mode", func(c *Config) { c.CombinerMode = "greedy" }, nil},
		{"facet rl mode", func(c *Config) { c.FacetRLMode = "some" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			geo, err := NewGeometry(cfg)
			require.NoError(t, err)
			_, err = New(geo, cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestConfigFromTuning(t *testing.T) {
	tc := config.MustLoadDefaultConfig()
	cfg, err := ConfigFromTuning(tc)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	bad := "sideways"
	tc.SegmentOrientation = &bad
	_, err = ConfigFromTuning(tc)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTrackFilterSpecFillsMinHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTrackHits = 12
	cfg.Filters[config.StageTrack] = config.FilterSpec{Name: "size"}
	got := trackFilterSpec(cfg)
	assert.Equal(t, 12.0, got.Filters[config.StageTrack].Params["min_hits"])
	assert.Empty(t, cfg.Filters[config.StageTrack].Params, "input config modified")

	cfg.Filters[config.StageTrack] = config.FilterSpec{Name: "recording", Inner: &config.FilterSpec{Name: "size"}}
	got = trackFilterSpec(cfg)
	assert.Equal(t, 12.0, got.Filters[config.StageTrack].Inner.Params["min_hits"])
	assert.Nil(t, cfg.Filters[config.StageTrack].Inner.Params)

	cfg.Filters[config.StageTrack] = config.FilterSpec{Name: "size", Params: map[string]float64{"min_hits": 3}}
	got = trackFilterSpec(cfg)
	assert.Equal(t, 3.0, got.Filters[config.StageTrack].Params["min_hits"])
}

func TestProcessEmptyEvent(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	res, err := p.ProcessEvent(context.Background(), l2hits.Event{Number: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Event)
	assert.Empty(t, res.Hits)
	assert.Empty(t, res.Tracks)
	assert.Zero(t, res.Stats.Tracks)
}

func TestProcessEventUnknownWire(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	ev := l2hits.Event{Number: 1, Hits: []l2hits.HitRecord{{EWire: -1, TDC: 4000}}}
	_, err := p.ProcessEvent(context.Background(), ev)
	assert.ErrorIs(t, err, l1wires.ErrUnknownWire)
}

func TestProcessEventCancelled(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	ev := event(t, p.Geometry(), synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessEvent(ctx, ev)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessEventFindsTrack(t *testing.T) {
	tests := []struct {
		name  string
		track synthetic.TrackParams
	}{
		{"straight", synthetic.TrackParams{Curvature: 0, Phi0: 1.2, TanLambda: 0.2}},
		{"helix", synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3, Z0: 1}},
		{"negative helix", synthetic.TrackParams{Curvature: -0.004, Phi0: -2.0, TanLambda: -0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, DefaultConfig())
			res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), tt.track))
			require.NoError(t, err)
			require.NotEmpty(t, res.Tracks)
			assert.NotEmpty(t, res.Segments)
			assert.Equal(t, len(res.Tracks), res.Stats.Tracks)

			best := largest(res.Tracks)
			id, purity, ok := best.MCTrack()
			require.True(t, ok)
			assert.Equal(t, 0, id)
			assert.GreaterOrEqual(t, purity, 0.9)
			assert.GreaterOrEqual(t, best.Size(), truthCount(res.Hits, 0)*7/10)
			assert.InDelta(t, tt.track.Curvature, best.Perigee().Curvature, 5e-4)

			for i := 1; i < best.Size(); i++ {
				assert.GreaterOrEqual(t, best.Hits[i].ArcLength2D, best.Hits[i-1].ArcLength2D)
			}

			// every hit of a kept track is taken and belongs to one track only
			seen := map[*l2hits.WireHit]bool{}
			for _, tr := range res.Tracks {
				assert.False(t, tr.Rejected())
				for _, h := range tr.WireHits() {
					assert.True(t, h.IsTaken(), "hit %s", h)
					assert.False(t, seen[h], "hit %s used twice", h)
					seen[h] = true
				}
			}
		})
	}
}

func TestProcessEventTwoTracks(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	tracks := []synthetic.TrackParams{
		{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3},
		{Curvature: -0.002, Phi0: 2.6, TanLambda: -0.1},
	}
	res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), tracks...))
	require.NoError(t, err)

	found := map[int]bool{}
	for _, tr := range res.Tracks {
		if id, purity, ok := tr.MCTrack(); ok && purity >= 0.9 && tr.Size() >= truthCount(res.Hits, id)/2 {
			found[id] = true
		}
	}
	assert.Equal(t, map[int]bool{0: true, 1: true}, found)
}

func TestProcessEventCrossTalk(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	geo := p.Geometry()
	gen, err := synthetic.NewGenerator(geo, nil, synthetic.DefaultConfig(), 3)
	require.NoError(t, err)
	ev := gen.Event([]synthetic.TrackParams{{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3}})
	noise := gen.CrossTalk(l1wires.WireID{ISuperLayer: 5, ILayer: 2, IWire: 0}, l1wires.WiresPerASIC, 120)
	ev.Hits = append(ev.Hits, noise...)

	res, err := p.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, len(noise), res.Stats.AsicBackgroundHits)
	assert.GreaterOrEqual(t, res.Stats.BackgroundHits, len(noise))

	// the cross-talk neither splits nor adds segments
	perSuperLayer := map[int]int{}
	for _, s := range res.Segments {
		if !s.Alias {
			perSuperLayer[s.ISuperLayer]++
		}
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 3: 1, 4: 1, 5: 1, 6: 1, 7: 1, 8: 1}, perSuperLayer)

	require.NotEmpty(t, res.Tracks)
	for _, tr := range res.Tracks {
		id, _, ok := tr.MCTrack()
		assert.True(t, ok)
		assert.Equal(t, 0, id, "track %s is made of background", tr)
		for _, h := range tr.WireHits() {
			assert.False(t, h.ASICBackground, "cross-talk hit %s on a track", h)
		}
	}
}

func TestProcessEventHighCurvature(t *testing.T) {
	tests := []synthetic.TrackParams{
		{Curvature: 0.01, Phi0: 0.8, TanLambda: 0.3},
		{Curvature: -0.01, Phi0: 2.0, TanLambda: -0.2},
	}
	for _, track := range tests {
		t.Run(track.String(), func(t *testing.T) {
			p := newPipeline(t, DefaultConfig())
			res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), track))
			require.NoError(t, err)
			require.NotEmpty(t, res.Tracks)

			best := largest(res.Tracks)
			id, purity, ok := best.MCTrack()
			require.True(t, ok)
			assert.Equal(t, 0, id)
			assert.GreaterOrEqual(t, purity, 0.9)
			// outer superlayers stay on the track
			assert.GreaterOrEqual(t, 10*best.Size(), 7*truthCount(res.Hits, 0))
			assert.Contains(t, best.ISuperLayers(), 8)
		})
	}
}

func TestProcessEventWithoutLegendre(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseLegendre = false
	cfg.MergeTracksInTheEnd = false
	cfg.AppendUnusedHits = false
	p := newPipeline(t, cfg)
	res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3}))
	require.NoError(t, err)
	assert.Zero(t, res.Stats.LegendreTracks)
	assert.Zero(t, res.Stats.AttachedHits)
	require.NotEmpty(t, res.Tracks)
	id, _, ok := largest(res.Tracks).MCTrack()
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestProcessEventRecordsFilterInputs(t *testing.T) {
	cfg := DefaultConfig()
	inner := cfg.Filters[config.StageFacet]
	cfg.Filters[config.StageFacet] = config.FilterSpec{Name: "recording", Inner: &inner}
	src := &filter.MemorySource{}
	p := newPipeline(t, cfg, WithRecorders(src))

	res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3}))
	require.NoError(t, err)
	require.Contains(t, src.Stages, config.StageFacet)
	rec := src.Stages[config.StageFacet]
	assert.NotEmpty(t, rec.Names)
	assert.GreaterOrEqual(t, len(rec.Records), res.Stats.Facets)

	signal := 0
	for _, r := range rec.Records {
		assert.Len(t, r.Values, len(rec.Names))
		if r.Truth == 1 {
			signal++
		}
		if !math.IsNaN(r.Weight) {
			assert.False(t, math.IsInf(r.Weight, 0))
		}
	}
	assert.Positive(t, signal)
}

// Events share nothing but the read-only geometry, so results must not
// depend on how many run at once.
func TestProcessEventConcurrent(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	gen, err := synthetic.NewGenerator(p.Geometry(), nil, synthetic.DefaultConfig(), 11)
	require.NoError(t, err)
	events := make([]l2hits.Event, 6)
	for i := range events {
		events[i], _ = gen.RandomEvent(3)
	}

	serial := make([]Stats, len(events))
	for i, ev := range events {
		res, err := p.ProcessEvent(context.Background(), ev)
		require.NoError(t, err)
		serial[i] = res.Stats
	}

	parallel := make([]Stats, len(events))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(3)
	for i, ev := range events {
		g.Go(func() error {
			res, err := p.ProcessEvent(ctx, ev)
			if err != nil {
				return err
			}
			parallel[i] = res.Stats
			return nil
		})
	}
	require.NoError(t, g.Wait())
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("stats differ (-serial +parallel):\n%s", diff)
	}
}

func TestRunFinderCountsPasses(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3}))
	require.NoError(t, err)
	assert.Positive(t, res.Stats.Passes["facet"])
	assert.Contains(t, res.Stats.Passes, "segment_triple")
	assert.Contains(t, res.Stats.Passes, "axial_pair")
}

func TestResultRecord(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	res, err := p.ProcessEvent(context.Background(), event(t, p.Geometry(), synthetic.TrackParams{Curvature: 0.003, Phi0: 0.8, TanLambda: 0.3}))
	require.NoError(t, err)

	rec := res.Record()
	assert.Equal(t, res.Event, rec.Event)
	assert.Equal(t, res.Stats, rec.Stats)
	require.Len(t, rec.Tracks, len(res.Tracks))
	ids := map[string]bool{}
	for i, tr := range rec.Tracks {
		assert.NotEmpty(t, tr.ID)
		assert.False(t, ids[tr.ID], "duplicate id")
		ids[tr.ID] = true
		assert.Equal(t, res.Tracks[i].Size(), tr.NHits())
	}
}
