package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l3clusters"
	"github.com/banshee-data/cdctrack/internal/cdc/l4facets"
	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
	"github.com/banshee-data/cdctrack/internal/config"
	"github.com/banshee-data/cdctrack/internal/monitoring"
)

// Pipeline runs events through the configured stages. It holds no event
// state, so one Pipeline may serve several goroutines.
type Pipeline struct {
	geo *l1wires.Service
	cfg Config

	preparer      *l2hits.Preparer
	asic          l2hits.AsicBackgroundDetector
	clusterizer   *l3clusters.WireHitClusterizer
	clusterFilter filter.Filter[*l3clusters.Cluster]
	facets        *l4facets.FacetCreator
	facetRels     *l4facets.RelationBuilder
	segments      *l5segments.SegmentCreator
	segOrienter   l5segments.SegmentOrienter
	pairs         l5segments.PairBuilder
	triples       l5segments.TripleBuilder

	builder  l6tracks.Builder
	legendre l6tracks.LegendreFinder
	combiner l6tracks.Combiner
	merger   l6tracks.Merger
	attacher l6tracks.Attacher
	orienter l6tracks.Orienter
	quality  l6tracks.QualityTools
	rejecter l6tracks.Rejecter

	recorders filter.RecorderSource
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorders routes the rows of recording filters to src.
func WithRecorders(src filter.RecorderSource) Option {
	return func(p *Pipeline) { p.recorders = src }
}

// New builds every stage of cfg. Unknown filters, orientations, cleanup
// steps and modes are reported here, before any event is processed.
func New(geo *l1wires.Service, cfg Config, opts ...Option) (*Pipeline, error) {
	if geo == nil {
		return nil, ErrNoGeometry
	}
	p := &Pipeline{geo: geo, cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	if err := p.build(); err != nil {
		opsf("invalid configuration: %v", err)
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return p, nil
}

func (p *Pipeline) build() error {
	cfg := trackFilterSpec(p.cfg)
	topo := p.geo.Topology
	rec := p.recorders
	var err error

	p.preparer = l2hits.NewPreparer(p.geo, preparerConfig(cfg))
	p.asic = asicDetector(cfg)
	p.clusterizer = l3clusters.NewWireHitClusterizer(topo)
	if p.clusterFilter, err = createFilter(l3clusters.NewFilterFactory(), cfg, config.StageCluster, rec); err != nil {
		return err
	}

	facetFilter, err := createFilter(l4facets.NewFilterFactory(), cfg, config.StageFacet, rec)
	if err != nil {
		return err
	}
	if p.facets, err = l4facets.NewFacetCreator(topo, cfg.FacetRLMode, facetFilter); err != nil {
		return err
	}
	facetRelFilter, err := createFilter(l4facets.NewRelationFilterFactory(), cfg, config.StageFacetRelation, rec)
	if err != nil {
		return err
	}
	p.facetRels = l4facets.NewRelationBuilder(facetRelFilter, cfg.UseNBestCandidates)
	p.segments = l5segments.NewSegmentCreator(topo)

	segOrientation, err := l5segments.ParseOrientation(cfg.SegmentOrientation)
	if err != nil {
		return fmt.Errorf("segment_orientation: %w", err)
	}
	p.segOrienter = l5segments.SegmentOrienter{Orientation: segOrientation, OuterWallRadius: topo.OuterWallRadius()}

	p.pairs = l5segments.PairBuilder{MaxSuperLayerGap: cfg.MaxAxialSuperLayerGap, NBest: cfg.UseNBestCandidates}
	if p.pairs.Filter, err = createFilter(l5segments.NewPairFilterFactory(), cfg, config.StageAxialPair, rec); err != nil {
		return err
	}
	if p.pairs.RelationFilter, err = createFilter(l5segments.NewPairRelationFilterFactory(), cfg, config.StageAxialPairRelation, rec); err != nil {
		return err
	}
	p.triples = l5segments.TripleBuilder{Topology: topo, NBest: cfg.UseNBestCandidates}
	if p.triples.Filter, err = createFilter(l5segments.NewTripleFilterFactory(), cfg, config.StageSegmentTriple, rec); err != nil {
		return err
	}
	if p.triples.RelationFilter, err = createFilter(l5segments.NewTripleRelationFilterFactory(), cfg, config.StageSegmentTripleRelation, rec); err != nil {
		return err
	}

	fitter := l6tracks.Fitter{Topology: topo}
	p.builder = l6tracks.Builder{Fitter: fitter, SingleSegmentMinHits: cfg.SingleSegmentMinHits}
	p.legendre = l6tracks.LegendreFinder{
		Fitter:          fitter,
		MaxLevel:        cfg.QuadTreeLevel,
		MinHits:         cfg.MinimumHitsInQuadTree,
		RhoMax:          l6tracks.DefaultRhoMax,
		CollectDistance: cfg.MaxAppendDistance,
	}
	mode, err := l6tracks.ParseCombinerMode(cfg.CombinerMode)
	if err != nil {
		return fmt.Errorf("combiner_mode: %w", err)
	}
	p.combiner = l6tracks.Combiner{Fitter: fitter, Mode: mode, MinSharedFraction: cfg.CombinerMinSharedFraction}
	p.merger = l6tracks.Merger{Fitter: fitter, MinProbability: cfg.MergeMinProbability, MinHits: cfg.MergeMinHits}
	p.attacher = l6tracks.Attacher{Fitter: fitter, MaxDistance: cfg.MaxAppendDistance}

	trackOrientation, err := l5segments.ParseOrientation(cfg.TrackOrientation)
	if err != nil {
		return fmt.Errorf("track_orientation: %w", err)
	}
	p.orienter = l6tracks.Orienter{Orientation: trackOrientation, OuterWallRadius: topo.OuterWallRadius()}

	steps, err := l6tracks.ParseCleanupSteps(cfg.TrackCleanupSteps)
	if err != nil {
		return fmt.Errorf("track_cleanup_steps: %w", err)
	}
	p.quality = l6tracks.QualityTools{
		Fitter:             fitter,
		Enabled:            steps,
		MinHits:            cfg.MinTrackHits,
		MaxLayerBreak:      cfg.MaxLayerBreak,
		WrongSideTolerance: cfg.WrongSideTolerance,
		MaxArcLengthHole:   cfg.MaxArcLengthHole,
	}
	trackFilter, err := createFilter(l6tracks.NewTrackFilterFactory(), cfg, config.StageTrack, rec)
	if err != nil {
		return err
	}
	p.rejecter = l6tracks.Rejecter{Filter: trackFilter, DeleteRejected: cfg.DeleteRejected}
	return nil
}

// Geometry returns the chamber the pipeline was built for.
func (p *Pipeline) Geometry() *l1wires.Service { return p.geo }

// Stats counts the products of one event.
type Stats struct {
	Hits               int            `json:"hits"`
	BackgroundHits     int            `json:"background_hits"`
	AsicBackgroundHits int            `json:"asic_background_hits"`
	Clusters           int            `json:"clusters"`
	RejectedClusters   int            `json:"rejected_clusters"`
	Facets             int            `json:"facets"`
	FacetRelations     int            `json:"facet_relations"`
	Segments           int            `json:"segments"`
	AxialPairs         int            `json:"axial_pairs"`
	SegmentTriples     int            `json:"segment_triples"`
	SegmentTracks      int            `json:"segment_tracks"`
	LegendreTracks     int            `json:"legendre_tracks"`
	AttachedHits       int            `json:"attached_hits"`
	RejectedTracks     int            `json:"rejected_tracks"`
	Tracks             int            `json:"tracks"`
	Passes             map[string]int `json:"automaton_passes"`
	CyclesBroken       int            `json:"cycles_broken"`
}

// Result holds the tracks of one event and the intermediate products they
// were built from. Everything points into Hits.
type Result struct {
	Event    int
	Hits     []l2hits.WireHit
	Clusters []*l3clusters.Cluster
	Facets   []*l4facets.Facet
	Segments []*l5segments.Segment2D
	Tracks   []*l6tracks.Track
	Stats    Stats
}

// stage runs fn inside a child span and records its duration and output
// size.
func stage(ctx context.Context, name string, fn func() int) {
	ctx, span := monitoring.StartSpan(ctx, name)
	defer span.End()
	start := time.Now()
	n := fn()
	span.SetAttributes(attribute.Int("objects", n))
	monitoring.RecordStage(ctx, name, time.Since(start), n)
}

// ProcessEvent finds the tracks of ev. Only unresolvable input and
// cancellation are errors; an event without tracks gives an empty result.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev l2hits.Event) (res *Result, err error) {
	ctx, span := monitoring.StartSpan(ctx, "event", attribute.Int("event", ev.Number))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		monitoring.RecordEvent(ctx, err == nil)
	}()

	res = &Result{Event: ev.Number, Stats: Stats{Passes: map[string]int{}}}
	st := &res.Stats

	stage(ctx, "hits", func() int {
		res.Hits, err = p.preparer.Prepare(ev.Hits)
		if err != nil {
			return 0
		}
		st.AsicBackgroundHits = p.asic.Apply(res.Hits)
		for i := range res.Hits {
			if res.Hits[i].IsBackground() {
				st.BackgroundHits++
			}
		}
		st.Hits = len(res.Hits)
		return st.Hits
	})
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", ev.Number, err)
	}
	hitPtrs := l2hits.Pointers(res.Hits)

	stage(ctx, "clusters", func() int {
		res.Clusters = p.clusterizer.Apply(res.Hits)
		st.RejectedClusters = l3clusters.Screen(res.Clusters, p.clusterFilter)
		st.Clusters = len(res.Clusters)
		return st.Clusters
	})

	stage(ctx, "facets", func() int {
		res.Facets = p.facets.Apply(res.Clusters)
		st.Facets = len(res.Facets)
		return st.Facets
	})

	stage(ctx, "segments", func() int {
		rels := p.facetRels.Build(res.Facets)
		st.FacetRelations = len(rels)
		paths := runFinder(ctx, "facet", p.cfg.MaxPasses, st, res.Facets, rels)
		segs := p.segments.Apply(paths)
		automaton.ClearFlags(hitPtrs, automaton.FlagTaken)
		res.Segments = p.segOrienter.Apply(segs)
		st.Segments = len(res.Segments)
		return st.Segments
	})
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var segmentTracks []*l6tracks.Track
	stage(ctx, "segment_tracks", func() int {
		pairs := p.pairs.Pairs(res.Segments)
		st.AxialPairs = len(pairs)
		triples := p.triples.Triples(pairs, res.Segments)
		st.SegmentTriples = len(triples)

		triplePaths := runFinder(ctx, "segment_triple", p.cfg.MaxPasses, st, triples, p.triples.Relations(triples))
		segmentTracks = append(segmentTracks, p.builder.FromTriplePaths(pathNodes(triplePaths))...)

		// pairs over segments the 3D tracks used stay out of the 2D search
		for _, pr := range pairs {
			pr.ReceiveMaskedFlag()
		}
		pairPaths := runFinder(ctx, "axial_pair", p.cfg.MaxPasses, st, pairs, p.pairs.Relations(pairs))
		segmentTracks = append(segmentTracks, p.builder.FromPairPaths(pathNodes(pairPaths))...)

		segmentTracks = append(segmentTracks, p.builder.FromSingleSegments(res.Segments)...)
		automaton.ClearFlags(hitPtrs, automaton.FlagTaken)
		st.SegmentTracks = len(segmentTracks)
		return st.SegmentTracks
	})

	tracks := segmentTracks
	if p.cfg.UseLegendre {
		stage(ctx, "legendre", func() int {
			legendre := p.legendre.Find(hitPtrs)
			st.LegendreTracks = len(legendre)
			tracks = p.combiner.Combine(segmentTracks, legendre)
			automaton.ClearFlags(hitPtrs, automaton.FlagTaken)
			return len(tracks)
		})
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if p.cfg.MergeTracksInTheEnd {
		stage(ctx, "merge", func() int {
			tracks = p.merger.Apply(tracks)
			return len(tracks)
		})
	}
	if p.cfg.AppendUnusedHits {
		stage(ctx, "attach", func() int {
			st.AttachedHits = p.attacher.Apply(tracks, hitPtrs)
			return st.AttachedHits
		})
	}

	stage(ctx, "tracks", func() int {
		tracks = p.orienter.Apply(tracks)
		p.quality.Apply(tracks)
		tracks, st.RejectedTracks = p.rejecter.Apply(tracks)
		monitoring.RecordRejectedTracks(ctx, st.RejectedTracks)
		for _, t := range tracks {
			if !t.Rejected() {
				t.ForwardTakenFlag()
			}
		}
		st.Tracks = len(tracks)
		return st.Tracks
	})
	res.Tracks = tracks

	diagf("event %d: %d hits, %d clusters, %d facets, %d segments, %d tracks (%d rejected)",
		ev.Number, st.Hits, st.Clusters, st.Facets, st.Segments, st.Tracks, st.RejectedTracks)
	return res, nil
}

// runFinder runs a multipass extraction and records its counters under
// level.
func runFinder[T automaton.NodePtr](ctx context.Context, level string, maxPasses int, st *Stats, nodes []T, rels []automaton.Relation[T]) []automaton.Path[T] {
	f := automaton.NewMultipassCellularPathFinder[T]()
	f.MaxPasses = maxPasses
	paths, stats := f.Apply(nodes, rels)
	st.Passes[level] += stats.Passes
	st.CyclesBroken += stats.CyclesBroken
	monitoring.RecordAutomatonPasses(ctx, level, stats.Passes)
	monitoring.RecordCyclesBroken(ctx, level, stats.CyclesBroken)
	if stats.CyclesBroken > 0 {
		opsf("%s automaton: broke %d cycles", level, stats.CyclesBroken)
	}
	return paths
}

func pathNodes[T any](paths []automaton.Path[T]) [][]T {
	out := make([][]T, len(paths))
	for i, p := range paths {
		out[i] = p.Nodes
	}
	return out
}
