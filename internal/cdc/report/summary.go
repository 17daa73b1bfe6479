package report

import (
	"maps"
	"slices"

	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/cdctrack/internal/cdc/l6tracks"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
	"github.com/banshee-data/cdctrack/internal/cdc/storage/sqlite"
)

// MatchPurity is the purity above which a track counts as found for its
// majority simulated track.
const MatchPurity = 0.5

// Totals are the counters of a summary.
type Totals struct {
	Events   int                     `json:"events"`
	Tracks   int                     `json:"tracks"`
	Rejected int                     `json:"rejected"`
	Tracks3D int                     `json:"tracks_3d"`
	Origins  map[l6tracks.Origin]int `json:"origins"`
	Matched  int                     `json:"matched"` // simulated tracks found at least once
	Clones   int                     `json:"clones"`  // further tracks of a found simulated track
	Fakes    int                     `json:"fakes"`   // tracks below MatchPurity or without truth
	Stats    pipeline.Stats          `json:"stats"`   // summed over events
}

// EventPoint is the track count of one event.
type EventPoint struct {
	Event  int
	Tracks int
}

// Summary accumulates event records. The zero value is not usable; call
// NewSummary.
type Summary struct {
	Totals

	Curvature      *hbook.H1D // 1/cm
	Hits           *hbook.H1D
	Purity         *hbook.H1D
	PValue         *hbook.H1D
	TracksPerEvent *hbook.H1D

	perEvent []EventPoint
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		Totals: Totals{
			Origins: map[l6tracks.Origin]int{},
			Stats:   pipeline.Stats{Passes: map[string]int{}},
		},
		Curvature:      hbook.NewH1D(60, -0.03, 0.03),
		Hits:           hbook.NewH1D(60, 0, 120),
		Purity:         hbook.NewH1D(20, 0, 1.0001),
		PValue:         hbook.NewH1D(20, 0, 1.0001),
		TracksPerEvent: hbook.NewH1D(20, 0, 20),
	}
}

// Add accumulates one event. Rejected tracks are counted but stay out of
// the histograms.
func (s *Summary) Add(ev pipeline.EventRecord) {
	s.Events++
	addStats(&s.Stats, ev.Stats)

	accepted := 0
	found := map[int]bool{}
	for _, t := range ev.Tracks {
		s.Tracks++
		s.Origins[t.Origin]++
		if t.Rejected {
			s.Rejected++
			continue
		}
		accepted++
		if t.Is3D {
			s.Tracks3D++
		}
		s.Curvature.Fill(t.Perigee.Curvature, 1)
		s.Hits.Fill(float64(t.NHits()), 1)
		s.PValue.Fill(t.PValue, 1)

		if t.MCTrack == nil {
			s.Fakes++
			continue
		}
		s.Purity.Fill(t.Purity, 1)
		switch {
		case t.Purity < MatchPurity:
			s.Fakes++
		case found[*t.MCTrack]:
			s.Clones++
		default:
			found[*t.MCTrack] = true
			s.Matched++
		}
	}
	s.TracksPerEvent.Fill(float64(accepted), 1)
	s.perEvent = append(s.perEvent, EventPoint{Event: ev.Event, Tracks: accepted})
}

// PerEvent returns the accepted track count of each event in event order.
func (s *Summary) PerEvent() []EventPoint {
	out := slices.Clone(s.perEvent)
	slices.SortStableFunc(out, func(a, b EventPoint) int { return a.Event - b.Event })
	return out
}

// OriginNames lists the origins seen, sorted.
func (s *Summary) OriginNames() []l6tracks.Origin {
	return slices.Sorted(maps.Keys(s.Origins))
}

func addStats(dst *pipeline.Stats, src pipeline.Stats) {
	dst.Hits += src.Hits
	dst.BackgroundHits += src.BackgroundHits
	dst.AsicBackgroundHits += src.AsicBackgroundHits
	dst.Clusters += src.Clusters
	dst.RejectedClusters += src.RejectedClusters
	dst.Facets += src.Facets
	dst.FacetRelations += src.FacetRelations
	dst.Segments += src.Segments
	dst.AxialPairs += src.AxialPairs
	dst.SegmentTriples += src.SegmentTriples
	dst.SegmentTracks += src.SegmentTracks
	dst.LegendreTracks += src.LegendreTracks
	dst.AttachedHits += src.AttachedHits
	dst.RejectedTracks += src.RejectedTracks
	dst.Tracks += src.Tracks
	dst.CyclesBroken += src.CyclesBroken
	for k, v := range src.Passes {
		dst.Passes[k] += v
	}
}

// FromStoredTracks groups stored tracks into event records. Stats are not
// stored, so only their Tracks and RejectedTracks counts are rebuilt, and
// events without tracks do not appear.
func FromStoredTracks(tracks []*sqlite.StoredTrack) []pipeline.EventRecord {
	var out []pipeline.EventRecord
	index := map[int]int{}
	for _, t := range tracks {
		i, ok := index[t.Event]
		if !ok {
			i = len(out)
			index[t.Event] = i
			out = append(out, pipeline.EventRecord{Event: t.Event, Stats: pipeline.Stats{Passes: map[string]int{}}})
		}
		ev := &out[i]
		ev.Tracks = append(ev.Tracks, t.TrackRecord)
		ev.Stats.Tracks++
		if t.Rejected {
			ev.Stats.RejectedTracks++
		}
	}
	return out
}
