package l6tracks

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// Builder turns segment paths into fitted tracks.
type Builder struct {
	Fitter Fitter
	// SingleSegmentMinHits is the size from which an unused axial segment
	// becomes a track of its own.
	SingleSegmentMinHits int
}

// FromSegments concatenates the hits of segs in path order and fits them.
// It returns nil when the circle fit fails.
func (b Builder) FromSegments(origin Origin, segs []*l5segments.Segment2D) *Track {
	var hits []l5segments.RecoHit3D
	for _, s := range segs {
		for _, h := range s.Hits {
			hits = append(hits, l5segments.RecoHit3D{
				RLWireHit:   h.RLWireHit,
				Pos:         r3.Vec{X: h.Pos.X, Y: h.Pos.Y},
				ArcLength2D: h.ArcLength,
			})
		}
	}
	t := NewTrack(origin, hits)
	if err := b.Fitter.Fit(t); err != nil {
		tracef("dropping candidate: %v", err)
		return nil
	}
	Normalize(t)
	return t
}

// FromTriplePaths builds 3D tracks from paths of segment triples.
func (b Builder) FromTriplePaths(paths [][]*l5segments.SegmentTriple) []*Track {
	var out []*Track
	for _, p := range paths {
		if t := b.FromSegments(OriginSegments, l5segments.TriplePathSegments(p)); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// FromPairPaths builds tracks from paths of axial segment pairs.
func (b Builder) FromPairPaths(paths [][]*l5segments.AxialSegmentPair) []*Track {
	var out []*Track
	for _, p := range paths {
		if t := b.FromSegments(OriginAxial, l5segments.PathSegments(p)); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// FromSingleSegments builds tracks from axial segments that are long
// enough and whose hits no track uses. Aliases are skipped.
func (b Builder) FromSingleSegments(segs []*l5segments.Segment2D) []*Track {
	var out []*Track
	for _, s := range segs {
		if !s.Axial || s.Alias || s.Size() < b.SingleSegmentMinHits || anyTaken(s) {
			continue
		}
		if t := b.FromSegments(OriginSingle, []*l5segments.Segment2D{s}); t != nil {
			t.ForwardTakenFlag()
			out = append(out, t)
		}
	}
	return out
}

func anyTaken(s *l5segments.Segment2D) bool {
	for _, h := range s.Hits {
		if h.Hit.IsTaken() {
			return true
		}
	}
	return false
}
