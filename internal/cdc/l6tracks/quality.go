package l6tracks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// CleanupStep names one track cleanup operation.
type CleanupStep string

const (
	RemoveHitsAfterCDCWall        CleanupStep = "remove_hits_after_cdc_wall"
	RemoveHitsIfSmall             CleanupStep = "remove_hits_if_small"
	RemoveHitsAfterLayerBreak     CleanupStep = "remove_hits_after_layer_break"
	RemoveHitsIfOnlyOneSuperLayer CleanupStep = "remove_hits_if_only_one_superlayer"
	RemoveHitsOnWrongSide         CleanupStep = "remove_hits_on_wrong_side"
	RemoveArcLengthHoles          CleanupStep = "remove_arc_length_holes"
)

// CleanupOrder is the fixed order in which enabled steps run.
var CleanupOrder = []CleanupStep{
	RemoveHitsAfterCDCWall,
	RemoveHitsIfSmall,
	RemoveHitsAfterLayerBreak,
	RemoveHitsIfOnlyOneSuperLayer,
	RemoveHitsOnWrongSide,
	RemoveArcLengthHoles,
}

// ParseCleanupSteps validates step names. The order of names does not
// matter; steps always run in CleanupOrder.
func ParseCleanupSteps(names []string) (map[CleanupStep]bool, error) {
	enabled := make(map[CleanupStep]bool, len(names))
	for _, n := range names {
		s := CleanupStep(n)
		found := false
		for _, known := range CleanupOrder {
			found = found || known == s
		}
		if !found {
			return nil, fmt.Errorf("%w %q", ErrUnknownCleanupStep, n)
		}
		enabled[s] = true
	}
	return enabled, nil
}

// QualityTools removes hits that do not belong to a track.
type QualityTools struct {
	Fitter             Fitter
	Enabled            map[CleanupStep]bool
	MinHits            int     // remove_hits_if_small
	MaxLayerBreak      int     // remove_hits_after_layer_break
	WrongSideTolerance float64 // remove_hits_on_wrong_side, cm
	MaxArcLengthHole   float64 // remove_arc_length_holes, cm
}

// Apply runs the enabled steps on every track, then refits and normalizes
// the tracks that kept hits.
func (q QualityTools) Apply(tracks []*Track) {
	removed := 0
	for _, t := range tracks {
		before := t.Size()
		q.Clean(t)
		removed += before - t.Size()
	}
	diagf("cleanup removed %d hits from %d tracks", removed, len(tracks))
}

// Clean runs the enabled steps on t in the fixed order.
func (q QualityTools) Clean(t *Track) {
	Normalize(t)
	for _, s := range CleanupOrder {
		if !q.Enabled[s] || t.Empty() {
			continue
		}
		before := t.Size()
		switch s {
		case RemoveHitsAfterCDCWall:
			q.removeHitsAfterCDCWall(t)
		case RemoveHitsIfSmall:
			q.removeHitsIfSmall(t)
		case RemoveHitsAfterLayerBreak:
			q.removeHitsAfterLayerBreak(t)
		case RemoveHitsIfOnlyOneSuperLayer:
			removeHitsIfOnlyOneSuperLayer(t)
		case RemoveHitsOnWrongSide:
			q.removeHitsOnWrongSide(t)
		case RemoveArcLengthHoles:
			q.removeArcLengthHoles(t)
		}
		if t.Size() != before {
			tracef("%s: %s removed %d hits", t, s, before-t.Size())
		}
	}
	if !t.Empty() {
		q.Fitter.Refit(t)
	}
}

func keepHits(t *Track, keep func(h l5segments.RecoHit3D) bool) {
	kept := t.Hits[:0]
	for _, h := range t.Hits {
		if keep(h) {
			kept = append(kept, h)
		}
	}
	t.Hits = kept
}

// removeHitsAfterCDCWall drops hits outside the outer wall and hits past
// the point where the trajectory leaves the chamber.
func (q QualityTools) removeHitsAfterCDCWall(t *Track) {
	wall := q.Fitter.Topology.OuterWallRadius()
	exit, ok := math.Inf(1), false
	if t.Helix.Circle.Valid {
		exit, ok = t.Helix.Circle.ExitArcLength(wall)
		if !ok {
			exit = math.Inf(1)
		}
	}
	keepHits(t, func(h l5segments.RecoHit3D) bool {
		return r2.Norm(h.Pos2D()) <= wall && h.ArcLength2D <= exit
	})
}

func (q QualityTools) removeHitsIfSmall(t *Track) {
	if t.Size() < q.MinHits {
		t.Hits = nil
	}
}

// minTrackletHits is the size below which a tracklet cut off by a layer
// break is dropped.
const minTrackletHits = 5

// removeHitsAfterLayerBreak splits the track into tracklets where
// consecutive hits jump by more than MaxLayerBreak layers. A track that
// breaks keeps its tracklets of at least minTrackletHits hits, so a track
// continuing after a missing superlayer stays whole.
func (q QualityTools) removeHitsAfterLayerBreak(t *Track) {
	var tracklets [][]l5segments.RecoHit3D
	start := 0
	for i := 1; i <= len(t.Hits); i++ {
		if i < len(t.Hits) {
			d := t.Hits[i].Hit.ICLayer - t.Hits[i-1].Hit.ICLayer
			if d <= q.MaxLayerBreak && -d <= q.MaxLayerBreak {
				continue
			}
		}
		tracklets = append(tracklets, t.Hits[start:i])
		start = i
	}
	if len(tracklets) < 2 {
		return
	}
	var kept []l5segments.RecoHit3D
	for _, tl := range tracklets {
		if len(tl) >= minTrackletHits {
			kept = append(kept, tl...)
		}
	}
	t.Hits = kept
}

func removeHitsIfOnlyOneSuperLayer(t *Track) {
	if len(t.ISuperLayers()) <= 1 {
		t.Hits = nil
	}
}

// removeHitsOnWrongSide drops hits lying before the perigee, on the arm the
// particle never travelled.
func (q QualityTools) removeHitsOnWrongSide(t *Track) {
	if !t.Helix.Circle.Valid {
		return
	}
	perigee := t.Helix.Circle.ArcLength(r2.Vec{})
	keepHits(t, func(h l5segments.RecoHit3D) bool {
		return h.ArcLength2D-perigee >= -q.WrongSideTolerance
	})
}

// removeArcLengthHoles splits the track at arc length gaps larger than
// MaxArcLengthHole and keeps the largest part.
func (q QualityTools) removeArcLengthHoles(t *Track) {
	keepLargestBlock(t, func(a, b l5segments.RecoHit3D) bool {
		return math.Abs(b.ArcLength2D-a.ArcLength2D) > q.MaxArcLengthHole
	})
}

// keepLargestBlock cuts the hit sequence wherever split holds between
// neighbors and keeps the largest block, the earliest on ties.
func keepLargestBlock(t *Track, split func(a, b l5segments.RecoHit3D) bool) {
	bestStart, bestLen := 0, 0
	start := 0
	for i := 1; i <= len(t.Hits); i++ {
		if i < len(t.Hits) && !split(t.Hits[i-1], t.Hits[i]) {
			continue
		}
		if i-start > bestLen {
			bestStart, bestLen = start, i-start
		}
		start = i
	}
	t.Hits = t.Hits[bestStart : bestStart+bestLen]
}
