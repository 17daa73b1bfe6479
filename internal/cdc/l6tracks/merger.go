package l6tracks

import (
	"math"

	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// strangeHitFactors are the successive cuts of the strange hit removal, in
// units of the hit's drift length.
var strangeHitFactors = []float64{5, 3, 1, 1}

// minMergedHits is the size below which tracks are dropped after merging.
const minMergedHits = 3

// Merger joins tracks that fit one circle well together.
type Merger struct {
	Fitter         Fitter
	MinProbability float64
	MinHits        int // least size of a merged track
}

// Apply merges every track with its best partner among the later tracks
// while the combined fit probability exceeds MinProbability. A track may
// absorb several partners. Tracks left with fewer than three hits are
// dropped.
func (m Merger) Apply(tracks []*Track) []*Track {
	merges := 0
	for i, t := range tracks {
		if t.Empty() {
			continue
		}
		for {
			best, bestP := -1, m.MinProbability
			var bestTrack *Track
			for j := i + 1; j < len(tracks); j++ {
				if tracks[j].Empty() {
					continue
				}
				merged, p := m.fitTogether(t, tracks[j])
				if merged != nil && p > bestP {
					best, bestP, bestTrack = j, p, merged
				}
			}
			if best < 0 {
				break
			}
			tracef("merging %s and %s (p=%.3g)", t, tracks[best], bestP)
			*t = *bestTrack
			tracks[best].Hits = nil
			merges++
		}
	}

	out := tracks[:0]
	for _, t := range tracks {
		if t.Size() >= minMergedHits {
			out = append(out, t)
		}
	}
	diagf("merged %d track pairs, %d tracks left", merges, len(out))
	return out
}

// fitTogether fits the union of a and b after removing strange hits and
// returns the result with its circle fit probability. It returns nil when
// the union gains nothing over the larger input or stays below MinHits.
func (m Merger) fitTogether(a, b *Track) (*Track, float64) {
	merged := NewTrack(OriginMerged, unionHits(a, b, opposed(a, b)))
	for _, factor := range strangeHitFactors {
		if err := m.Fitter.Fit(merged); err != nil {
			return nil, 0
		}
		m.removeStrangeHits(merged, factor)
	}
	if err := m.Fitter.Fit(merged); err != nil {
		return nil, 0
	}
	if merged.Size() <= max(a.Size(), b.Size()) || merged.Size() < m.MinHits {
		return nil, 0
	}
	Normalize(merged)
	return merged, merged.Helix.Circle.PValue()
}

// removeStrangeHits drops axial hits whose wire distance from the circle
// differs from the drift length by more than factor drift lengths. The cut
// never goes below the drift resolution.
func (m Merger) removeStrangeHits(t *Track, factor float64) {
	c := t.Helix.Circle
	keepHits(t, func(h l5segments.RecoHit3D) bool {
		if !m.Fitter.Topology.IsAxialSuperLayer(h.Hit.ISuperLayer()) {
			return true
		}
		dist := math.Abs(math.Abs(c.DistanceLeft(h.Hit.RefPos)) - h.Hit.DriftLength)
		return dist <= factor*math.Max(h.Hit.DriftLength, math.Sqrt(h.Hit.DriftVariance))
	})
}
