package l6tracks

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// Attacher appends left-over axial hits to the tracks passing them.
type Attacher struct {
	Fitter Fitter
	// MaxDistance is the largest difference between a hit's drift length
	// and its wire's distance from the track circle (cm).
	MaxDistance float64
}

// Apply gives every unused, non-background axial hit to the closest track
// within MaxDistance and refits the tracks that grew. It returns the number
// of attached hits.
func (a Attacher) Apply(tracks []*Track, hits []*l2hits.WireHit) int {
	used := make(map[*l2hits.WireHit]bool)
	for _, t := range tracks {
		for _, h := range t.Hits {
			used[h.Hit] = true
		}
	}

	grown := make(map[*Track]bool)
	attached := 0
	for _, h := range hits {
		if used[h] || h.IsBackground() || !a.Fitter.Topology.IsAxialSuperLayer(h.ISuperLayer()) {
			continue
		}
		var best *Track
		bestDist := 0.0
		for _, t := range tracks {
			c := t.Helix.Circle
			if !c.Valid || t.Rejected() {
				continue
			}
			// only the arm after the perigee
			if c.ArcLength(h.RefPos) < c.ArcLength(r2.Vec{}) {
				continue
			}
			if d := math.Abs(math.Abs(c.DistanceLeft(h.RefPos)) - h.DriftLength); d <= a.MaxDistance && (best == nil || d < bestDist) {
				best, bestDist = t, d
			}
		}
		if best == nil {
			continue
		}
		c := best.Helix.Circle
		best.Hits = append(best.Hits, AxialHit(h, PassageSide(c, h.RefPos), c))
		used[h] = true
		grown[best] = true
		attached++
	}
	for _, t := range tracks {
		if grown[t] {
			a.Fitter.Refit(t)
		}
	}
	diagf("attached %d hits to %d tracks", attached, len(grown))
	return attached
}
