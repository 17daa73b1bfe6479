package l2hits

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
)

// AsicBackgroundDetector flags cross-talk: many hits of one front-end ASIC
// with nearly identical drift times and too few other hits to look like
// signal.
type AsicBackgroundDetector struct {
	MinHits       int     // groups with fewer hits are not inspected
	MaxDeviation  float64 // ns from the group median counted as cross-talk
	MaxSignalHits int     // largest number of other hits still considered cross-talk
}

// DefaultAsicBackgroundDetector returns the detector of the defaults file.
func DefaultAsicBackgroundDetector() AsicBackgroundDetector {
	return AsicBackgroundDetector{MinHits: 4, MaxDeviation: 10, MaxSignalHits: 2}
}

// Apply flags cross-talk hits as ASIC background and background. hits must
// be sorted by wire id. It returns the number of newly flagged hits.
func (d AsicBackgroundDetector) Apply(hits []WireHit) int {
	flagged := 0
	for start := 0; start < len(hits); {
		end := start + 1
		for end < len(hits) && hits[end].ASIC == hits[start].ASIC {
			end++
		}
		flagged += d.applyGroup(hits[start:end])
		start = end
	}
	if flagged > 0 {
		diagf("asic detector flagged %d cross-talk hits", flagged)
	}
	return flagged
}

func (d AsicBackgroundDetector) applyGroup(group []WireHit) int {
	if len(group) < d.MinHits {
		return 0
	}
	times := make([]float64, len(group))
	for i := range group {
		times[i] = group[i].DriftTime
	}
	sort.Float64s(times)
	median := stat.Quantile(0.5, stat.Empirical, times, nil)

	signal := 0
	for i := range group {
		if math.Abs(group[i].DriftTime-median) > d.MaxDeviation {
			signal++
		}
	}
	if signal > d.MaxSignalHits {
		return 0
	}

	flagged := 0
	for i := range group {
		h := &group[i]
		if math.Abs(h.DriftTime-median) > d.MaxDeviation {
			continue
		}
		if !h.ASICBackground {
			flagged++
		}
		h.ASICBackground = true
		h.cell.SetFlag(automaton.FlagBackground)
	}
	return flagged
}
