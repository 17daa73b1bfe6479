package l6tracks

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/automaton"
	"github.com/banshee-data/cdctrack/internal/cdc/fitting"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// CombinerMode selects how the two track sets are matched.
type CombinerMode string

const (
	CombineAutomaton CombinerMode = "automaton"
	CombineHungarian CombinerMode = "hungarian"
)

// ParseCombinerMode validates a combiner mode name.
func ParseCombinerMode(s string) (CombinerMode, error) {
	switch m := CombinerMode(s); m {
	case CombineAutomaton, CombineHungarian:
		return m, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCombinerMode, s)
}

// Combiner matches tracks of two candidate sets that share hits and merges
// each matched pair.
type Combiner struct {
	Fitter Fitter
	Mode   CombinerMode
	// MinSharedFraction is the least share of the smaller track's hits
	// both tracks must have in common.
	MinSharedFraction float64
}

// SharedHits counts the wire hits a and b have in common.
func SharedHits(a, b *Track) int {
	in := make(map[*l2hits.WireHit]bool, a.Size())
	for _, h := range a.Hits {
		in[h.Hit] = true
	}
	n := 0
	for _, h := range b.Hits {
		if in[h.Hit] {
			n++
		}
	}
	return n
}

// weight is the relation weight between a and b: the number of shared
// hits, NaN below the shared fraction.
func (c Combiner) weight(a, b *Track) float64 {
	shared := SharedHits(a, b)
	smaller := min(a.Size(), b.Size())
	if shared == 0 || smaller == 0 || float64(shared)/float64(smaller) < c.MinSharedFraction {
		return math.NaN()
	}
	return float64(shared)
}

// Combine returns the merged matches followed by the unmatched tracks of
// a and then b, each in input order.
func (c Combiner) Combine(a, b []*Track) []*Track {
	var pairs [][2]int
	switch c.Mode {
	case CombineHungarian:
		pairs = c.matchHungarian(a, b)
	default:
		pairs = c.matchAutomaton(a, b)
	}

	usedA := make([]bool, len(a))
	usedB := make([]bool, len(b))
	var out []*Track
	for _, p := range pairs {
		usedA[p[0]], usedB[p[1]] = true, true
		out = append(out, c.Merge(a[p[0]], b[p[1]]))
	}
	for i, t := range a {
		if !usedA[i] {
			out = append(out, t)
		}
	}
	for j, t := range b {
		if !usedB[j] {
			out = append(out, t)
		}
	}
	diagf("combined %d + %d tracks: %d matched -> %d", len(a), len(b), len(pairs), len(out))
	return out
}

// matchAutomaton runs the multipass automaton on the bipartite graph from a
// to b. Every extracted path of two tracks is a match.
func (c Combiner) matchAutomaton(a, b []*Track) [][2]int {
	nodes := make([]*Track, 0, len(a)+len(b))
	index := make(map[*Track]int, len(a)+len(b))
	for i, t := range a {
		t.cell = automaton.NewCell(0)
		nodes = append(nodes, t)
		index[t] = i
	}
	for j, t := range b {
		t.cell = automaton.NewCell(0)
		nodes = append(nodes, t)
		index[t] = j
	}

	var rels []automaton.Relation[*Track]
	for _, ta := range a {
		for _, tb := range b {
			if w := c.weight(ta, tb); !math.IsNaN(w) {
				rels = append(rels, automaton.Relation[*Track]{From: ta, To: tb, Weight: w})
			}
		}
	}

	finder := automaton.NewMultipassCellularPathFinder[*Track]()
	finder.MinPathLength = 2
	finder.MinState = 1
	paths, stats := finder.Apply(nodes, rels)
	tracef("combiner automaton: %d passes, %d matches", stats.Passes, len(paths))

	var pairs [][2]int
	for _, p := range paths {
		pairs = append(pairs, [2]int{index[p.Nodes[0]], index[p.Nodes[1]]})
	}
	for _, t := range nodes {
		t.cell = automaton.NewCell(0)
	}
	return pairs
}

// matchHungarian assigns tracks one to one maximising the shared hits.
func (c Combiner) matchHungarian(a, b []*Track) [][2]int {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	cost := make([][]float64, len(a))
	for i, ta := range a {
		cost[i] = make([]float64, len(b))
		for j, tb := range b {
			cost[i][j] = hungarianInf
			if w := c.weight(ta, tb); !math.IsNaN(w) {
				cost[i][j] = -w
			}
		}
	}
	var pairs [][2]int
	for i, j := range hungarianAssign(cost) {
		if j >= 0 {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// Merge returns the union of both tracks' hits, refitted. b's hits are
// seen in a's travel direction. When the merged hits give no longitudinal
// fit, the line of a 3D input is carried over.
func (c Combiner) Merge(a, b *Track) *Track {
	flip := opposed(a, b)
	m := NewTrack(OriginMerged, unionHits(a, b, flip))
	if err := c.Fitter.Fit(m); err != nil {
		tracef("merge: %v", err)
		m.Helix = a.Helix
	}
	if !m.Helix.SZ.Valid {
		hb := b.Helix
		if flip {
			hb = hb.Reversed()
		}
		for _, h := range []fitting.Helix{a.Helix, hb} {
			if h.SZ.Valid && h.Circle.Valid {
				m.Helix.SZ = h.SZ.Moved(h.Circle.ArcLength(m.Helix.Circle.Support))
				break
			}
		}
	}
	Normalize(m)
	return m
}

// opposed reports whether b travels against a where b starts.
func opposed(a, b *Track) bool {
	if !a.Helix.Circle.Valid || !b.Helix.Circle.Valid || b.Empty() {
		return false
	}
	p := b.Hits[0].Pos2D()
	da := a.Helix.Circle.DirectionAt(a.Helix.Circle.ArcLength(p))
	db := b.Helix.Circle.DirectionAt(b.Helix.Circle.ArcLength(p))
	return r2.Dot(da, db) < 0
}

// unionHits returns a's hits followed by the hits only b has, sorted along
// a's circle. flip reverses the passage side of b's hits.
func unionHits(a, b *Track, flip bool) []l5segments.RecoHit3D {
	seen := make(map[*l2hits.WireHit]bool, a.Size()+b.Size())
	hits := make([]l5segments.RecoHit3D, 0, a.Size()+b.Size())
	for _, h := range a.Hits {
		seen[h.Hit] = true
		hits = append(hits, h)
	}
	for _, h := range b.Hits {
		if seen[h.Hit] {
			continue
		}
		seen[h.Hit] = true
		if flip {
			h.RLWireHit = h.RLWireHit.Reversed()
		}
		hits = append(hits, h)
	}
	if c := a.Helix.Circle; c.Valid {
		sort.SliceStable(hits, func(i, j int) bool {
			return c.ArcLength(hits[i].Pos2D()) < c.ArcLength(hits[j].Pos2D())
		})
	}
	return hits
}
