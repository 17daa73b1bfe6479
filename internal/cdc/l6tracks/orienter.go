package l6tracks

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/l5segments"
)

// Orienter directs tracks like segments are directed.
type Orienter struct {
	Orientation     l5segments.Orientation
	OuterWallRadius float64
}

// Apply orients tracks and drops empty ones. Reversed copies are
// renormalized so their arc lengths start at zero again.
func (o Orienter) Apply(tracks []*Track) []*Track {
	items := make([]orientedTrack, 0, len(tracks))
	for _, t := range tracks {
		if !t.Empty() {
			items = append(items, orientedTrack{Track: t, wall: o.OuterWallRadius})
		}
	}
	oriented := l5segments.Orient(o.Orientation, items)
	out := make([]*Track, len(oriented))
	for i, t := range oriented {
		out[i] = t.Track
	}
	tracef("oriented %d tracks %s -> %d", len(tracks), o.Orientation, len(out))
	return out
}

type orientedTrack struct {
	*Track
	wall float64
}

func (t orientedTrack) Endpoints() (r2.Vec, r2.Vec) {
	return t.Hits[0].Pos2D(), t.Hits[len(t.Hits)-1].Pos2D()
}

func (t orientedTrack) StartDirection() r2.Vec {
	if t.Helix.Circle.Valid {
		return t.Helix.Circle.DirectionAt(t.Hits[0].ArcLength2D)
	}
	first, last := t.Endpoints()
	d := r2.Sub(last, first)
	if n := r2.Norm(d); n > 0 {
		return r2.Scale(1/n, d)
	}
	return d
}

func (t orientedTrack) IsCurler() bool {
	return t.Helix.Circle.Valid && t.Helix.Circle.IsCurler(t.wall)
}

func (t orientedTrack) Reversed() orientedTrack {
	r := t.Track.Reversed()
	Normalize(r)
	return orientedTrack{Track: r, wall: t.wall}
}
