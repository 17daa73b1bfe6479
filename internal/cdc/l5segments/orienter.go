package l5segments

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInvalidOrientation reports an unknown orientation name.
var ErrInvalidOrientation = errors.New("invalid orientation")

// Orientation selects how segments and tracks are directed.
type Orientation string

const (
	OrientationNone      Orientation = "none"
	OrientationOutwards  Orientation = "outwards"
	OrientationDownwards Orientation = "downwards"
	OrientationSymmetric Orientation = "symmetric"
	OrientationCurling   Orientation = "curling"
)

// ParseOrientation validates an orientation name.
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(s); o {
	case OrientationNone, OrientationOutwards, OrientationDownwards, OrientationSymmetric, OrientationCurling:
		return o, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidOrientation, s)
}

// Orientable is anything the orienter can direct.
type Orientable[T any] interface {
	// Endpoints returns the first and last positions.
	Endpoints() (first, last r2.Vec)
	// StartDirection is the travel direction at the first position.
	StartDirection() r2.Vec
	// IsCurler reports whether the trajectory turns back inside the chamber.
	IsCurler() bool
	Reversed() T
	Key() string
}

// Orient directs items according to o. Symmetric emits every item in both
// directions and curling does so for curlers only; the others pick one
// direction. The output holds no two items with the same key, and
// orienting an oriented list again changes nothing.
func Orient[T Orientable[T]](o Orientation, items []T) []T {
	out := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	emit := func(t T) {
		k := t.Key()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, t)
	}
	for _, it := range items {
		switch o {
		case OrientationNone:
			emit(it)
		case OrientationOutwards:
			emit(outwards(it))
		case OrientationDownwards:
			emit(downwards(it))
		case OrientationSymmetric:
			emit(it)
			emit(it.Reversed())
		case OrientationCurling:
			if it.IsCurler() {
				emit(it)
				emit(it.Reversed())
			} else {
				emit(outwards(it))
			}
		}
	}
	return out
}

func outwards[T Orientable[T]](it T) T {
	first, last := it.Endpoints()
	dr := r2.Norm(last) - r2.Norm(first)
	if dr < 0 || (dr == 0 && r2.Dot(it.StartDirection(), first) < 0) {
		return it.Reversed()
	}
	return it
}

func downwards[T Orientable[T]](it T) T {
	first, last := it.Endpoints()
	dy := last.Y - first.Y
	if dy > 0 || (dy == 0 && it.StartDirection().Y > 0) {
		return it.Reversed()
	}
	return it
}

// SegmentOrienter directs segments.
type SegmentOrienter struct {
	Orientation     Orientation
	OuterWallRadius float64
}

// Apply orients segs.
func (o SegmentOrienter) Apply(segs []*Segment2D) []*Segment2D {
	items := make([]orientedSegment, len(segs))
	for i, s := range segs {
		items[i] = orientedSegment{Segment2D: s, wall: o.OuterWallRadius}
	}
	oriented := Orient(o.Orientation, items)
	out := make([]*Segment2D, len(oriented))
	index := make(map[string]int, len(oriented))
	for i, s := range oriented {
		out[i] = s.Segment2D
		index[s.Key()] = i
	}
	// the later of two opposite copies is the alias
	for i, s := range out {
		j, ok := index[s.reversedKey()]
		s.Alias = ok && j < i
	}
	tracef("oriented %d segments %s -> %d", len(segs), o.Orientation, len(out))
	return out
}

type orientedSegment struct {
	*Segment2D
	wall float64
}

func (s orientedSegment) Endpoints() (r2.Vec, r2.Vec) { return s.Front().Pos, s.Back().Pos }

func (s orientedSegment) StartDirection() r2.Vec { return s.TravelDirection() }

func (s orientedSegment) IsCurler() bool {
	return s.Trajectory.Valid && s.Trajectory.IsCurler(s.wall)
}

func (s orientedSegment) Reversed() orientedSegment {
	return orientedSegment{Segment2D: s.Segment2D.Reversed(), wall: s.wall}
}
