package l4facets

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
)

// Tangent is the line touching the drift circles of two hits on the sides
// given by their RL hypotheses, travelling from the first to the second.
type Tangent struct {
	From, To r2.Vec // touch points
	Dir      r2.Vec // unit travel direction
}

// Length is the distance between the touch points.
func (t Tangent) Length() float64 { return r2.Norm(r2.Sub(t.To, t.From)) }

// Normal is the left normal of the travel direction.
func (t Tangent) Normal() r2.Vec { return r2.Vec{X: -t.Dir.Y, Y: t.Dir.X} }

// DistanceTo is the signed distance of p from the tangent line, positive
// on the left.
func (t Tangent) DistanceTo(p r2.Vec) float64 {
	return r2.Dot(t.Normal(), r2.Sub(p, t.From))
}

// NewTangent computes the tangent from a to b. Hits with RL Right lie to the
// right of the line. ok is false when no such line exists, which happens
// when the drift circles overlap too much for the requested sides.
func NewTangent(a, b l2hits.RLWireHit) (t Tangent, ok bool) {
	pa, pb := a.Hit.RefPos, b.Hit.RefPos
	d := r2.Sub(pb, pa)
	l := r2.Norm(d)
	if l == 0 {
		return Tangent{}, false
	}
	u := r2.Scale(1/l, d)
	delta := b.SignedDriftLength() - a.SignedDriftLength()
	if math.Abs(delta) > l {
		return Tangent{}, false
	}
	alpha := -delta / l
	beta := math.Sqrt(math.Max(0, 1-alpha*alpha))
	// n is the left normal of the travel direction.
	n := r2.Add(r2.Scale(alpha, u), r2.Scale(beta, r2.Vec{X: -u.Y, Y: u.X}))
	dir := r2.Vec{X: n.Y, Y: -n.X}
	return Tangent{
		From: r2.Add(pa, r2.Scale(a.SignedDriftLength(), n)),
		To:   r2.Add(pb, r2.Scale(b.SignedDriftLength(), n)),
		Dir:  dir,
	}, true
}

// Angle returns the unsigned angle between two directions in [0, π].
func Angle(a, b r2.Vec) float64 {
	return math.Abs(math.Atan2(r2.Cross(a, b), r2.Dot(a, b)))
}
