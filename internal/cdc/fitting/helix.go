package fitting

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Helix combines a transverse circle with a longitudinal line sharing the
// circle's support point as arc length origin.
type Helix struct {
	Circle Trajectory2D
	SZ     SZLine
}

// Position returns the 3D point at transverse arc length s.
func (h Helix) Position(s float64) r3.Vec {
	p := h.Circle.Position(s)
	return r3.Vec{X: p.X, Y: p.Y, Z: h.SZ.Z(s)}
}

// Reversed returns the helix travelled in the opposite direction.
func (h Helix) Reversed() Helix {
	return Helix{Circle: h.Circle.Reversed(), SZ: h.SZ.Reversed()}
}

// Moved returns the helix with its support point at arc length s.
func (h Helix) Moved(s float64) Helix {
	return Helix{Circle: h.Circle.Moved(s), SZ: h.SZ.Moved(s)}
}

// Cov returns the 5x5 covariance of (κ, φ, d, tanλ, z0). Unknown blocks are
// left zero; nil is returned when neither block is known.
func (h Helix) Cov() *mat.SymDense {
	if h.Circle.Cov == nil && h.SZ.Cov == nil {
		return nil
	}
	cov := mat.NewSymDense(5, nil)
	if c := h.Circle.Cov; c != nil {
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				cov.SetSym(i, j, c.At(i, j))
			}
		}
	}
	if c := h.SZ.Cov; c != nil {
		for i := 0; i < 2; i++ {
			for j := i; j < 2; j++ {
				cov.SetSym(3+i, 3+j, c.At(i, j))
			}
		}
	}
	return cov
}

// Chi2 sums both fits.
func (h Helix) Chi2() float64 { return h.Circle.Chi2 + h.SZ.Chi2 }

// NDF sums both fits.
func (h Helix) NDF() int { return max(0, h.Circle.NDF) + max(0, h.SZ.NDF) }

// PValue is the probability of the combined chi-square.
func (h Helix) PValue() float64 { return pValue(h.Chi2(), h.NDF()) }

// ReconstructZ finds the height at which a stereo wire, positioned by
// wireAt, touches the trajectory on the side given by signedDrift (the
// drift length times the RL sign, positive when the wire is to the right).
// It returns the height, the 2D point on the trajectory and its arc length.
// ok is false when no height inside [zMin, zMax] matches.
func ReconstructZ(t Trajectory2D, wireAt func(z float64) r2.Vec, zMin, zMax, signedDrift float64) (z float64, pos r2.Vec, s float64, ok bool) {
	f := func(z float64) float64 { return t.DistanceLeft(wireAt(z)) + signedDrift }
	lo, hi := f(zMin), f(zMax)
	if math.IsNaN(lo) || math.IsNaN(hi) || ((lo < 0) == (hi < 0) && lo != 0 && hi != 0) {
		return 0, r2.Vec{}, 0, false
	}
	switch {
	case lo == 0:
		z = zMin
	case hi == 0:
		z = zMax
	default:
		z = bisect(f, zMin, zMax, 1e-6)
	}
	wire := wireAt(z)
	s = t.ArcLength(wire)
	return z, t.Position(s), s, true
}
