package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrFitFailed reports a degenerate or non-finite fit.
var ErrFitFailed = errors.New("fit failed")

// Trajectory2D is a circle (or line) travelled in a fixed direction. The
// circle passes through Support with direction angle Phi there.
type Trajectory2D struct {
	Curvature float64
	Support   r2.Vec
	Phi       float64

	Chi2  float64
	NDF   int
	Cov   *mat.SymDense // (curvature, phi, impact) at Support; nil if unknown
	Valid bool
}

// NewLine returns the straight trajectory through p with direction phi.
func NewLine(p r2.Vec, phi float64) Trajectory2D {
	return Trajectory2D{Support: p, Phi: phi, Valid: true}
}

// Direction is the unit travel direction at the support point.
func (t Trajectory2D) Direction() r2.Vec { return r2.Vec{X: math.Cos(t.Phi), Y: math.Sin(t.Phi)} }

func (t Trajectory2D) left() r2.Vec { return r2.Vec{X: -math.Sin(t.Phi), Y: math.Cos(t.Phi)} }

// local returns the components of p relative to the support point across
// (a, positive left) and along (b) the travel direction.
func (t Trajectory2D) local(p r2.Vec) (a, b float64) {
	d := r2.Sub(p, t.Support)
	return r2.Dot(t.left(), d), r2.Dot(t.Direction(), d)
}

// DistanceLeft is the signed distance of p from the trajectory, positive
// on the left.
func (t Trajectory2D) DistanceLeft(p r2.Vec) float64 {
	a, b := t.local(p)
	big := 2*a - t.Curvature*(a*a+b*b)
	return big / (1 + math.Sqrt(math.Max(0, 1-t.Curvature*big)))
}

// ArcLength is the arc length from the support point to the point of
// closest approach to p, in (-π/|κ|, π/|κ|].
func (t Trajectory2D) ArcLength(p r2.Vec) float64 {
	a, b := t.local(p)
	if t.Curvature == 0 {
		return b
	}
	return math.Atan2(t.Curvature*b, 1-t.Curvature*a) / t.Curvature
}

// Position returns the point at arc length s.
func (t Trajectory2D) Position(s float64) r2.Vec {
	k := t.Curvature
	along, across := s, 0.0
	if k != 0 {
		along = math.Sin(k*s) / k
		across = (1 - math.Cos(k*s)) / k
	}
	return r2.Add(t.Support, r2.Add(r2.Scale(along, t.Direction()), r2.Scale(across, t.left())))
}

// DirectionAt is the unit travel direction at arc length s.
func (t Trajectory2D) DirectionAt(s float64) r2.Vec {
	phi := t.Phi + t.Curvature*s
	return r2.Vec{X: math.Cos(phi), Y: math.Sin(phi)}
}

// Closest returns the point of the trajectory closest to p.
func (t Trajectory2D) Closest(p r2.Vec) r2.Vec { return t.Position(t.ArcLength(p)) }

// Radius is the absolute radius, +Inf for lines.
func (t Trajectory2D) Radius() float64 { return 1 / math.Abs(t.Curvature) }

// Center is the circle center; ok is false for lines.
func (t Trajectory2D) Center() (c r2.Vec, ok bool) {
	if t.Curvature == 0 {
		return r2.Vec{}, false
	}
	return r2.Add(t.Support, r2.Scale(1/t.Curvature, t.left())), true
}

// Impact is the signed distance of the origin, positive when the origin is
// on the left.
func (t Trajectory2D) Impact() float64 { return t.DistanceLeft(r2.Vec{}) }

// Phi0 is the direction angle at the point of closest approach to the
// origin.
func (t Trajectory2D) Phi0() float64 {
	return normalizeAngle(t.Phi + t.Curvature*t.ArcLength(r2.Vec{}))
}

// IsCurler reports whether the circle turns back inside a cylinder of the
// given radius.
func (t Trajectory2D) IsCurler(radius float64) bool {
	return 2*t.Radius()+math.Abs(t.Impact()) < radius
}

// ExitArcLength is the smallest positive arc length at which the trajectory
// crosses the cylinder of the given radius outwards. ok is false when it
// never leaves.
func (t Trajectory2D) ExitArcLength(radius float64) (s float64, ok bool) {
	// scan in 0.5 cm steps over at most one turn, then bisect
	limit := 2 * radius
	if t.Curvature != 0 {
		limit = min(limit, 2*math.Pi/math.Abs(t.Curvature))
	}
	f := func(s float64) float64 { return r2.Norm(t.Position(s)) - radius }
	step := 0.5
	prev := f(0)
	for x := step; x <= limit+step; x += step {
		cur := f(x)
		if prev < 0 && cur >= 0 {
			return bisect(f, x-step, x, 1e-6), true
		}
		prev = cur
	}
	return 0, false
}

// Reversed returns the trajectory travelled in the opposite direction.
func (t Trajectory2D) Reversed() Trajectory2D {
	r := t
	r.Curvature = -t.Curvature
	r.Phi = normalizeAngle(t.Phi + math.Pi)
	if t.Cov != nil {
		r.Cov = mat.NewSymDense(3, nil)
		sign := [3]float64{-1, 1, -1}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				r.Cov.SetSym(i, j, sign[i]*sign[j]*t.Cov.At(i, j))
			}
		}
	}
	return r
}

// Moved returns the same trajectory supported at arc length s. The
// covariance is transported to the new support point.
func (t Trajectory2D) Moved(s float64) Trajectory2D {
	m := t
	m.Support = t.Position(s)
	m.Phi = normalizeAngle(t.Phi + t.Curvature*s)
	m.Cov = nil
	if t.Cov != nil {
		m.Cov = transportCovariance(t, m.Support, t.Cov)
	}
	return m
}

// transportCovariance maps cov of (κ, φ, d) at t.Support to the parameters
// seen from ref, using a numeric Jacobian.
func transportCovariance(t Trajectory2D, ref r2.Vec, cov *mat.SymDense) *mat.SymDense {
	params := [3]float64{t.Curvature, t.Phi, 0}
	steps := [3]float64{1e-7, 1e-7, 1e-6}
	at := func(p [3]float64) [3]float64 {
		q := fromParams(t.Support, p[0], p[1], p[2])
		dir := q.DirectionAt(q.ArcLength(ref))
		return [3]float64{p[0], math.Atan2(dir.Y, dir.X), q.DistanceLeft(ref)}
	}
	jac := mat.NewDense(3, 3, nil)
	for j := range 3 {
		up, down := params, params
		up[j] += steps[j]
		down[j] -= steps[j]
		fu, fd := at(up), at(down)
		for i := range 3 {
			diff := fu[i] - fd[i]
			if i == 1 {
				diff = normalizeAngle(diff)
			}
			jac.Set(i, j, diff/(2*steps[j]))
		}
	}
	var jc mat.Dense
	jc.Mul(jac, cov)
	var full mat.Dense
	full.Mul(&jc, jac.T())
	out := mat.NewSymDense(3, nil)
	for i := range 3 {
		for k := i; k < 3; k++ {
			out.SetSym(i, k, 0.5*(full.At(i, k)+full.At(k, i)))
		}
	}
	return out
}

// PValue is the chi-square probability of the fit, 1 without degrees of
// freedom.
func (t Trajectory2D) PValue() float64 { return pValue(t.Chi2, t.NDF) }

func (t Trajectory2D) String() string {
	return fmt.Sprintf("circle(κ=%.4g φ0=%.4g d0=%.4g)", t.Curvature, t.Phi0(), t.Impact())
}

func pValue(chi2 float64, ndf int) float64 {
	if ndf <= 0 {
		return 1
	}
	if math.IsNaN(chi2) {
		return 0
	}
	return distuv.ChiSquared{K: float64(ndf)}.Survival(chi2)
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// bisect finds a root of f in [lo, hi] assuming a sign change.
func bisect(f func(float64) float64, lo, hi, tol float64) float64 {
	flo := f(lo)
	for i := 0; i < 100 && hi-lo > tol; i++ {
		mid := 0.5 * (lo + hi)
		fm := f(mid)
		if (fm < 0) == (flo < 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}
