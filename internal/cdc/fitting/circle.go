package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultVariance is used for observations without a positive variance
// (cm²).
const DefaultVariance = 0.01 * 0.01

// Observation is one measured point of a fit with its variance across the
// trajectory.
type Observation struct {
	Pos      r2.Vec
	Variance float64
}

func (o Observation) weight() float64 {
	if o.Variance > 0 {
		return 1 / o.Variance
	}
	return 1 / DefaultVariance
}

// FitCircle fits a circle to the observations with Karimäki's closed-form
// method. The travel direction is chosen so that the arc length grows from
// the first to the last observation, and the support point is the point of
// closest approach to the weighted centroid.
//
// Algorithm:
//  1. Move to the weighted centroid c
//  2. Accumulate the weighted moments of x, y and r² = x²+y²
//  3. φ = ½ atan2(2q1, q2) with q1, q2 from the moments
//  4. ρ and d from φ (Karimäki's curvature is positive clockwise)
//  5. Orient along the observation order
//  6. Covariance (JᵀWJ)⁻¹ of (κ, φ, d) from a numeric Jacobian
func FitCircle(obs []Observation) (Trajectory2D, error) {
	n := len(obs)
	switch {
	case n < 2:
		return Trajectory2D{}, fmt.Errorf("%w: %d observations", ErrFitFailed, n)
	case n == 2:
		d := r2.Sub(obs[1].Pos, obs[0].Pos)
		if r2.Norm(d) == 0 {
			return Trajectory2D{}, fmt.Errorf("%w: coincident points", ErrFitFailed)
		}
		t := NewLine(r2.Scale(0.5, r2.Add(obs[0].Pos, obs[1].Pos)), math.Atan2(d.Y, d.X))
		return t, nil
	}

	// Step 1: weighted centroid
	var sw float64
	var c r2.Vec
	for _, o := range obs {
		w := o.weight()
		sw += w
		c = r2.Add(c, r2.Scale(w, o.Pos))
	}
	c = r2.Scale(1/sw, c)

	// Step 2: moments around the centroid
	var cxx, cxy, cyy, rm, cxr, cyr, rr float64
	for _, o := range obs {
		w := o.weight() / sw
		p := r2.Sub(o.Pos, c)
		r2n := p.X*p.X + p.Y*p.Y
		cxx += w * p.X * p.X
		cxy += w * p.X * p.Y
		cyy += w * p.Y * p.Y
		rm += w * r2n
		cxr += w * p.X * r2n
		cyr += w * p.Y * r2n
		rr += w * r2n * r2n
	}
	crr := rr - rm*rm
	if !(crr > 1e-18) {
		return Trajectory2D{}, fmt.Errorf("%w: degenerate moments", ErrFitFailed)
	}

	// Step 3: direction at the point of closest approach
	q1 := crr*cxy - cxr*cyr
	q2 := crr*(cxx-cyy) - cxr*cxr + cyr*cyr
	phi := 0.5 * math.Atan2(2*q1, q2)
	sin, cos := math.Sincos(phi)

	// Step 4: curvature and distance of closest approach
	kappa := (sin*cxr - cos*cyr) / crr
	delta := -kappa * rm
	root := math.Sqrt(1 - 4*delta*kappa)
	rho := 2 * kappa / root
	d := 2 * delta / (1 + root)

	t := fromParams(c, -rho, phi, d)
	if !finite(t.Curvature, t.Phi, t.Support.X, t.Support.Y) {
		return Trajectory2D{}, fmt.Errorf("%w: non-finite parameters", ErrFitFailed)
	}

	// Step 5: orientation
	if t.ArcLength(obs[n-1].Pos) < t.ArcLength(obs[0].Pos) {
		t = t.Reversed()
	}
	t.Valid = true
	t.NDF = n - 3
	for _, o := range obs {
		r := t.DistanceLeft(o.Pos)
		t.Chi2 += o.weight() * r * r
	}

	// Step 6: covariance
	t.Cov = circleCovariance(t, obs)
	return t, nil
}

// fromParams builds the trajectory with curvature kappa, direction phi and
// distance d of ref (positive left).
func fromParams(ref r2.Vec, kappa, phi, d float64) Trajectory2D {
	left := r2.Vec{X: -math.Sin(phi), Y: math.Cos(phi)}
	return Trajectory2D{Curvature: kappa, Phi: phi, Support: r2.Sub(ref, r2.Scale(d, left))}
}

func circleCovariance(t Trajectory2D, obs []Observation) *mat.SymDense {
	ref := t.Support
	params := [3]float64{t.Curvature, t.Phi, 0}
	steps := [3]float64{1e-7, 1e-7, 1e-6}

	jac := mat.NewDense(len(obs), 3, nil)
	for j := 0; j < 3; j++ {
		up, down := params, params
		up[j] += steps[j]
		down[j] -= steps[j]
		tu := fromParams(ref, up[0], up[1], up[2])
		td := fromParams(ref, down[0], down[1], down[2])
		for i, o := range obs {
			deriv := (tu.DistanceLeft(o.Pos) - td.DistanceLeft(o.Pos)) / (2 * steps[j])
			jac.Set(i, j, deriv*math.Sqrt(o.weight()))
		}
	}

	info := mat.NewSymDense(3, nil)
	info.SymOuterK(1, jac.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return nil
	}
	cov := mat.NewSymDense(3, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil
	}
	return cov
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
