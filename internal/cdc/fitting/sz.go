package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SZLine is the longitudinal model z(s) = Z0 + TanLambda·s.
type SZLine struct {
	Z0        float64
	TanLambda float64

	Chi2  float64
	NDF   int
	Cov   *mat.SymDense // (tanλ, z0); nil if unknown
	Valid bool
}

// Z returns the height at arc length s.
func (l SZLine) Z(s float64) float64 { return l.Z0 + l.TanLambda*s }

// PValue is the chi-square probability of the fit.
func (l SZLine) PValue() float64 { return pValue(l.Chi2, l.NDF) }

// Reversed returns the line seen with the arc length running backwards.
func (l SZLine) Reversed() SZLine {
	r := l
	r.TanLambda = -l.TanLambda
	if l.Cov != nil {
		r.Cov = mat.NewSymDense(2, []float64{
			l.Cov.At(0, 0), -l.Cov.At(0, 1),
			-l.Cov.At(0, 1), l.Cov.At(1, 1),
		})
	}
	return r
}

// Moved returns the line with its arc length origin at s.
func (l SZLine) Moved(s float64) SZLine {
	m := l
	m.Z0 = l.Z(s)
	if l.Cov != nil {
		vt, c, vz := l.Cov.At(0, 0), l.Cov.At(0, 1), l.Cov.At(1, 1)
		m.Cov = mat.NewSymDense(2, []float64{
			vt, c + s*vt,
			c + s*vt, vz + 2*s*c + s*s*vt,
		})
	}
	return m
}

// FitSZ fits z = z0 + tanλ·s by weighted least squares. variances may be
// nil for unit weights.
func FitSZ(s, z, variances []float64) (SZLine, error) {
	n := len(s)
	if n < 2 || len(z) != n || (variances != nil && len(variances) != n) {
		return SZLine{}, fmt.Errorf("%w: %d sz points", ErrFitFailed, n)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
		if variances != nil && variances[i] > 0 {
			w[i] = 1 / variances[i]
		}
	}

	z0, tanLambda := stat.LinearRegression(s, z, w, false)
	if !finite(z0, tanLambda) {
		return SZLine{}, fmt.Errorf("%w: degenerate arc lengths", ErrFitFailed)
	}
	line := SZLine{Z0: z0, TanLambda: tanLambda, NDF: n - 2, Valid: true}

	var sw, sws, swss float64
	for i := range s {
		r := z[i] - line.Z(s[i])
		line.Chi2 += w[i] * r * r
		sw += w[i]
		sws += w[i] * s[i]
		swss += w[i] * s[i] * s[i]
	}
	det := sw*swss - sws*sws
	if det > 0 && !math.IsInf(det, 0) {
		line.Cov = mat.NewSymDense(2, []float64{
			sw / det, -sws / det,
			-sws / det, swss / det,
		})
	}
	return line, nil
}
