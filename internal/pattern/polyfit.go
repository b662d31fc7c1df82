// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pattern

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// A polynomial in a rescaled abscissa t=(x-Offset)/Scale, with Coeffs[k]
// the coefficient of t^k
type Polynomial struct {
	Coeffs []float64
	Offset float64
	Scale  float64
}

// Evaluates the polynomial at x with Horner's scheme
func (p Polynomial) Eval(x float64) float64 {
	t := (x - p.Offset) / p.Scale
	res := 0.0
	for k := len(p.Coeffs) - 1; k >= 0; k-- {
		res = res*t + p.Coeffs[k]
	}
	return res
}

// Least squares fit of a polynomial of the given degree to the samples (xs[i], ys[i]).
// Samples where either coordinate is not finite are ignored. The abscissae are
// rescaled to [-1,1] before building the Vandermonde matrix, which keeps the
// QR solve well conditioned for the tile sizes in use.
func FitPolynomial(xs, ys []float64, degree int) (Polynomial, error) {
	if degree < 0 {
		return Polynomial{}, fmt.Errorf("polynomial degree %d must not be negative", degree)
	}
	if len(xs) != len(ys) {
		return Polynomial{}, shapeMismatchf("%d abscissae for %d ordinates", len(xs), len(ys))
	}

	// gather finite samples
	fx, fy := make([]float64, 0, len(xs)), make([]float64, 0, len(ys))
	minX, maxX := math.Inf(1), math.Inf(-1)
	for i, x := range xs {
		y := ys[i]
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		fx, fy = append(fx, x), append(fy, y)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
	}
	n, cols := len(fx), degree+1
	if n < cols {
		return Polynomial{}, &InsufficientDataError{Chunk: -1, Points: n, Degree: degree}
	}

	p := Polynomial{Offset: 0.5 * (minX + maxX), Scale: 0.5 * (maxX - minX)}
	if p.Scale == 0 {
		p.Scale = 1
	}

	// Vandermonde matrix, one row per sample
	a := mat.NewDense(n, cols, nil)
	for i, x := range fx {
		t, pow := (x-p.Offset)/p.Scale, 1.0
		for k := 0; k < cols; k++ {
			a.Set(i, k, pow)
			pow *= t
		}
	}
	b := mat.NewVecDense(n, fy)

	var qr mat.QR
	qr.Factorize(a)
	var coeffs mat.VecDense
	if err := qr.SolveVecTo(&coeffs, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Polynomial{}, err
		}
		// ill-conditioned but solved, e.g. repeated abscissae
	}
	p.Coeffs = make([]float64, cols)
	for k := range p.Coeffs {
		p.Coeffs[k] = coeffs.AtVec(k)
	}
	return p, nil
}
