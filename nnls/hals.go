// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nnls

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	halsMaxIter = 500
	halsDelta   = 0.01
)

// HALS is the accelerated hierarchical alternating least squares method.
//
// Each sweep updates the rows of 𝐗 one after another with the closed form
//
//	𝐗ₖ ← 𝚖𝚊𝚡(0, 𝐗ₖ + ((𝐀ᵀ𝐁)ₖ - (𝐀ᵀ𝐀)ₖ𝐗) / (𝐀ᵀ𝐀)ₖₖ)
//
// and the sweeps stop once the squared update norm falls below Delta² times the first one.
// Rows that collapse to zero are reset to 10⁻¹⁶·𝚖𝚊𝚡(𝐗) to keep them alive.
//
// # References
//
//	N. Gillis, F. Glineur, 'Accelerated Multiplicative Updates and Hierarchical ALS Algorithms
//	for Nonnegative Matrix Factorization', Neural Computation 24(4), 2012.
type HALS struct {
	// MaxIter is the maximum number of sweeps, 500 when zero.
	MaxIter int
	// Delta is the relative stopping tolerance, 0.01 when zero.
	Delta float64
}

// Solve implements Solver. A nil warm start begins from the projected unconstrained solution.
func (s HALS) Solve(a, b mat.Matrix, x0 *mat.Dense) (*mat.Dense, error) {
	_, r, n, err := checkDims(a, b, x0)
	if err != nil {
		return nil, err
	}

	var atb, ata mat.Dense
	atb.Mul(a.T(), b)
	ata.Mul(a.T(), a)
	return s.SolveNormal(&atb, &ata, x0, r, n)
}

// SolveNormal runs the sweeps on precomputed 𝐀ᵀ𝐁 (r × n) and 𝐀ᵀ𝐀 (r × r).
func (s HALS) SolveNormal(atb, ata *mat.Dense, x0 *mat.Dense, r, n int) (*mat.Dense, error) {
	maxIter, delta := s.MaxIter, s.Delta
	if maxIter <= 0 {
		maxIter = halsMaxIter
	}
	if delta <= 0 {
		delta = halsDelta
	}

	x := mat.NewDense(r, n, nil)
	if x0 != nil {
		x.Copy(x0)
	} else if err := x.Solve(ata, atb); err != nil {
		// singular or ill-conditioned Gram matrix, start from zero
		x.Zero()
	}
	x.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)

	step := make([]float64, n)
	eps0 := 0.0
	for iter := 1; iter <= maxIter; iter++ {
		var sweep float64
		for k := 0; k < r; k++ {
			akk := ata.At(k, k)
			if akk == 0 {
				continue
			}
			xk := x.RawRowView(k)
			// 𝛅 = 𝚖𝚊𝚡(((𝐀ᵀ𝐁)ₖ - (𝐀ᵀ𝐀)ₖ𝐗) / (𝐀ᵀ𝐀)ₖₖ, -𝐗ₖ)
			for j := 0; j < n; j++ {
				v := atb.At(k, j)
				for l := 0; l < r; l++ {
					v -= ata.At(k, l) * x.At(l, j)
				}
				step[j] = math.Max(v/akk, -xk[j])
			}
			floats.Add(xk, step)
			sweep += floats.Dot(step, step)

			if floats.Max(xk) == 0 {
				floor := 1e-16 * mat.Max(x)
				for j := range xk {
					xk[j] = floor
				}
			}
		}
		if iter == 1 {
			eps0 = sweep
		}
		if sweep < delta*delta*eps0 || sweep == 0 {
			break
		}
	}
	return x, nil
}
