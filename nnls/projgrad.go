// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nnls

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	pgMaxOuter = 1000
	pgMaxInner = 20
	pgTol      = 1e-4
)

// ProjectedGradient is the projected gradient method with an Armijo-type step search.
//
// With the gradient 𝐆 = 𝐀ᵀ𝐀𝐗 - 𝐀ᵀ𝐁, every iteration tries 𝐗ₙ = 𝚖𝚊𝚡(0, 𝐗 - ɑ𝐆) and accepts it under
//
//	0.99 ⟨𝐆, 𝐃⟩ + ½ ⟨𝐃, 𝐀ᵀ𝐀𝐃⟩ < 0,  𝐃 = 𝐗ₙ - 𝐗
//
// The step ɑ is carried over between iterations: it shrinks by a factor 10 until the condition
// holds, or grows by the same factor while it keeps holding. The method stops once the norm of
// the projected gradient falls below Tol times its initial value, or after MaxOuter iterations
// with the last iterate.
//
// # References
//
//	C.-J. Lin, 'Projected Gradient Methods for Nonnegative Matrix Factorization',
//	Neural Computation 19(10), 2007.
type ProjectedGradient struct {
	MaxOuter int     // 1000 when zero
	MaxInner int     // step search trials per iteration, 20 when zero
	Tol      float64 // relative tolerance on the projected gradient, 1e-4 when zero
}

// Solve implements Solver. A nil warm start begins from zero.
func (s ProjectedGradient) Solve(a, b mat.Matrix, x0 *mat.Dense) (*mat.Dense, error) {
	_, r, n, err := checkDims(a, b, x0)
	if err != nil {
		return nil, err
	}
	outer, inner, tol := s.MaxOuter, s.MaxInner, s.Tol
	if outer <= 0 {
		outer = pgMaxOuter
	}
	if inner <= 0 {
		inner = pgMaxInner
	}
	if tol <= 0 {
		tol = pgTol
	}

	var atb, ata mat.Dense
	atb.Mul(a.T(), b)
	ata.Mul(a.T(), a)

	x := mat.NewDense(r, n, nil)
	if x0 != nil {
		x.Copy(x0)
		x.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)
	}

	alpha, beta := 1.0, 0.1
	var g mat.Dense
	for i := 0; i < outer; i++ {
		// 𝐆 = 𝐀ᵀ𝐀𝐗 - 𝐀ᵀ𝐁
		g.Mul(&ata, x)
		g.Sub(&g, &atb)

		pg := projectedNorm(&g, x)
		if i == 0 {
			tol *= pg
		}
		if pg <= tol {
			break
		}
		x, alpha = stepSearch(x, &g, &ata, alpha, beta, inner)
	}
	return x, nil
}

// projectedNorm returns the norm of the gradient restricted to the free variables.
func projectedNorm(g, x *mat.Dense) float64 {
	r, c := g.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := g.At(i, j); v < 0 || x.At(i, j) > 0 {
				s += v * v
			}
		}
	}
	return math.Sqrt(s)
}

// stepSearch returns the next iterate and the step used to reach it.
func stepSearch(x, g, ata *mat.Dense, alpha, beta float64, inner int) (*mat.Dense, float64) {
	var d, dq, gd mat.Dense
	sufficient := func(xn *mat.Dense) bool {
		d.Sub(xn, x)
		dq.Mul(ata, &d)
		dq.MulElem(&dq, &d)
		gd.MulElem(g, &d)
		return 0.99*mat.Sum(&gd)+0.5*mat.Sum(&dq) < 0
	}
	project := func(alpha float64) *mat.Dense {
		var xn mat.Dense
		xn.Scale(-alpha, g)
		xn.Add(x, &xn)
		xn.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, &xn)
		return &xn
	}

	xn := project(alpha)
	if !sufficient(xn) {
		// shrink until the decrease is sufficient
		for j := 1; j < inner; j++ {
			alpha *= beta
			if xn = project(alpha); sufficient(xn) {
				return xn, alpha
			}
		}
		return x, alpha
	}

	// grow while the decrease stays sufficient
	prev := xn
	for j := 1; j < inner; j++ {
		next := project(alpha / beta)
		if !sufficient(next) || mat.Equal(prev, next) {
			break
		}
		alpha /= beta
		prev = next
	}
	return prev, alpha
}
