// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nnls

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActiveSet solves each column of 𝐁 with the Lawson–Hanson active-set method.
//
// There are two index set ℤ(zero) and ℙ(passive):
//   - 𝐱ⱼ = 0, j ∈ ℤ : variables held at zero
//   - 𝐱ⱼ > 0, j ∈ ℙ : variables free to take any positive value
//
// The dual vector 𝐰 = 𝐀ᵀ(𝐛 - 𝐀𝐱) is the negative gradient. The outer loop moves the index
// t = 𝚊𝚛𝚐𝚖𝚊𝚡 { 𝐰ⱼ : j ∈ ℤ } into ℙ until 𝐰ⱼ ≤ 0 ∀j ∈ ℤ (Kuhn-Tucker conditions).
// The inner loop solves the unconstrained least-squares 𝐬 = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ 𝐀ᴾ𝐬 - 𝐛 ‖₂ on ℙ and,
// while 𝐬 is infeasible, interpolates 𝐱 ← 𝐱 + ɑ(𝐬 - 𝐱) with ɑ = 𝚖𝚒𝚗 { 𝐱ⱼ/(𝐱ⱼ-𝐬ⱼ) : 𝐬ⱼ ≤ 0 }
// and moves the indices that reached zero back to ℤ.
//
// The warm start is ignored, the method always starts from 𝐱 = 0.
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974.
//	Chapters 23, Algorithm 23.10.
type ActiveSet struct {
	// MaxIter is the maximum number of inner iterations per column, 3r when zero.
	MaxIter int
}

// Solve implements Solver.
func (s ActiveSet) Solve(a, b mat.Matrix, x0 *mat.Dense) (*mat.Dense, error) {
	m, r, n, err := checkDims(a, b, x0)
	if err != nil {
		return nil, err
	}

	ad := mat.DenseCopyOf(a)
	x := mat.NewDense(r, n, nil)
	bj := make([]float64, m)
	xj := make([]float64, r)

	ws := newActiveWork(m, r)
	for j := 0; j < n; j++ {
		mat.Col(bj, j, b)
		if !ws.solve(ad, bj, xj, s.MaxIter) {
			err = errors.Wrapf(ErrMaxIter, "column %d", j)
		}
		x.SetCol(j, xj)
	}
	return x, err
}

type activeWork struct {
	m, r     int
	passive  []bool
	rejected []bool
	w, z     []float64
	resid    []float64
	tol      float64
}

func newActiveWork(m, r int) *activeWork {
	return &activeWork{
		m: m, r: r,
		passive:  make([]bool, r),
		rejected: make([]bool, r),
		w:        make([]float64, r),
		z:        make([]float64, r),
		resid:    make([]float64, m),
	}
}

// solve finds 𝐱 ≥ 0 minimizing ‖ 𝐀𝐱 - 𝐛 ‖₂ and reports whether it finished within maxIter.
func (ws *activeWork) solve(a *mat.Dense, b, x []float64, maxIter int) bool {
	m, r := ws.m, ws.r
	if maxIter <= 0 {
		maxIter = 3 * r
	}

	// tolerance on the dual vector, the same rule as scipy
	ws.tol = 10 * (math.Nextafter(1, 2) - 1) * mat.Norm(a, 1) * float64(max(m, r))

	for i := range x {
		x[i] = 0
		ws.passive[i] = false
		ws.rejected[i] = false
	}

	iter := 0
	for {
		// 𝐰 = 𝐀ᵀ(𝐛 - 𝐀𝐱)
		ws.dual(a, b, x)

		// Find index t ∈ ℤ such that 𝐰ₜ = 𝚊𝚛𝚐𝚖𝚊𝚡 { 𝐰ⱼ: j ∈ ℤ }
		t, wmax := -1, ws.tol
		for j := 0; j < r; j++ {
			if !ws.passive[j] && !ws.rejected[j] && ws.w[j] > wmax {
				t, wmax = j, ws.w[j]
			}
		}
		// Quit when 𝐰ⱼ ≤ 0, ∀j ∈ ℤ (no more constraint could be relaxed)
		if t < 0 {
			return true
		}

		// Move index t from ℤ to ℙ
		ws.passive[t] = true
		if !ws.leastSquares(a, b) || ws.z[t] <= 0 {
			// Reject t as a candidate, it is (nearly) dependent on the columns in ℙ.
			ws.passive[t] = false
			ws.rejected[t] = true
			continue
		}
		for j := range ws.rejected {
			ws.rejected[j] = false
		}

		for {
			if iter++; iter > maxIter {
				return false
			}

			// If all coefficients are feasible, exit secondary loop to main loop.
			alpha := 2.0
			for j := 0; j < r; j++ {
				if ws.passive[j] && ws.z[j] <= 0 {
					if t := x[j] / (x[j] - ws.z[j]); t < alpha {
						alpha = t
					}
				}
			}
			if alpha > 1 {
				for j := 0; j < r; j++ {
					if ws.passive[j] {
						x[j] = ws.z[j]
					} else {
						x[j] = 0
					}
				}
				break
			}

			// 𝐱 = 𝐱 + ɑ(𝐬 - 𝐱) and move the coefficients that reached zero from ℙ to ℤ.
			for j := 0; j < r; j++ {
				if ws.passive[j] {
					x[j] += alpha * (ws.z[j] - x[j])
					if x[j] <= ws.tol {
						x[j] = 0
						ws.passive[j] = false
					}
				}
			}
			if !ws.leastSquares(a, b) {
				return false
			}
		}
	}
}

func (ws *activeWork) dual(a *mat.Dense, b, x []float64) {
	copy(ws.resid, b)
	for i := 0; i < ws.m; i++ {
		ws.resid[i] -= floats.Dot(a.RawRowView(i), x)
	}
	for j := 0; j < ws.r; j++ {
		var v float64
		for i := 0; i < ws.m; i++ {
			v += a.At(i, j) * ws.resid[i]
		}
		ws.w[j] = v
	}
}

// leastSquares solves 𝐬 = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ 𝐀ᴾ𝐬 - 𝐛 ‖₂ into ws.z, zero outside ℙ.
func (ws *activeWork) leastSquares(a *mat.Dense, b []float64) bool {
	cols := make([]int, 0, ws.r)
	for j, p := range ws.passive {
		ws.z[j] = 0
		if p {
			cols = append(cols, j)
		}
	}
	if len(cols) == 0 {
		return true
	}

	sub := mat.NewDense(ws.m, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < ws.m; i++ {
			sub.Set(i, k, a.At(i, j))
		}
	}
	var s mat.VecDense
	if err := s.SolveVec(sub, mat.NewVecDense(ws.m, b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return false
		}
	}
	for k, j := range cols {
		v := s.AtVec(k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		ws.z[j] = v
	}
	return true
}
