// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nnls solves non-negative least-squares problems 𝚖𝚒𝚗 ‖ 𝐀𝐗 - 𝐁 ‖_F subject to 𝐗 ≥ 0
// with multiple right-hand sides.
package nnls

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned when the operands have incompatible dimensions.
	ErrShape = errors.New("nnls: dimension mismatch")
	// ErrMaxIter is returned with the partial solution when the iteration limit is exceeded.
	ErrMaxIter = errors.New("nnls: iteration limit exceeded")
)

// Solver solves 𝚖𝚒𝚗 ‖ 𝐀𝐗 - 𝐁 ‖_F s.t. 𝐗 ≥ 0 for an m × r matrix 𝐀 and an m × n matrix 𝐁.
// The r × n warm start x0 may be nil; solvers that cannot use it ignore it.
// The returned r × n matrix is newly allocated, x0 is never modified.
type Solver interface {
	Solve(a, b mat.Matrix, x0 *mat.Dense) (*mat.Dense, error)
}

func checkDims(a, b mat.Matrix, x0 *mat.Dense) (m, r, n int, err error) {
	m, r = a.Dims()
	mb, n := b.Dims()
	switch {
	case m == 0 || r == 0 || n == 0:
		err = errors.Wrapf(ErrShape, "empty operand: A is %d×%d, B is %d×%d", m, r, mb, n)
	case m != mb:
		err = errors.Wrapf(ErrShape, "A is %d×%d but B is %d×%d", m, r, mb, n)
	case x0 != nil:
		if xr, xc := x0.Dims(); xr != r || xc != n {
			err = errors.Wrapf(ErrShape, "warm start is %d×%d, want %d×%d", xr, xc, r, n)
		}
	}
	return
}
