// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates gradients of scalar objectives by finite differences.
// It is used to verify hand-derived gradients of the dual objectives.
package numdiff

import (
	"math"

	"github.com/cockroachdb/errors"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// ApproxSpec represents a finite difference estimate of the gradient of a scalar function.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type ApproxSpec struct {
	N int
	// Function of which to estimate the gradient.
	// The argument x passed to this function is an n-vector and may be modified temporarily.
	Object func(x []float64) float64
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(x0) * max(1, abs(x0)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use.
	// The RelStep is used when AbsStep is not provide.
	AbsStep float64
	// Optional subset of coordinates to differentiate, the others are left untouched in grad.
	Indices []int
}

// Check the parameters.
func (as *ApproxSpec) Check(x0, grad []float64) (err error) {
	switch {
	case as.N <= 0:
		err = errors.New("numdiff: negative dimensions")
	case as.Method != Forward && as.Method != Central:
		err = errors.New("numdiff: unknown method")
	case as.Object == nil:
		err = errors.New("numdiff: object function is required")
	case as.N != len(x0):
		err = errors.New("numdiff: invalid x0 dimensions")
	case as.N != len(grad):
		err = errors.New("numdiff: invalid grad dimensions")
	}
	for _, i := range as.Indices {
		if i < 0 || i >= as.N {
			err = errors.Newf("numdiff: index %d out of range", i)
			break
		}
	}
	return
}

// Grad calculate approximation of the gradient at x0 by finite differences.
// The vector x0 is restored before returning.
func (as *ApproxSpec) Grad(x0, grad []float64) error {

	if err := as.Check(x0, grad); err != nil {
		return err
	}

	indices := as.Indices
	if indices == nil {
		indices = make([]int, as.N)
		for i := range indices {
			indices[i] = i
		}
	}

	fun := as.Object
	f0 := math.NaN()
	if as.Method == Forward {
		f0 = fun(x0)
	}

	for _, i := range indices {
		x := x0[i]
		h := as.absoluteStep(x)
		switch as.Method {
		case Forward:
			x0[i] = x + h
			grad[i] = (fun(x0) - f0) / h
		case Central:
			h = math.Abs(h)
			x0[i] = x - h
			f1 := fun(x0)
			x0[i] = x + h
			f2 := fun(x0)
			grad[i] = (f2 - f1) / (2 * h)
		}
		x0[i] = x
	}
	return nil
}

func (as *ApproxSpec) absoluteStep(v float64) float64 {
	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	abs, rel := as.AbsStep, as.RelStep
	if abs == 0 && rel == 0 {
		return math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	}
	s := abs
	if s == 0 {
		s = math.Copysign(rel, v) * math.Abs(v)
	}
	if (v+s)-v == 0 {
		s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	}
	return s
}

// MaxRelErr returns 𝚖𝚊𝚡ᵢ |aᵢ - bᵢ| / 𝚖𝚊𝚡(1, |aᵢ|, |bᵢ|) over the given indices (all when nil).
func MaxRelErr(a, b []float64, indices []int) float64 {
	if len(a) != len(b) {
		panic("bound check error")
	}
	rel := func(i int) float64 {
		return math.Abs(a[i]-b[i]) / math.Max(1, math.Max(math.Abs(a[i]), math.Abs(b[i])))
	}
	worst := 0.0
	if indices == nil {
		for i := range a {
			worst = math.Max(worst, rel(i))
		}
	} else {
		for _, i := range indices {
			worst = math.Max(worst, rel(i))
		}
	}
	return worst
}
