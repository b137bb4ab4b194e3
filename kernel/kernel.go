// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel builds the ground costs and Gibbs kernels of the entropic transport problems.
//
// Given a features × cells matrix 𝐀 whose columns lie on the simplex, the ground cost between
// two features is the distance of their profiles across cells
//
//	𝐂ᵢⱼ = 𝚍𝚒𝚜𝚝(𝐀ᵢ, 𝐀ⱼ) / 𝚖𝚊𝚡 𝐂
//
// and the Gibbs kernel is 𝐊 = 𝚎𝚡𝚙(-𝐂/ε), strictly positive, symmetric and bounded by 1.
package kernel

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnsupportedMetric = errors.New("kernel: unsupported distance metric")
	ErrBadEpsilon        = errors.New("kernel: entropic regularization must be positive and finite")
	ErrDegenerate        = errors.New("kernel: degenerate matrix")
)

// Floor is the additive floor applied to the data before normalization.
const Floor = 1e-6

// Simplex adds floor to every entry of x and divides each column by its sum.
func Simplex(x *mat.Dense, floor float64) error {
	r, c := x.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		floats.AddConst(floor, col)
		s := floats.Sum(col)
		if !(s > 0) || math.IsInf(s, 0) {
			return errors.Wrapf(ErrDegenerate, "column %d sums to %g", j, s)
		}
		floats.Scale(1/s, col)
		x.SetCol(j, col)
	}
	return nil
}

// Cost computes the pairwise distances between the rows of a rescaled to [0,1].
// An all-zero distance matrix is returned as is.
func Cost(a mat.Matrix, metric Metric) (*mat.Dense, error) {
	c, err := Pairwise(a, metric)
	if err != nil {
		return nil, err
	}
	m := mat.Max(c)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return nil, errors.Wrapf(ErrDegenerate, "max distance %g", m)
	}
	if m == 0 {
		m = 1
	}
	c.Scale(1/m, c)
	return c, nil
}

// Gibbs computes 𝐊 = 𝚎𝚡𝚙(-𝐂/ε) floored at the smallest positive float.
func Gibbs(c mat.Matrix, eps float64) (*mat.Dense, error) {
	if !(eps > 0) || math.IsInf(eps, 1) {
		return nil, errors.Wrapf(ErrBadEpsilon, "eps = %g", eps)
	}
	var k mat.Dense
	k.Apply(func(_, _ int, v float64) float64 {
		return math.Max(math.Exp(-v/eps), math.SmallestNonzeroFloat64)
	}, c)
	return &k, nil
}

// Build computes the rescaled cost and its Gibbs kernel for the rows of a.
func Build(a mat.Matrix, metric Metric, eps float64) (c, k *mat.Dense, err error) {
	if c, err = Cost(a, metric); err != nil {
		return nil, nil, err
	}
	if k, err = Gibbs(c, eps); err != nil {
		return nil, nil, err
	}
	return c, k, nil
}
