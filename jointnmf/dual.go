// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// entropy returns 𝙴(𝐗) = -Σ 𝐗(𝚕𝚘𝚐 𝐗 - 1) when minOne, -Σ 𝐗 𝚕𝚘𝚐 𝐗 otherwise.
func entropy(x *mat.Dense, minOne bool) float64 {
	off := 0.0
	if minOne {
		off = 1
	}
	r, _ := x.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for _, v := range x.RawRowView(i) {
			s -= v * (math.Log(v) - off)
		}
	}
	return s
}

// colSoftmax writes 𝚜𝚘𝚏𝚝𝚖𝚊𝚡(scale·𝐗) of every column of x into dst (nil to skip)
// and returns the log-sum-exp of every column of scale·𝐗.
func colSoftmax(dst, x *mat.Dense, scale float64) []float64 {
	r, c := x.Dims()
	col := make([]float64, r)
	lse := make([]float64, c)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		floats.Scale(scale, col)
		// shift by the column maximum, the result sums to one up to rounding
		m := floats.Max(col)
		if math.IsInf(m, 0) {
			lse[j] = m
			if dst != nil {
				dst.SetCol(j, nanCol(col))
			}
			continue
		}
		for i, v := range col {
			col[i] = math.Exp(v - m)
		}
		sum := floats.Sum(col)
		lse[j] = m + math.Log(sum)
		if dst == nil {
			continue
		}
		for i := range col {
			col[i] /= sum
		}
		dst.SetCol(j, col)
	}
	return lse
}

func nanCol(col []float64) []float64 {
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// softmin returns 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐗/ρ) along the columns, each column of the result lies on the simplex.
func softmin(x *mat.Dense, rho float64) *mat.Dense {
	r, c := x.Dims()
	s := mat.NewDense(r, c, nil)
	colSoftmax(s, x, -1/rho)
	return s
}

// entropyDualLoss returns the conjugate of the simplex entropy -Σⱼ 𝚕𝚘𝚐𝚜𝚞𝚖𝚎𝚡𝚙(𝐗ⱼ).
// When grad is not nil it receives the gradient -𝚜𝚘𝚏𝚝𝚖𝚊𝚡(𝐗).
func entropyDualLoss(x, grad *mat.Dense) float64 {
	lse := colSoftmax(grad, x, 1)
	if grad != nil {
		grad.Scale(-1, grad)
	}
	return -floats.Sum(lse)
}

// otDualLoss returns the entropic transport dual ε(𝙴(𝐀) + Σ 𝐀 ⊙ 𝚕𝚘𝚐(𝐊 𝚎𝚡𝚙(𝐆/ε))).
// The exponential is stabilized by the maximum of each column of 𝐆/ε.
// When grad is not nil it receives 𝐔 ⊙ 𝐊ᵀ(𝐀 ⊘ 𝐊𝐔) with 𝐔 = 𝚎𝚡𝚙(𝐆/ε - 𝚖𝚊𝚡).
func otDualLoss(a, k, g *mat.Dense, eps float64, grad *mat.Dense) float64 {
	r, c := g.Dims()

	cmax := make([]float64, c)
	for j := range cmax {
		cmax[j] = math.Inf(-1)
	}
	for i := 0; i < r; i++ {
		for j, v := range g.RawRowView(i) {
			cmax[j] = math.Max(cmax[j], v/eps)
		}
	}

	u := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		ui := u.RawRowView(i)
		for j, v := range g.RawRowView(i) {
			ui[j] = math.Exp(v/eps - cmax[j])
		}
	}

	var s mat.Dense
	s.Mul(k, u)

	loss := entropy(a, true)
	for i := 0; i < r; i++ {
		si := s.RawRowView(i)
		for j, v := range a.RawRowView(i) {
			loss += v * (math.Log(si[j]) + cmax[j])
		}
	}

	if grad != nil {
		// 𝐒 ← 𝐀 ⊘ 𝐒
		s.DivElem(a, &s)
		grad.Mul(k.T(), &s)
		grad.MulElem(grad, u)
	}
	return eps * loss
}
