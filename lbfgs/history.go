// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import "gonum.org/v1/gonum/floats"

// history keeps the m most recent correction pairs
//
//	sₖ = xₖ₊₁ - xₖ
//	yₖ = gₖ₊₁ - gₖ
//
// in a ring buffer together with ρₖ = 1/yₖᵀsₖ and the scaling γ = sᵀy/yᵀy of the newest pair.
type history struct {
	s, y  [][]float64
	rho   []float64
	head  int // slot of the oldest pair
	col   int // number of stored pairs
	gamma float64
}

func (h *history) init(n, m int) {
	h.s = make([][]float64, m)
	h.y = make([][]float64, m)
	for i := 0; i < m; i++ {
		h.s[i] = make([]float64, n)
		h.y[i] = make([]float64, n)
	}
	h.rho = make([]float64, m)
	h.reset()
}

func (h *history) reset() {
	h.head, h.col = 0, 0
	h.gamma = one
}

// push stores a new pair and reports whether it satisfied the curvature condition yᵀs > 0.
func (h *history) push(s, y []float64) bool {
	ys := floats.Dot(y, s)
	if ys <= curvEps {
		return false
	}
	m := len(h.s)
	slot := (h.head + h.col) % m
	if h.col == m {
		slot = h.head
		h.head = (h.head + 1) % m
	} else {
		h.col++
	}
	copy(h.s[slot], s)
	copy(h.y[slot], y)
	h.rho[slot] = one / ys
	h.gamma = ys / floats.Dot(y, y)
	return true
}

// direction computes d = -Hₖgₖ with the two-loop recursion.
//
//	q = g
//	for i = k-1 … k-m:  αᵢ = ρᵢsᵢᵀq,  q = q - αᵢyᵢ
//	r = γq
//	for i = k-m … k-1:  β = ρᵢyᵢᵀr,  r = r + (αᵢ - β)sᵢ
//	d = -r
func (h *history) direction(g, d, alpha []float64) {
	m := len(h.s)
	copy(d, g)
	for k := h.col - 1; k >= 0; k-- {
		i := (h.head + k) % m
		alpha[k] = h.rho[i] * floats.Dot(h.s[i], d)
		floats.AddScaled(d, -alpha[k], h.y[i])
	}
	floats.Scale(h.gamma, d)
	for k := 0; k < h.col; k++ {
		i := (h.head + k) % m
		beta := h.rho[i] * floats.Dot(h.y[i], d)
		floats.AddScaled(d, alpha[k]-beta, h.s[i])
	}
	floats.Scale(-one, d)
}
