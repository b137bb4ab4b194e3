// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// hObjective is the dual problem of the feature factor of one modality.
// The variable is 𝐆ᴴ (features × cells) stored row-major.
type hObjective struct {
	mod  string
	a, k *mat.Dense // features × cells, features × features
	w    *mat.Dense // latent × cells, fixed during a step
	rho  float64
	eps  float64
}

// Eval computes 𝐋ᴴ(𝐆) = 𝙾𝚃*(𝐀, 𝐆) + ρ Σⱼ 𝚕𝚘𝚐𝚜𝚞𝚖𝚎𝚡𝚙(-(𝐆𝐖ᵀ)ⱼ/ρ) and its gradient
//
//	∇𝐋ᴴ = ∇𝙾𝚃* - 𝐒𝐖,  𝐒 = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐆𝐖ᵀ/ρ)
func (o *hObjective) Eval(x, g []float64) float64 {
	r, c := o.a.Dims()
	d, _ := o.w.Dims()
	gh := mat.NewDense(r, c, x)
	grad := mat.NewDense(r, c, g)

	f := otDualLoss(o.a, o.k, gh, o.eps, grad)

	var z mat.Dense
	z.Mul(gh, o.w.T())
	s := mat.NewDense(r, d, nil)
	f += o.rho * floats.Sum(colSoftmax(s, &z, -1/o.rho))

	var sw mat.Dense
	sw.Mul(s, o.w)
	grad.Sub(grad, &sw)
	return f
}

// factor returns 𝐇 = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐆𝐖ᵀ/ρ) (features × latent).
func (o *hObjective) factor(gh *mat.Dense) *mat.Dense {
	var z mat.Dense
	z.Mul(gh, o.w.T())
	return softmin(&z, o.rho)
}

// wBlock is the contribution of one modality to the shared problem.
type wBlock struct {
	mod  string
	a, k *mat.Dense // features × cells, features × features
	h    *mat.Dense // features × latent, fixed during a step
	off  int        // offset of 𝐆ᵂ in the concatenated variable
}

func (b *wBlock) size() int {
	r, c := b.a.Dims()
	return r * c
}

// view returns the block of x as a features × cells matrix sharing storage.
func (b *wBlock) view(x []float64) *mat.Dense {
	r, c := b.a.Dims()
	return mat.NewDense(r, c, x[b.off:b.off+r*c])
}

// wObjective is the dual problem of the shared cell embedding.
// The variable is the concatenation of 𝐆ᵂ of every modality.
type wObjective struct {
	blocks []*wBlock
	latent int
	cells  int
	rho    float64 // n·ρʷ
	eps    float64
}

func newWObjective(st *State, mods []string, rhoW, eps float64) *wObjective {
	d, c := st.W.Dims()
	o := &wObjective{
		blocks: make([]*wBlock, len(mods)),
		latent: d,
		cells:  c,
		rho:    float64(len(mods)) * rhoW,
		eps:    eps,
	}
	off := 0
	for i, mod := range mods {
		b := &wBlock{mod: mod, a: st.A[mod], k: st.K[mod], h: st.H[mod], off: off}
		o.blocks[i] = b
		off += b.size()
	}
	return o
}

// bind points every block at the current feature factors.
func (o *wObjective) bind(h map[string]*mat.Dense) {
	for _, b := range o.blocks {
		b.h = h[b.mod]
	}
}

// size returns the dimension of the concatenated variable.
func (o *wObjective) size() int {
	n := 0
	for _, b := range o.blocks {
		n += b.size()
	}
	return n
}

// hz returns 𝐙 = Σᵢ 𝐇ᵢᵀ𝐆ᵢ (latent × cells).
func (o *wObjective) hz(x []float64) *mat.Dense {
	z := mat.NewDense(o.latent, o.cells, nil)
	var t mat.Dense
	for _, b := range o.blocks {
		t.Reset()
		t.Mul(b.h.T(), b.view(x))
		z.Add(z, &t)
	}
	return z
}

// Eval computes 𝐋ᵂ = Σᵢ 𝙾𝚃*(𝐀ᵢ, 𝐆ᵢ) + nρ Σⱼ 𝚕𝚘𝚐𝚜𝚞𝚖𝚎𝚡𝚙(-𝐙ⱼ/nρ) and its gradient
//
//	∇ᵢ𝐋ᵂ = ∇𝙾𝚃*ᵢ - 𝐇ᵢ𝐒,  𝐒 = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐙/nρ)
func (o *wObjective) Eval(x, g []float64) float64 {
	var f float64
	for _, b := range o.blocks {
		f += otDualLoss(b.a, b.k, b.view(x), o.eps, b.view(g))
	}

	s := mat.NewDense(o.latent, o.cells, nil)
	f += o.rho * floats.Sum(colSoftmax(s, o.hz(x), -1/o.rho))

	var hs mat.Dense
	for _, b := range o.blocks {
		hs.Reset()
		hs.Mul(b.h, s)
		grad := b.view(g)
		grad.Sub(grad, &hs)
	}
	return f
}

// factor returns 𝐖 = 𝚜𝚘𝚏𝚝𝚖𝚒𝚗(𝐙/nρ) (latent × cells).
func (o *wObjective) factor(x []float64) *mat.Dense {
	return softmin(o.hz(x), o.rho)
}

// pack copies the dual of every block into x.
func (o *wObjective) pack(gw map[string]*mat.Dense, x []float64) {
	for _, b := range o.blocks {
		b.view(x).Copy(gw[b.mod])
	}
}
