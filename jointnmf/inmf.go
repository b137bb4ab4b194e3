// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/lbfgs"
	"github.com/curioloop/scmiot/mudata"
	"github.com/curioloop/scmiot/nnls"
	"gonum.org/v1/gonum/mat"
)

// DefaultLambda is the default penalty of the modality-specific factors of INMF.
const DefaultLambda = 5

// INMF is integrative NMF with modality-specific offsets:
//
//	𝚖𝚒𝚗 Σᵢ ‖ 𝐀ᵢ - 𝐇ᵢ(𝐖 + 𝐕ᵢ) ‖²_F + λ ‖ 𝐇ᵢ𝐕ᵢ ‖²_F   s.t. 𝐇ᵢ, 𝐕ᵢ, 𝐖 ≥ 0
//
// solved by alternating non-negative least squares on 𝐇ᵢ, 𝐕ᵢ and 𝐖.
type INMF struct {
	LatentDim int
	Lambda    float64
	Solver    nnls.Solver // HALS when nil
	WarmStart WarmStart
	Seed      uint64
	Logger    *lbfgs.Logger

	H      map[string]*mat.Dense // features × latent
	V      map[string]*mat.Dense // latent × cells
	W      *mat.Dense            // latent × cells
	Losses []float64
}

// NewINMF returns an INMF model with the default penalty.
func NewINMF(latentDim int) *INMF {
	return &INMF{LatentDim: latentDim, Lambda: DefaultLambda}
}

// Fit runs nIter iterations on the full matrices of every modality of ds and writes
// H to Uns["H_iNMF"], V to Uns["V_iNMF"] and Wᵀ to ds.Obsm["W_iNMF"].
func (m *INMF) Fit(ds *mudata.Dataset, nIter int) error {
	if !(m.Lambda >= 0) || math.IsInf(m.Lambda, 1) {
		return errors.Wrapf(ErrConfig, "lambda %g", m.Lambda)
	}
	fs, err := load(ds, m.LatentDim, nIter, m.WarmStart, m.Seed)
	if err != nil {
		return err
	}
	d, c := m.LatentDim, fs.cells()
	sol := solver(m.Solver)
	sl := math.Sqrt(m.Lambda)

	// Initialization order: W, every V, every H.
	m.W = fs.rand(d, c)
	m.V = make(map[string]*mat.Dense, len(fs.mods))
	m.H = make(map[string]*mat.Dense, len(fs.mods))
	for _, mod := range fs.mods {
		m.V[mod] = fs.rand(d, c)
	}
	for _, mod := range fs.mods {
		m.H[mod] = fs.rand(fs.features(mod), d)
	}
	w0 := mat.DenseCopyOf(m.W)
	v0, h0 := cloneAll(m.V), cloneAll(m.H)

	m.Losses = nil
	for k := 0; k < nIter; k++ {
		// 𝐇ᵢᵀ = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ [(𝐖+𝐕ᵢ)ᵀ; √λ𝐕ᵢᵀ] 𝐗 - [𝐀ᵢᵀ; 0] ‖
		for _, mod := range fs.mods {
			a := fs.a[mod]
			f, _ := a.Dims()
			var wv mat.Dense
			wv.Add(m.W, m.V[mod])
			var sv mat.Dense
			sv.Scale(sl, m.V[mod])
			ht, err := sol.Solve(
				stack(wv.T(), sv.T()),
				stack(a.T(), mat.NewDense(c, f, nil)),
				start(m.WarmStart, h0[mod].T(), m.H[mod].T()))
			if err != nil {
				return errors.Wrapf(err, "modality %q, H, iteration %d", mod, k)
			}
			m.H[mod] = mat.DenseCopyOf(ht.T())
		}

		// 𝐕ᵢ = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ [𝐇ᵢ; √λ𝐇ᵢ] 𝐗 - [𝐀ᵢ - 𝐇ᵢ𝐖; 0] ‖
		for _, mod := range fs.mods {
			a, h := fs.a[mod], m.H[mod]
			f, _ := a.Dims()
			var sh mat.Dense
			sh.Scale(sl, h)
			var res mat.Dense
			res.Mul(h, m.W)
			res.Sub(a, &res)
			v, err := sol.Solve(
				stack(h, &sh),
				stack(&res, mat.NewDense(f, c, nil)),
				start(m.WarmStart, v0[mod], m.V[mod]))
			if err != nil {
				return errors.Wrapf(err, "modality %q, V, iteration %d", mod, k)
			}
			m.V[mod] = v
		}

		// 𝐖 = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ [𝐇₁; …] 𝐗 - [𝐀₁ - 𝐇₁𝐕₁; …] ‖
		hs := make([]mat.Matrix, len(fs.mods))
		rs := make([]mat.Matrix, len(fs.mods))
		for i, mod := range fs.mods {
			var res mat.Dense
			res.Mul(m.H[mod], m.V[mod])
			res.Sub(fs.a[mod], &res)
			hs[i], rs[i] = m.H[mod], &res
		}
		w, err := sol.Solve(stack(hs...), stack(rs...), start(m.WarmStart, w0, m.W))
		if err != nil {
			return errors.Wrapf(err, "shared factor, iteration %d", k)
		}
		m.W = w

		m.Losses = append(m.Losses, m.loss(fs))
		if m.Logger.Enabled(lbfgs.LogEval) {
			m.Logger.Logf("iNMF iteration %4d    loss = %12.5e\n", k+1, m.Losses[k])
		}
	}

	for _, mod := range fs.mods {
		uns := ds.Mod(mod).Uns
		uns["H_iNMF"] = mat.DenseCopyOf(m.H[mod])
		uns["V_iNMF"] = mat.DenseCopyOf(m.V[mod])
	}
	ds.Obsm["W_iNMF"] = mat.DenseCopyOf(m.W.T())
	return nil
}

// loss returns Σᵢ ‖ 𝐀ᵢ - 𝐇ᵢ(𝐖 + 𝐕ᵢ) ‖_F + λ ‖ 𝐇ᵢ𝐕ᵢ ‖_F.
func (m *INMF) loss(fs *factors) float64 {
	var l float64
	for _, mod := range fs.mods {
		var wv, res, hv mat.Dense
		wv.Add(m.W, m.V[mod])
		res.Mul(m.H[mod], &wv)
		res.Sub(fs.a[mod], &res)
		hv.Mul(m.H[mod], m.V[mod])
		l += mat.Norm(&res, 2) + m.Lambda*mat.Norm(&hv, 2)
	}
	return l
}

func cloneAll(ms map[string]*mat.Dense) map[string]*mat.Dense {
	c := make(map[string]*mat.Dense, len(ms))
	for k, v := range ms {
		c[k] = mat.DenseCopyOf(v)
	}
	return c
}
