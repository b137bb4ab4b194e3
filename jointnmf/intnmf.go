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

// IntNMF is weighted joint NMF with a shared embedding:
//
//	𝚖𝚒𝚗 Σᵢ pᵢ² ‖ 𝐀ᵢ - 𝐇ᵢ𝐖 ‖²_F   s.t. 𝐇ᵢ, 𝐖 ≥ 0
//
// The weights only enter the update of 𝐖.
type IntNMF struct {
	LatentDim int
	// Weights of the modalities in dataset order.
	// Nil means {0.7, 0.3} for two modalities and uniform weights otherwise.
	Weights   []float64
	Solver    nnls.Solver // HALS when nil
	WarmStart WarmStart
	Seed      uint64
	Logger    *lbfgs.Logger

	H      map[string]*mat.Dense // features × latent
	W      *mat.Dense            // latent × cells
	Losses []float64
}

// NewIntNMF returns an IntNMF model with the default weights.
func NewIntNMF(latentDim int) *IntNMF {
	return &IntNMF{LatentDim: latentDim}
}

func (m *IntNMF) weights(n int) ([]float64, error) {
	if m.Weights == nil {
		if n == 2 {
			return []float64{0.7, 0.3}, nil
		}
		p := make([]float64, n)
		for i := range p {
			p[i] = 1 / float64(n)
		}
		return p, nil
	}
	if len(m.Weights) != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d weights for %d modalities", len(m.Weights), n)
	}
	for i, p := range m.Weights {
		if !(p >= 0) || math.IsInf(p, 1) {
			return nil, errors.Wrapf(ErrConfig, "weight %d is %g", i, p)
		}
	}
	return m.Weights, nil
}

// Fit runs nIter iterations on the full matrices of every modality of ds and writes
// H to Uns["H_intNMF"] and Wᵀ to ds.Obsm["W_intNMF"].
func (m *IntNMF) Fit(ds *mudata.Dataset, nIter int) error {
	fs, err := load(ds, m.LatentDim, nIter, m.WarmStart, m.Seed)
	if err != nil {
		return err
	}
	p, err := m.weights(len(fs.mods))
	if err != nil {
		return err
	}
	d, c := m.LatentDim, fs.cells()
	sol := solver(m.Solver)

	// Initialization order: W, every H.
	m.W = fs.rand(d, c)
	m.H = make(map[string]*mat.Dense, len(fs.mods))
	for _, mod := range fs.mods {
		m.H[mod] = fs.rand(fs.features(mod), d)
	}
	w0, h0 := mat.DenseCopyOf(m.W), cloneAll(m.H)

	m.Losses = nil
	for k := 0; k < nIter; k++ {
		// 𝐇ᵢᵀ = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ 𝐖ᵀ𝐗 - 𝐀ᵢᵀ ‖
		for _, mod := range fs.mods {
			ht, err := sol.Solve(m.W.T(), fs.a[mod].T(), start(m.WarmStart, h0[mod].T(), m.H[mod].T()))
			if err != nil {
				return errors.Wrapf(err, "modality %q, H, iteration %d", mod, k)
			}
			m.H[mod] = mat.DenseCopyOf(ht.T())
		}

		// 𝐖 = 𝚊𝚛𝚐𝚖𝚒𝚗 ‖ [p₁𝐇₁; …] 𝐗 - [p₁𝐀₁; …] ‖
		hs := make([]mat.Matrix, len(fs.mods))
		as := make([]mat.Matrix, len(fs.mods))
		for i, mod := range fs.mods {
			var ph, pa mat.Dense
			ph.Scale(p[i], m.H[mod])
			pa.Scale(p[i], fs.a[mod])
			hs[i], as[i] = &ph, &pa
		}
		w, err := sol.Solve(stack(hs...), stack(as...), start(m.WarmStart, w0, m.W))
		if err != nil {
			return errors.Wrapf(err, "shared factor, iteration %d", k)
		}
		m.W = w

		m.Losses = append(m.Losses, m.loss(fs))
		if m.Logger.Enabled(lbfgs.LogEval) {
			m.Logger.Logf("intNMF iteration %4d    loss = %12.5e\n", k+1, m.Losses[k])
		}
	}

	for _, mod := range fs.mods {
		ds.Mod(mod).Uns["H_intNMF"] = mat.DenseCopyOf(m.H[mod])
	}
	ds.Obsm["W_intNMF"] = mat.DenseCopyOf(m.W.T())
	return nil
}

// loss returns Σᵢ ‖ 𝐀ᵢ - 𝐇ᵢ𝐖 ‖_F.
func (m *IntNMF) loss(fs *factors) float64 {
	var l float64
	for _, mod := range fs.mods {
		var res mat.Dense
		res.Mul(m.H[mod], m.W)
		res.Sub(fs.a[mod], &res)
		l += mat.Norm(&res, 2)
	}
	return l
}
