// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// State is the optimization state of OTintNMF, keyed by modality.
// Optimize reads A and K, updates H, GH, GW and W in place and rewrites the loss trajectories.
type State struct {
	A  map[string]*mat.Dense // features × cells, columns on the simplex
	K  map[string]*mat.Dense // features × features Gibbs kernel
	H  map[string]*mat.Dense // features × latent, columns on the simplex
	GH map[string]*mat.Dense // features × cells dual of H
	GW map[string]*mat.Dense // features × cells dual of W
	W  *mat.Dense            // latent × cells, columns on the simplex

	LossH map[string][]float64 // last H loss of every outer iteration
	LossW []float64            // last W loss of every outer iteration
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		A:     make(map[string]*mat.Dense),
		K:     make(map[string]*mat.Dense),
		H:     make(map[string]*mat.Dense),
		GH:    make(map[string]*mat.Dense),
		GW:    make(map[string]*mat.Dense),
		LossH: make(map[string][]float64),
	}
}

// Clone returns a deep copy of the state.
func (st *State) Clone() *State {
	clone := func(m map[string]*mat.Dense) map[string]*mat.Dense {
		c := make(map[string]*mat.Dense, len(m))
		for k, v := range m {
			c[k] = mat.DenseCopyOf(v)
		}
		return c
	}
	c := &State{
		A: clone(st.A), K: clone(st.K), H: clone(st.H),
		GH: clone(st.GH), GW: clone(st.GW),
		LossH: make(map[string][]float64, len(st.LossH)),
		LossW: slices.Clone(st.LossW),
	}
	if st.W != nil {
		c.W = mat.DenseCopyOf(st.W)
	}
	for k, v := range st.LossH {
		c.LossH[k] = slices.Clone(v)
	}
	return c
}

// Modalities returns the modalities of the state in lexical order.
func (st *State) Modalities() []string {
	return slices.Sorted(maps.Keys(st.A))
}

// check verifies that every block of the given modalities is present with consistent shapes.
func (st *State) check(mods []string) error {
	if st.W == nil {
		return errors.Wrap(ErrShapeMismatch, "shared factor W is missing")
	}
	d, c := st.W.Dims()
	seen := make(map[string]bool, len(mods))
	for _, mod := range mods {
		if seen[mod] {
			return errors.Wrapf(ErrShapeMismatch, "modality %q listed twice", mod)
		}
		seen[mod] = true

		a := st.A[mod]
		if a == nil || st.K[mod] == nil || st.H[mod] == nil || st.GH[mod] == nil || st.GW[mod] == nil {
			return errors.Wrapf(ErrShapeMismatch, "modality %q: missing block", mod)
		}
		f, ac := a.Dims()
		if ac != c {
			return errors.Wrapf(ErrShapeMismatch, "modality %q: A has %d cells, W has %d", mod, ac, c)
		}
		if kr, kc := st.K[mod].Dims(); kr != f || kc != f {
			return errors.Wrapf(ErrShapeMismatch, "modality %q: K is %d×%d, want %d×%d", mod, kr, kc, f, f)
		}
		if hr, hc := st.H[mod].Dims(); hr != f || hc != d {
			return errors.Wrapf(ErrShapeMismatch, "modality %q: H is %d×%d, want %d×%d", mod, hr, hc, f, d)
		}
		for name, g := range map[string]*mat.Dense{"GH": st.GH[mod], "GW": st.GW[mod]} {
			if gr, gc := g.Dims(); gr != f || gc != c {
				return errors.Wrapf(ErrShapeMismatch, "modality %q: %s is %d×%d, want %d×%d", mod, name, gr, gc, f, c)
			}
		}
	}
	return nil
}
