// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/numdiff"
	"gonum.org/v1/gonum/mat"
)

// coordinates checked per problem
const gradCheckCoords = 48

// CheckGradients compares the analytic gradients of every dual problem with central
// finite differences at the current state and returns the largest relative error.
// At most 48 evenly spaced coordinates of each problem are differentiated.
func CheckGradients(st *State, p Params, mods []string) (float64, error) {
	if len(mods) == 0 {
		return 0, nil
	}
	if err := p.validate(); err != nil {
		return 0, err
	}
	if err := st.check(mods); err != nil {
		return 0, err
	}

	worst := 0.0
	for _, mod := range mods {
		obj := &hObjective{mod: mod, a: st.A[mod], k: st.K[mod], w: st.W, rho: p.RhoH, eps: p.Eps}
		r, c := obj.a.Dims()
		x := make([]float64, r*c)
		mat.NewDense(r, c, x).Copy(st.GH[mod])
		e, err := compareGradient(obj.Eval, x)
		if err != nil {
			return 0, errors.Wrapf(err, "modality %q", mod)
		}
		worst = math.Max(worst, e)
	}

	wobj := newWObjective(st, mods, p.RhoW, p.Eps)
	x := make([]float64, wobj.size())
	wobj.pack(st.GW, x)
	e, err := compareGradient(wobj.Eval, x)
	if err != nil {
		return 0, errors.Wrap(err, "shared factor")
	}
	return math.Max(worst, e), nil
}

func compareGradient(eval func(x, g []float64) float64, x []float64) (float64, error) {
	n := len(x)
	analytic := make([]float64, n)
	eval(x, analytic)

	scratch := make([]float64, n)
	spec := numdiff.ApproxSpec{
		N:       n,
		Object:  func(x []float64) float64 { return eval(x, scratch) },
		Method:  numdiff.Central,
		Indices: spread(n, gradCheckCoords),
	}
	numeric := make([]float64, n)
	if err := spec.Grad(x, numeric); err != nil {
		return 0, err
	}
	return numdiff.MaxRelErr(analytic, numeric, spec.Indices), nil
}

// spread returns at most k indices evenly spaced over [0,n).
func spread(n, k int) []int {
	if n <= k {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i * (n - 1) / (k - 1)
	}
	return idx
}
