// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/curioloop/scmiot/kernel"
	"github.com/curioloop/scmiot/mudata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func uniform(rnd *rand.Rand, r, c int) *mat.Dense {
	x := mat.NewDense(r, c, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return rnd.Float64() }, x)
	return x
}

func simplexCols(t *testing.T, x *mat.Dense) *mat.Dense {
	t.Helper()
	require.NoError(t, kernel.Simplex(x, 0))
	return x
}

// randomState builds a state with the given number of features per modality.
func randomState(t *testing.T, seed uint64, features map[string]int, latent, cells int) (*State, []string) {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, 1))
	st := NewState()
	mods := make([]string, 0, len(features))
	for _, mod := range []string{"rna", "atac", "adt"} {
		f, ok := features[mod]
		if !ok {
			continue
		}
		mods = append(mods, mod)
		a := uniform(rnd, f, cells)
		require.NoError(t, kernel.Simplex(a, kernel.Floor))
		_, k, err := kernel.Build(a, kernel.Cosine, DefaultEps)
		require.NoError(t, err)
		st.A[mod], st.K[mod] = a, k
		st.H[mod] = simplexCols(t, uniform(rnd, f, latent))
		st.GH[mod] = uniform(rnd, f, cells)
		st.GW[mod] = uniform(rnd, f, cells)
	}
	st.W = simplexCols(t, uniform(rnd, latent, cells))
	return st, mods
}

func testParams(nIterInner, nIter int) Params {
	return DefaultConfig().params(nIterInner, nIter)
}

// assertSimplex checks that every column of x is non-negative and sums to 1.
func assertSimplex(t *testing.T, x mat.Matrix, tol float64) {
	t.Helper()
	r, c := x.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		assert.InDelta(t, 1, floats.Sum(col), tol, "column %d", j)
		for _, v := range col {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.False(t, math.IsNaN(v))
		}
	}
}

func assertDims(t *testing.T, x mat.Matrix, r, c int) {
	t.Helper()
	require.NotNil(t, x)
	xr, xc := x.Dims()
	assert.Equal(t, r, xr, "rows")
	assert.Equal(t, c, xc, "cols")
}

// countsDataset returns a dataset whose modalities share the given number of cells.
func countsDataset(t *testing.T, seed uint64, cells int, features map[string]int) *mudata.Dataset {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, 2))
	var mods []*mudata.Modality
	for _, name := range []string{"rna", "atac", "adt"} {
		f, ok := features[name]
		if !ok {
			continue
		}
		x := mat.NewDense(cells, f, nil)
		x.Apply(func(_, _ int, _ float64) float64 { return float64(rnd.IntN(6)) }, x)
		mods = append(mods, &mudata.Modality{Name: name, X: x})
	}
	ds, err := mudata.New(mods...)
	require.NoError(t, err)
	return ds
}
