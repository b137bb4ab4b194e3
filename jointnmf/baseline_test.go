// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"bytes"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/lbfgs"
	"github.com/curioloop/scmiot/mudata"
	"github.com/curioloop/scmiot/nnls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func assertNonNegative(t *testing.T, x mat.Matrix) {
	t.Helper()
	assert.GreaterOrEqual(t, mat.Min(x), 0.0)
}

func TestStack(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})
	want := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	assert.True(t, mat.Equal(want, stack(a, b)))
	assert.True(t, mat.Equal(want, stack(a, b.T().T())))
}

func TestINMF(t *testing.T) {
	ds := countsDataset(t, 11, 8, map[string]int{"rna": 6, "atac": 5})
	for _, ws := range []WarmStart{WarmStartInitial, WarmStartPrevious} {
		t.Run(ws.String(), func(t *testing.T) {
			var msg bytes.Buffer
			m := NewINMF(3)
			m.WarmStart = ws
			m.Seed = 9
			m.Logger = &lbfgs.Logger{Level: lbfgs.LogEval, Msg: &msg}
			require.NoError(t, m.Fit(ds, 10))

			assert.Len(t, m.Losses, 10)
			assert.Contains(t, msg.String(), "iNMF iteration   10")
			assertDims(t, m.W, 3, 8)
			assertNonNegative(t, m.W)
			for mod, f := range map[string]int{"rna": 6, "atac": 5} {
				assertDims(t, m.H[mod], f, 3)
				assertDims(t, m.V[mod], 3, 8)
				assertNonNegative(t, m.H[mod])
				assertNonNegative(t, m.V[mod])
				assert.True(t, mat.Equal(m.H[mod], ds.Mod(mod).Uns["H_iNMF"]))
				assert.True(t, mat.Equal(m.V[mod], ds.Mod(mod).Uns["V_iNMF"]))
			}
			assert.True(t, mat.Equal(m.W.T(), ds.Obsm["W_iNMF"]))
			for _, l := range m.Losses {
				assert.False(t, math.IsNaN(l) || math.IsInf(l, 0))
			}
		})
	}
}

func TestINMFErrors(t *testing.T) {
	ds := countsDataset(t, 12, 4, map[string]int{"rna": 3})
	m := NewINMF(2)
	m.Lambda = -1
	assert.True(t, errors.Is(m.Fit(ds, 1), ErrConfig))

	m = NewINMF(0)
	assert.True(t, errors.Is(m.Fit(ds, 1), ErrConfig))

	m = NewINMF(2)
	m.WarmStart = WarmStart(5)
	assert.True(t, errors.Is(m.Fit(ds, 1), ErrConfig))

	m = NewINMF(2)
	assert.True(t, errors.Is(m.Fit(ds, 0), ErrConfig))

	empty, err := mudata.New()
	require.NoError(t, err)
	assert.True(t, errors.Is(NewINMF(2).Fit(empty, 1), ErrShapeMismatch))
}

func TestIntNMF(t *testing.T) {
	// an exact non-negative factorization shared by both modalities
	w := mat.NewDense(2, 6, []float64{
		1, 0, 2, 1, 0, 3,
		0, 1, 1, 2, 3, 0,
	})
	h1 := mat.NewDense(4, 2, []float64{1, 0, 0, 1, 1, 1, 2, 0})
	h2 := mat.NewDense(3, 2, []float64{0, 2, 1, 1, 3, 0})
	var a1, a2 mat.Dense
	a1.Mul(h1, w)
	a2.Mul(h2, w)
	ds, err := mudata.New(
		&mudata.Modality{Name: "rna", X: a1.T()},
		&mudata.Modality{Name: "atac", X: mudata.CSRFromDense(a2.T())},
	)
	require.NoError(t, err)

	solvers := map[string]nnls.Solver{
		"hals":      nil,
		"activeset": nnls.ActiveSet{},
		"projgrad":  nnls.ProjectedGradient{},
	}
	for name, sol := range solvers {
		t.Run(name, func(t *testing.T) {
			m := NewIntNMF(2)
			m.Solver = sol
			m.WarmStart = WarmStartPrevious
			m.Seed = 4
			require.NoError(t, m.Fit(ds, 30))

			assert.Len(t, m.Losses, 30)
			assert.Less(t, m.Losses[29], m.Losses[0])
			assertDims(t, m.W, 2, 6)
			assertNonNegative(t, m.W)
			assertDims(t, m.H["rna"], 4, 2)
			assertDims(t, m.H["atac"], 3, 2)
			assertNonNegative(t, m.H["rna"])
			assertNonNegative(t, m.H["atac"])
			assert.True(t, mat.Equal(m.H["atac"], ds.Mod("atac").Uns["H_intNMF"]))
			assert.True(t, mat.Equal(m.W.T(), ds.Obsm["W_intNMF"]))
		})
	}
}

func TestIntNMFWeights(t *testing.T) {
	m := NewIntNMF(2)
	p, err := m.weights(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.3}, p)

	p, err = m.weights(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, p)

	m.Weights = []float64{1, 2, 3}
	_, err = m.weights(2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	m.Weights = []float64{1, -2}
	_, err = m.weights(2)
	assert.True(t, errors.Is(err, ErrConfig))

	ds := countsDataset(t, 13, 4, map[string]int{"rna": 3, "atac": 2, "adt": 2})
	m.Weights = []float64{0.5, 0.5}
	assert.True(t, errors.Is(m.Fit(ds, 1), ErrShapeMismatch))
	m.Weights = []float64{0.5, 0.3, 0.2}
	require.NoError(t, m.Fit(ds, 2))
	assert.Len(t, m.Losses, 2)
}
