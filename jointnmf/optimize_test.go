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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOptimizeEmpty(t *testing.T) {
	st := NewState()
	require.NoError(t, Optimize(st, testParams(2, 2), nil))
	assert.Nil(t, st.W)
	assert.Empty(t, st.LossW)
}

func TestOptimizeShapeMismatch(t *testing.T) {
	p := testParams(1, 1)

	st, mods := randomState(t, 1, map[string]int{"rna": 4, "atac": 3}, 2, 5)
	st.GH["atac"] = mat.NewDense(3, 4, nil)
	err := Optimize(st, p, mods)
	assert.True(t, errors.Is(err, ErrShapeMismatch), "%v", err)

	st, mods = randomState(t, 1, map[string]int{"rna": 4}, 2, 5)
	st.H["rna"] = mat.NewDense(4, 3, nil)
	assert.True(t, errors.Is(Optimize(st, p, mods), ErrShapeMismatch))

	st, _ = randomState(t, 1, map[string]int{"rna": 4}, 2, 5)
	assert.True(t, errors.Is(Optimize(st, p, []string{"rna", "adt"}), ErrShapeMismatch))
	assert.True(t, errors.Is(Optimize(st, p, []string{"rna", "rna"}), ErrShapeMismatch))

	st.K["rna"] = mat.NewDense(3, 3, nil)
	assert.True(t, errors.Is(Optimize(st, p, []string{"rna"}), ErrShapeMismatch))
}

func TestParamsValidate(t *testing.T) {
	st, mods := randomState(t, 1, map[string]int{"rna": 4}, 2, 3)
	for name, mutate := range map[string]func(*Params){
		"rho":     func(p *Params) { p.RhoH = 0 },
		"eps":     func(p *Params) { p.Eps = math.Inf(1) },
		"lr":      func(p *Params) { p.LR = -1 },
		"tol":     func(p *Params) { p.Tol = math.NaN() },
		"history": func(p *Params) { p.History = 0 },
		"inner":   func(p *Params) { p.NIterInner = 0 },
		"outer":   func(p *Params) { p.NIter = -1 },
	} {
		p := testParams(1, 1)
		mutate(&p)
		err := Optimize(st, p, mods)
		assert.True(t, errors.Is(err, ErrConfig), "%s: %v", name, err)
	}
}

func TestOptimizeSimplexFactors(t *testing.T) {
	st, mods := randomState(t, 2, map[string]int{"rna": 6, "atac": 4}, 3, 7)
	p := testParams(3, 4)
	p.Tol = 0
	require.NoError(t, Optimize(st, p, mods))

	for _, mod := range mods {
		assertDims(t, st.H[mod], st.A[mod].RawMatrix().Rows, 3)
		assertSimplex(t, st.H[mod], 1e-12)
		assert.Len(t, st.LossH[mod], len(st.LossW))
	}
	assertDims(t, st.W, 3, 7)
	assertSimplex(t, st.W, 1e-12)
	assert.Len(t, st.LossW, 4)
	for _, l := range st.LossW {
		assert.False(t, math.IsNaN(l) || math.IsInf(l, 0))
	}
}

func TestOptimizeConvergence(t *testing.T) {
	// Any two consecutive losses are within a huge tolerance, the run stops at the third one.
	st, mods := randomState(t, 3, map[string]int{"rna": 5}, 2, 4)
	p := testParams(1, 10)
	p.Tol = 1e12
	require.NoError(t, Optimize(st, p, mods))
	assert.Len(t, st.LossW, 3)
	assert.Len(t, st.LossH["rna"], 3)

	st, mods = randomState(t, 3, map[string]int{"rna": 5}, 2, 4)
	p.Tol = 0
	p.NIter = 5
	require.NoError(t, Optimize(st, p, mods))
	assert.LessOrEqual(t, len(st.LossW), 5)
}

func TestOptimizeParallel(t *testing.T) {
	seq, mods := randomState(t, 4, map[string]int{"rna": 6, "atac": 5, "adt": 3}, 3, 6)
	par := seq.Clone()

	p := testParams(2, 3)
	require.NoError(t, Optimize(seq, p, mods))
	p.Parallel = true
	require.NoError(t, Optimize(par, p, mods))

	for _, mod := range mods {
		assert.True(t, mat.Equal(seq.H[mod], par.H[mod]), mod)
		assert.True(t, mat.Equal(seq.GH[mod], par.GH[mod]), mod)
		assert.Equal(t, seq.LossH[mod], par.LossH[mod])
	}
	assert.True(t, mat.Equal(seq.W, par.W))
	assert.Equal(t, seq.LossW, par.LossW)
}

func TestOptimizeFloat32(t *testing.T) {
	st, mods := randomState(t, 5, map[string]int{"rna": 4}, 2, 3)
	p := testParams(2, 2)
	p.DType = Float32
	require.NoError(t, Optimize(st, p, mods))

	for _, m := range []*mat.Dense{st.H["rna"], st.GH["rna"], st.GW["rna"], st.W} {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := m.At(i, j)
				assert.Equal(t, float64(float32(v)), v)
			}
		}
	}
	assertSimplex(t, st.W, 1e-6)
}

func TestOptimizeLogging(t *testing.T) {
	var msg bytes.Buffer
	st, mods := randomState(t, 6, map[string]int{"rna": 4}, 2, 3)
	p := testParams(1, 2)
	p.Tol = 0
	p.Logger = &lbfgs.Logger{Level: lbfgs.LogEval, Msg: &msg}
	require.NoError(t, Optimize(st, p, mods))
	assert.Contains(t, msg.String(), "Outer iteration    1")
	assert.Contains(t, msg.String(), "Outer iteration    2")
	assert.NotContains(t, msg.String(), "ITERATION")
}

func TestOptimizeDiverged(t *testing.T) {
	st, mods := randomState(t, 7, map[string]int{"rna": 4}, 2, 3)
	st.GH["rna"].Set(0, 0, math.NaN())
	before := mat.DenseCopyOf(st.H["rna"])

	err := Optimize(st, testParams(1, 1), mods)
	assert.True(t, errors.Is(err, ErrDiverged), "%v", err)
	assert.True(t, mat.Equal(before, st.H["rna"]))
}
