// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomSimplex(t *testing.T, r, c int, seed uint64) *mat.Dense {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, seed+1))
	x := mat.NewDense(r, c, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return rnd.Float64() }, x)
	require.NoError(t, Simplex(x, Floor))
	return x
}

func TestSimplex(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{
		1, 0, 3,
		3, 0, 1,
	})
	require.NoError(t, Simplex(x, 0.5))
	want := mat.NewDense(2, 3, []float64{
		1.5 / 5, 0.5, 3.5 / 5,
		3.5 / 5, 0.5, 1.5 / 5,
	})
	assert.True(t, mat.EqualApprox(x, want, 1e-15))

	x = randomSimplex(t, 7, 5, 11)
	for j := 0; j < 5; j++ {
		assert.InDelta(t, 1, floats.Sum(mat.Col(nil, j, x)), 1e-12)
	}

	err := Simplex(mat.NewDense(2, 1, []float64{0, 0}), 0)
	assert.True(t, errors.Is(err, ErrDegenerate))
	err = Simplex(mat.NewDense(2, 1, []float64{math.Inf(1), 0}), 0)
	assert.True(t, errors.Is(err, ErrDegenerate))
}

func TestPairwiseHandComputed(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{
		1, 2, 0,
		3, 0, 4,
	})
	tests := []struct {
		metric Metric
		want   float64
	}{
		{Cosine, 1 - 3/(math.Sqrt(5)*5)},
		{Euclidean, math.Sqrt(4 + 4 + 16)},
		{SqEuclidean, 24},
		{Cityblock, 8},
		{Chebyshev, 4},
		{BrayCurtis, 8.0 / 10},
		{Canberra, 2.0/4 + 1 + 1},
		// centered rows (0,1,-1) and (2/3,-7/3,5/3)
		{Correlation, 1 + 4/(math.Sqrt(2)*math.Sqrt(78.0/9))},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			d, err := Pairwise(a, tt.metric)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d.At(0, 1), 1e-12)
			assert.Equal(t, d.At(0, 1), d.At(1, 0))
			assert.Zero(t, d.At(0, 0))
			assert.Zero(t, d.At(1, 1))
		})
	}
}

func TestPairwiseUnsupported(t *testing.T) {
	_, err := Pairwise(mat.NewDense(2, 2, nil), Metric("mahalanobis"))
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))

	_, err = ParseMetric("hamming")
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))

	for _, m := range Metrics {
		got, err := ParseMetric(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestCostZeroMax(t *testing.T) {
	// identical rows give an all-zero distance matrix
	a := mat.NewDense(3, 2, []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	c, err := Cost(a, Euclidean)
	require.NoError(t, err)
	assert.Zero(t, mat.Max(c))

	k, err := Gibbs(c, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mat.Min(k))
}

func TestKernelProperties(t *testing.T) {
	a := randomSimplex(t, 6, 9, 3)
	for _, m := range Metrics {
		t.Run(string(m), func(t *testing.T) {
			c, k, err := Build(a, m, 0.05)
			require.NoError(t, err)
			assert.InDelta(t, 1, mat.Max(c), 1e-12)
			assert.GreaterOrEqual(t, mat.Min(c), 0.0)

			r, cc := k.Dims()
			require.Equal(t, 6, r)
			require.Equal(t, 6, cc)
			for i := 0; i < r; i++ {
				assert.Equal(t, 1.0, k.At(i, i))
				for j := 0; j < r; j++ {
					assert.Greater(t, k.At(i, j), 0.0)
					assert.LessOrEqual(t, k.At(i, j), 1.0)
					assert.Equal(t, k.At(i, j), k.At(j, i))
				}
			}
		})
	}
}

func TestGibbsFloor(t *testing.T) {
	c := mat.NewDense(1, 2, []float64{0, 1})
	k, err := Gibbs(c, 1e-4)
	require.NoError(t, err)
	assert.Equal(t, math.SmallestNonzeroFloat64, k.At(0, 1))

	for _, eps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Gibbs(c, eps)
		assert.True(t, errors.Is(err, ErrBadEpsilon), "eps %g", eps)
	}
}
