// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mudata

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var counts = mat.NewDense(3, 4, []float64{
	0, 2, 0, 1,
	5, 0, 0, 0,
	0, 3, 7, 0,
})

func TestCSRMatchesDense(t *testing.T) {
	s := CSRFromDense(counts)
	assert.Equal(t, 5, s.NNZ())
	r, c := s.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 4, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Equal(t, counts.At(i, j), s.At(i, j), "(%d,%d)", i, j)
			assert.Equal(t, counts.At(i, j), s.T().At(j, i))
		}
	}
	assert.True(t, mat.Equal(counts, Dense(s)))
	assert.True(t, mat.Equal(counts, Dense(counts)))
	assert.Panics(t, func() { s.At(3, 0) })
	assert.Panics(t, func() { s.At(0, -1) })
}

func TestNewCSR(t *testing.T) {
	s, err := NewCSR(2, 3, []int{0, 1, 3}, []int{2, 0, 1}, []float64{4, 5, 6})
	require.NoError(t, err)
	want := mat.NewDense(2, 3, []float64{0, 0, 4, 5, 6, 0})
	assert.True(t, mat.Equal(want, Dense(s)))

	bad := []struct {
		name    string
		indptr  []int
		indices []int
		data    []float64
	}{
		{"indptr length", []int{0, 3}, []int{2, 0, 1}, []float64{4, 5, 6}},
		{"value count", []int{0, 1, 3}, []int{2, 0, 1}, []float64{4, 5}},
		{"column range", []int{0, 1, 3}, []int{3, 0, 1}, []float64{4, 5, 6}},
		{"unsorted", []int{0, 1, 3}, []int{2, 1, 0}, []float64{4, 5, 6}},
		{"decreasing", []int{0, 2, 1}, []int{2, 0}, []float64{4, 5}},
	}
	for _, tt := range bad {
		_, err := NewCSR(2, 3, tt.indptr, tt.indices, tt.data)
		assert.True(t, errors.Is(err, ErrMalformed), tt.name)
	}
}

func TestSelectVariable(t *testing.T) {
	for name, x := range map[string]mat.Matrix{"dense": counts, "sparse": CSRFromDense(counts)} {
		t.Run(name, func(t *testing.T) {
			m := &Modality{Name: "rna", X: x, HighlyVariable: []bool{false, true, true, false}}
			got, err := m.SelectVariable()
			require.NoError(t, err)
			want := mat.NewDense(3, 2, []float64{2, 0, 0, 0, 3, 7})
			assert.True(t, mat.Equal(want, got))

			m.HighlyVariable = nil
			got, err = m.SelectVariable()
			require.NoError(t, err)
			assert.True(t, mat.Equal(counts, got))

			m.HighlyVariable = make([]bool, 4)
			_, err = m.SelectVariable()
			assert.True(t, errors.Is(err, ErrMalformed))

			idx, err := m.Variable()
			require.NoError(t, err)
			assert.Empty(t, idx)
		})
	}
}

func TestSelectVariableAfterAdd(t *testing.T) {
	// The mask and matrix are exported, they are checked again on every selection.
	m := &Modality{Name: "rna", X: counts}
	_, err := New(m)
	require.NoError(t, err)

	m.HighlyVariable = []bool{true, false}
	assert.NotPanics(t, func() { _, err = m.SelectVariable() })
	assert.True(t, errors.Is(err, ErrMalformed), "%v", err)

	m.HighlyVariable = nil
	m.X = nil
	_, err = m.Variable()
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDataset(t *testing.T) {
	rna := &Modality{Name: "rna", X: counts}
	atac := &Modality{Name: "atac", X: CSRFromDense(mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}))}
	ds, err := New(rna, atac)
	require.NoError(t, err)

	assert.Equal(t, []string{"rna", "atac"}, ds.Names())
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 3, ds.NumObs())
	assert.Same(t, atac, ds.Mod("atac"))
	assert.Nil(t, ds.Mod("adt"))
	assert.NotNil(t, rna.Uns)
	assert.NotNil(t, ds.Obsm)

	_, err = ds.Lookup("adt")
	assert.True(t, errors.Is(err, ErrUnknownModality))

	err = ds.Add(&Modality{Name: "rna", X: counts})
	assert.True(t, errors.Is(err, ErrDuplicateName))

	err = ds.Add(&Modality{Name: "adt", X: mat.NewDense(2, 2, nil)})
	assert.True(t, errors.Is(err, ErrObsMismatch))

	err = ds.Add(&Modality{Name: "adt", X: mat.NewDense(3, 2, nil), HighlyVariable: []bool{true}})
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = New(&Modality{Name: "empty"})
	assert.True(t, errors.Is(err, ErrMalformed))
}
