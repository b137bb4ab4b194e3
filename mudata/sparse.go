// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mudata

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	_ mat.Matrix      = (*CSR)(nil)
	_ mat.NonZeroDoer = (*CSR)(nil)
)

// CSR is a compressed sparse row matrix.
// The non-zeros of row i are data[indptr[i]:indptr[i+1]] at columns indices[indptr[i]:indptr[i+1]].
type CSR struct {
	r, c    int
	indptr  []int
	indices []int
	data    []float64
}

// NewCSR creates a CSR matrix from its raw arrays, which are used without copy.
func NewCSR(r, c int, indptr, indices []int, data []float64) (*CSR, error) {
	switch {
	case r < 0 || c < 0:
		return nil, errors.Wrapf(ErrMalformed, "csr: negative dimension %d×%d", r, c)
	case len(indptr) != r+1 || indptr[0] != 0:
		return nil, errors.Wrapf(ErrMalformed, "csr: indptr length %d, want %d", len(indptr), r+1)
	case len(indices) != len(data) || indptr[r] != len(data):
		return nil, errors.Wrapf(ErrMalformed, "csr: %d indices, %d values, indptr ends at %d",
			len(indices), len(data), indptr[r])
	}
	for i := 0; i < r; i++ {
		if indptr[i] > indptr[i+1] {
			return nil, errors.Wrapf(ErrMalformed, "csr: indptr decreases at row %d", i)
		}
		for k := indptr[i]; k < indptr[i+1]; k++ {
			if j := indices[k]; j < 0 || j >= c || (k > indptr[i] && indices[k-1] >= j) {
				return nil, errors.Wrapf(ErrMalformed, "csr: bad column index %d at row %d", j, i)
			}
		}
	}
	return &CSR{r: r, c: c, indptr: indptr, indices: indices, data: data}, nil
}

// CSRFromDense compresses the non-zero entries of m.
func CSRFromDense(m mat.Matrix) *CSR {
	r, c := m.Dims()
	s := &CSR{r: r, c: c, indptr: make([]int, r+1)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != 0 {
				s.indices = append(s.indices, j)
				s.data = append(s.data, v)
			}
		}
		s.indptr[i+1] = len(s.data)
	}
	return s
}

// Dims implements mat.Matrix.
func (s *CSR) Dims() (r, c int) { return s.r, s.c }

// At implements mat.Matrix.
func (s *CSR) At(i, j int) float64 {
	if uint(i) >= uint(s.r) {
		panic(mat.ErrRowAccess)
	}
	if uint(j) >= uint(s.c) {
		panic(mat.ErrColAccess)
	}
	lo, hi := s.indptr[i], s.indptr[i+1]
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case s.indices[mid] < j:
			lo = mid + 1
		case s.indices[mid] > j:
			hi = mid
		default:
			return s.data[mid]
		}
	}
	return 0
}

// T implements mat.Matrix.
func (s *CSR) T() mat.Matrix { return mat.Transpose{Matrix: s} }

// NNZ returns the number of stored entries.
func (s *CSR) NNZ() int { return len(s.data) }

// DoNonZero implements mat.NonZeroDoer.
func (s *CSR) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < s.r; i++ {
		for k := s.indptr[i]; k < s.indptr[i+1]; k++ {
			if v := s.data[k]; v != 0 {
				fn(i, s.indices[k], v)
			}
		}
	}
}

// Dense returns a dense copy of x, visiting only the stored entries when x is sparse.
func Dense(x mat.Matrix) *mat.Dense {
	if nz, ok := x.(mat.NonZeroDoer); ok {
		r, c := x.Dims()
		d := mat.NewDense(r, c, nil)
		nz.DoNonZero(d.Set)
		return d
	}
	return mat.DenseCopyOf(x)
}

// Columns returns a dense copy of the given columns of x.
func Columns(x mat.Matrix, cols []int) *mat.Dense {
	r, _ := x.Dims()
	d := mat.NewDense(r, len(cols), nil)
	if nz, ok := x.(mat.NonZeroDoer); ok {
		_, c := x.Dims()
		pos := make([]int, c)
		for j := range pos {
			pos[j] = -1
		}
		for k, j := range cols {
			pos[j] = k
		}
		nz.DoNonZero(func(i, j int, v float64) {
			if k := pos[j]; k >= 0 {
				d.Set(i, k, v)
			}
		})
		return d
	}
	for k, j := range cols {
		for i := 0; i < r; i++ {
			d.Set(i, k, x.At(i, j))
		}
	}
	return d
}
