// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/mudata"
	"github.com/curioloop/scmiot/nnls"
	"gonum.org/v1/gonum/mat"
)

// WarmStart selects the starting point of every NNLS subproblem of the baselines.
type WarmStart int

const (
	// WarmStartInitial starts every solve from the random initial value of the block.
	WarmStartInitial WarmStart = iota
	// WarmStartPrevious starts every solve from the last iterate of the block.
	WarmStartPrevious
)

func (s WarmStart) String() string {
	switch s {
	case WarmStartInitial:
		return "initial"
	case WarmStartPrevious:
		return "previous"
	default:
		return "unknown"
	}
}

// factors is the data and the random state shared by the baselines.
type factors struct {
	mods []string
	a    map[string]*mat.Dense // features × cells
	rnd  *rand.Rand
}

// load densifies every modality of ds as a features × cells matrix.
func load(ds *mudata.Dataset, latentDim, nIter int, ws WarmStart, seed uint64) (*factors, error) {
	switch {
	case latentDim <= 0:
		return nil, errors.Wrapf(ErrConfig, "latent dimension %d", latentDim)
	case nIter <= 0:
		return nil, errors.Wrapf(ErrConfig, "iterations %d", nIter)
	case ws != WarmStartInitial && ws != WarmStartPrevious:
		return nil, errors.Wrapf(ErrConfig, "warm start %d", ws)
	case ds.Len() == 0:
		return nil, errors.Wrap(ErrShapeMismatch, "dataset has no modality")
	}
	fs := &factors{
		mods: ds.Names(),
		a:    make(map[string]*mat.Dense, ds.Len()),
		rnd:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, mod := range fs.mods {
		x := ds.Mod(mod).X
		if x == nil {
			return nil, errors.Wrapf(mudata.ErrMalformed, "modality %q has no matrix", mod)
		}
		fs.a[mod] = mat.DenseCopyOf(mudata.Dense(x).T())
	}
	return fs, nil
}

func (fs *factors) features(mod string) int {
	r, _ := fs.a[mod].Dims()
	return r
}

func (fs *factors) cells() int {
	_, c := fs.a[fs.mods[0]].Dims()
	return c
}

// rand returns an r × c matrix of uniform values in [0,1).
func (fs *factors) rand(r, c int) *mat.Dense {
	x := mat.NewDense(r, c, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return fs.rnd.Float64() }, x)
	return x
}

// start returns the warm start of a block given its initial and current value.
func start(ws WarmStart, init, cur mat.Matrix) *mat.Dense {
	if ws == WarmStartPrevious {
		return mat.DenseCopyOf(cur)
	}
	return mat.DenseCopyOf(init)
}

// stack concatenates matrices with the same number of columns vertically.
func stack(ms ...mat.Matrix) *mat.Dense {
	rows, cols := 0, 0
	for _, m := range ms {
		r, c := m.Dims()
		rows, cols = rows+r, c
	}
	s := mat.NewDense(rows, cols, nil)
	off := 0
	for _, m := range ms {
		r, c := m.Dims()
		s.Slice(off, off+r, 0, c).(*mat.Dense).Copy(m)
		off += r
	}
	return s
}

func solver(s nnls.Solver) nnls.Solver {
	if s == nil {
		return nnls.HALS{}
	}
	return s
}
