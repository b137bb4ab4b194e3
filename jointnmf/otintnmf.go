// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/kernel"
	"github.com/curioloop/scmiot/lbfgs"
	"github.com/curioloop/scmiot/mudata"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Annotation keys written by Model.
const (
	KeyH = "H_OT" // per modality, features × latent
	KeyW = "W_OT" // per cell, cells × latent
)

// Model is an OTintNMF model.
// A Model is not safe for concurrent use.
type Model struct {
	cfg    Config
	runs   uint64 // initializations drawn so far
	metric kernel.Metric
	mods   []string
	st     *State
}

// NewModel creates a model from the default configuration modified by opts.
func NewModel(opts ...Option) (*Model, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewModelConfig(cfg)
}

// NewModelConfig creates a model from an explicit configuration.
func NewModelConfig(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// Config returns the configuration, LatentDim reflects the last growth.
func (m *Model) Config() Config { return m.cfg }

// LatentDim returns the current latent dimension.
func (m *Model) LatentDim() int { return m.cfg.LatentDim }

// Fitted reports whether FitTransform has succeeded.
func (m *Model) Fitted() bool { return m.st != nil }

// H returns a copy of the feature factor of a modality, nil if unknown.
func (m *Model) H(mod string) *mat.Dense {
	if m.st == nil || m.st.H[mod] == nil {
		return nil
	}
	return mat.DenseCopyOf(m.st.H[mod])
}

// W returns a copy of the shared embedding (latent × cells), nil before fitting.
func (m *Model) W() *mat.Dense {
	if m.st == nil {
		return nil
	}
	return mat.DenseCopyOf(m.st.W)
}

// Losses returns copies of the loss trajectories of the last optimization run.
func (m *Model) Losses() (h map[string][]float64, w []float64) {
	if m.st == nil {
		return nil, nil
	}
	h = make(map[string][]float64, len(m.st.LossH))
	for k, v := range m.st.LossH {
		h[k] = slices.Clone(v)
	}
	return h, slices.Clone(m.st.LossW)
}

// FitTransform factorizes every modality of ds with a latent dimension of Config.LatentDim.
//
// The selected features of each modality are densified, floored by 10⁻⁶ and normalized so
// every cell lies on the simplex. The ground cost between features uses the given metric.
// The factors start from uniform random values. Every modality draws H, GH and GW from a
// stream seeded by Config.Seed and a fingerprint of its normalized data, so modalities start
// identically exactly when their data are identical. W draws from a separate stream.
//
// On success, H is stored in the Uns["H_OT"] of every modality and Wᵀ in ds.Obsm["W_OT"].
func (m *Model) FitTransform(ds *mudata.Dataset, cost kernel.Metric, nIterInner, nIter int) error {
	if _, err := kernel.ParseMetric(string(cost)); err != nil {
		return err
	}
	if ds.Len() == 0 {
		return errors.Wrap(ErrShapeMismatch, "dataset has no modality")
	}

	mods := ds.Names()
	d, n := m.cfg.LatentDim, ds.NumObs()
	st := NewState()
	run := m.runs
	m.runs++
	for _, mod := range mods {
		a, k, err := m.prepare(ds.Mod(mod), cost)
		if err != nil {
			return err
		}
		f, _ := a.Dims()
		rnd := m.source(run, a)
		st.A[mod], st.K[mod] = a, k
		st.H[mod] = m.randSimplex(rnd, f, d)
		st.GH[mod] = m.rand(rnd, f, n)
		st.GW[mod] = m.rand(rnd, f, n)
	}
	st.W = m.randSimplex(m.source(run, nil), d, n)

	if err := m.run(st, mods, nIterInner, nIter); err != nil {
		return err
	}

	m.st, m.mods, m.metric = st, mods, cost
	for _, mod := range mods {
		ds.Mod(mod).Uns[KeyH] = mat.DenseCopyOf(st.H[mod])
	}
	ds.Obsm[KeyW] = mat.DenseCopyOf(st.W.T())
	return nil
}

// UpdateLatentDim grows a fitted model to latentDim factors.
//
// The existing factors are kept as is. The new factors are fitted to the residual
// |𝐀 - 𝐇𝐖|, floored and normalized like the data, and appended to the old ones.
// The annotations of ds are rewritten with the grown factors.
func (m *Model) UpdateLatentDim(ds *mudata.Dataset, latentDim, nIterInner, nIter int) error {
	if m.st == nil {
		return ErrNotFitted
	}
	dOld := m.cfg.LatentDim
	if latentDim <= dOld {
		return errors.Wrapf(ErrLatentDim, "%d → %d", dOld, latentDim)
	}
	if names := ds.Names(); !slices.Equal(names, m.mods) {
		return errors.Wrapf(ErrShapeMismatch, "dataset modalities %q, fitted on %q", names, m.mods)
	}

	dNew, n := latentDim-dOld, ds.NumObs()
	wOld := mat.DenseCopyOf(m.st.W)
	if _, c := wOld.Dims(); c != n {
		return errors.Wrapf(ErrShapeMismatch, "dataset has %d cells, fitted on %d", n, c)
	}

	full := NewState()
	grow := NewState()
	run := m.runs
	m.runs++
	hOld := make(map[string]*mat.Dense, len(m.mods))
	for _, mod := range m.mods {
		a, k, err := m.prepare(ds.Mod(mod), m.metric)
		if err != nil {
			return err
		}
		hOld[mod] = mat.DenseCopyOf(m.st.H[mod])
		f, _ := a.Dims()
		if hf, _ := hOld[mod].Dims(); hf != f {
			return errors.Wrapf(ErrShapeMismatch, "modality %q has %d features, fitted on %d", mod, f, hf)
		}

		// Ã = |𝐀 - 𝐇𝐖| + 10⁻⁶ normalized on the simplex
		var res mat.Dense
		res.Mul(hOld[mod], wOld)
		res.Sub(a, &res)
		res.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, &res)
		if err := kernel.Simplex(&res, kernel.Floor); err != nil {
			return errors.Wrapf(err, "modality %q residual", mod)
		}
		m.cfg.DType.round(&res)

		full.A[mod], full.K[mod] = a, k
		grow.A[mod], grow.K[mod] = &res, k
		rnd := m.source(run, &res)
		grow.H[mod] = m.randSimplex(rnd, f, dNew)
		grow.GH[mod] = m.rand(rnd, f, n)
		grow.GW[mod] = m.rand(rnd, f, n)
	}
	grow.W = m.randSimplex(m.source(run, nil), dNew, n)

	if err := m.run(grow, m.mods, nIterInner, nIter); err != nil {
		return err
	}

	for _, mod := range m.mods {
		var h mat.Dense
		h.Augment(hOld[mod], grow.H[mod])
		full.H[mod] = &h
		full.GH[mod], full.GW[mod] = grow.GH[mod], grow.GW[mod]
	}
	var w mat.Dense
	w.Stack(wOld, grow.W)
	full.W = &w
	full.LossH, full.LossW = grow.LossH, grow.LossW

	m.st = full
	m.cfg.LatentDim = latentDim
	for _, mod := range m.mods {
		ds.Mod(mod).Uns[KeyH] = mat.DenseCopyOf(full.H[mod])
	}
	ds.Obsm[KeyW] = mat.DenseCopyOf(full.W.T())
	return nil
}

// run checks the gradients if requested and runs the driver.
func (m *Model) run(st *State, mods []string, nIterInner, nIter int) error {
	p := m.cfg.params(nIterInner, nIter)
	if err := p.validate(); err != nil {
		return err
	}
	if m.cfg.CheckGradient {
		e, err := CheckGradients(st, p, mods)
		if err != nil {
			return err
		}
		if e > m.cfg.GradientTolerance {
			return errors.Wrapf(ErrGradientMismatch, "relative error %g > %g", e, m.cfg.GradientTolerance)
		}
		if m.cfg.Logger.Enabled(lbfgs.LogEval) {
			m.cfg.Logger.Logf("Gradient check passed, relative error %.3e\n", e)
		}
	}
	return Optimize(st, p, mods)
}

// prepare builds the normalized features × cells data and the Gibbs kernel of a modality.
func (m *Model) prepare(mod *mudata.Modality, cost kernel.Metric) (a, k *mat.Dense, err error) {
	x, err := mod.SelectVariable()
	if err != nil {
		return nil, nil, err
	}
	if mat.Min(x) < 0 {
		return nil, nil, errors.Wrapf(ErrNegativeData, "modality %q", mod.Name)
	}
	a = mat.DenseCopyOf(x.T())
	if err = kernel.Simplex(a, kernel.Floor); err != nil {
		return nil, nil, errors.Wrapf(err, "modality %q", mod.Name)
	}
	if _, k, err = kernel.Build(a, cost, m.cfg.Eps); err != nil {
		return nil, nil, errors.Wrapf(err, "modality %q", mod.Name)
	}
	m.cfg.DType.round(a)
	m.cfg.DType.round(k)
	return a, k, nil
}

// source returns the generator of one run: the shared factor's when a is nil,
// otherwise that of the modality with normalized data a.
func (m *Model) source(run uint64, a *mat.Dense) *rand.Rand {
	if a == nil {
		return rand.New(rand.NewPCG(m.cfg.Seed, run<<1|1))
	}
	return rand.New(rand.NewPCG(m.cfg.Seed^fingerprint(a), run<<1))
}

// fingerprint hashes the shape and the values of a.
func fingerprint(a *mat.Dense) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	r, c := a.Dims()
	put(uint64(r))
	put(uint64(c))
	for i := 0; i < r; i++ {
		for _, v := range a.RawRowView(i) {
			put(math.Float64bits(v))
		}
	}
	return h.Sum64()
}

// rand returns an r × c matrix of uniform values in [0,1).
func (m *Model) rand(rnd *rand.Rand, r, c int) *mat.Dense {
	x := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] = rnd.Float64()
		}
	}
	m.cfg.DType.round(x)
	return x
}

// randSimplex returns a uniform random r × c matrix whose columns are normalized to sum 1.
func (m *Model) randSimplex(rnd *rand.Rand, r, c int) *mat.Dense {
	x := m.rand(rnd, r, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		floats.Scale(1/floats.Sum(col), col)
		x.SetCol(j, col)
	}
	m.cfg.DType.round(x)
	return x
}
