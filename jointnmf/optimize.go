// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/lbfgs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params configures one run of Optimize.
type Params struct {
	RhoH, RhoW float64
	Eps        float64
	LR         float64
	Tol        float64

	History     int // L-BFGS correction pairs
	MaxStepIter int // L-BFGS iterations per step
	NIterInner  int // steps per block and outer iteration
	NIter       int // maximum outer iterations

	DType    DType
	Parallel bool
	Logger   *lbfgs.Logger
}

func (p Params) validate() error {
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 1) }
	switch {
	case !positive(p.RhoH) || !positive(p.RhoW) || !positive(p.Eps) || !positive(p.LR):
		return errors.Wrapf(ErrConfig, "rho_h = %g, rho_w = %g, eps = %g, lr = %g", p.RhoH, p.RhoW, p.Eps, p.LR)
	case !(p.Tol >= 0):
		return errors.Wrapf(ErrConfig, "tolerance %g", p.Tol)
	case p.History <= 0 || p.MaxStepIter <= 0:
		return errors.Wrapf(ErrConfig, "history %d, iterations per step %d", p.History, p.MaxStepIter)
	case p.NIterInner <= 0 || p.NIter <= 0:
		return errors.Wrapf(ErrConfig, "iterations %d×%d", p.NIter, p.NIterInner)
	}
	return nil
}

// stepLogger hides the per-iteration output of L-BFGS unless tracing is requested.
func (p Params) stepLogger() *lbfgs.Logger {
	if !p.Logger.Enabled(lbfgs.LogTrace) {
		return &lbfgs.Logger{Level: lbfgs.LogNoop}
	}
	l := *p.Logger
	return &l
}

// stepper performs consecutive L-BFGS steps that share one correction history.
type stepper struct {
	opt *lbfgs.Optimizer
	ws  *lbfgs.Workspace
}

func newStepper(n int, eval lbfgs.Evaluation, p Params) (*stepper, error) {
	prob := lbfgs.Problem{
		N:    n,
		M:    p.History,
		Eval: eval,
		Stop: lbfgs.Termination{
			MaxIterations: p.MaxStepIter,
			GradTolerance: 1e-7,
			FuncTolerance: 1e-9,
		},
		Search: &lbfgs.SearchTol{Alpha: 1e-4, Beta: 0.9, Eps: 0.1, Step: p.LR},
	}
	opt, err := prob.New(p.stepLogger())
	if err != nil {
		return nil, errors.Mark(err, ErrConfig)
	}
	return &stepper{opt: opt, ws: opt.Init()}, nil
}

// run performs at most steps steps from x and returns the final location and loss.
// It stops early once a step converges or the line search cannot progress.
func (s *stepper) run(x []float64, steps int) ([]float64, float64, error) {
	f := math.NaN()
	for i := 0; i < steps; i++ {
		r := s.opt.Step(x, s.ws)
		if r.Status == lbfgs.HaltEvalPanic || r.Status == lbfgs.HaltNonFinite {
			return x, r.F, errors.Wrapf(ErrDiverged, "step %d: %s", i, r.Status)
		}
		x, f = r.X, r.F
		if r.Status&lbfgs.StatusConv != 0 || r.Status == lbfgs.HaltLineSearch {
			break
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return x, f, errors.Wrapf(ErrDiverged, "loss %g", f)
	}
	return x, f, nil
}

// hSolver updates the feature factor of one modality.
type hSolver struct {
	obj  *hObjective
	step *stepper
}

type hUpdate struct {
	gh, h *mat.Dense
	loss  float64
	err   error
}

func (s *hSolver) update(gh *mat.Dense, p Params) (u hUpdate) {
	r, c := gh.Dims()
	x := make([]float64, r*c)
	mat.NewDense(r, c, x).Copy(gh)

	x, u.loss, u.err = s.step.run(x, p.NIterInner)
	if u.err != nil {
		u.err = errors.Wrapf(u.err, "modality %q", s.obj.mod)
		return
	}
	p.DType.roundSlice(x)
	u.gh = mat.NewDense(r, c, x)
	u.h = s.obj.factor(u.gh)
	p.DType.round(u.h)
	if !finite(u.h) {
		u.err = errors.Wrapf(ErrDiverged, "modality %q: non-finite factor H", s.obj.mod)
	}
	return
}

// Optimize runs the alternating dual descent on the given modalities of st.
//
// Every outer iteration performs NIterInner L-BFGS steps on each 𝐆ᴴᵢ with 𝐖 fixed, derives 𝐇ᵢ,
// then NIterInner steps on all 𝐆ᵂᵢ jointly with every 𝐇ᵢ fixed and derives 𝐖.
// The last loss of every problem is appended to the trajectories, which are reset at the start.
// The run stops after NIter outer iterations, or earlier once three shared losses are recorded
// and the last two differ by at most Tol.
//
// A divergence leaves the last finite value of the failing block in st and returns ErrDiverged.
func Optimize(st *State, p Params, mods []string) error {
	if len(mods) == 0 {
		return nil
	}
	if err := p.validate(); err != nil {
		return err
	}
	if err := st.check(mods); err != nil {
		return err
	}
	log := p.Logger

	hs := make([]*hSolver, len(mods))
	for i, mod := range mods {
		obj := &hObjective{mod: mod, a: st.A[mod], k: st.K[mod], w: st.W, rho: p.RhoH, eps: p.Eps}
		r, c := obj.a.Dims()
		step, err := newStepper(r*c, obj.Eval, p)
		if err != nil {
			return err
		}
		hs[i] = &hSolver{obj: obj, step: step}
	}

	wobj := newWObjective(st, mods, p.RhoW, p.Eps)
	wstep, err := newStepper(wobj.size(), wobj.Eval, p)
	if err != nil {
		return err
	}
	xw := make([]float64, wobj.size())

	st.LossH = make(map[string][]float64, len(mods))
	st.LossW = nil

	updates := make([]hUpdate, len(mods))
	for k := 0; k < p.NIter; k++ {

		// Every H update reads the same W.
		for _, s := range hs {
			s.obj.w = st.W
		}
		if p.Parallel && len(hs) > 1 {
			var wg sync.WaitGroup
			for i, s := range hs {
				wg.Add(1)
				go func(i int, s *hSolver, gh *mat.Dense) {
					defer wg.Done()
					updates[i] = s.update(gh, p)
				}(i, s, st.GH[mods[i]])
			}
			wg.Wait()
		} else {
			for i, s := range hs {
				updates[i] = s.update(st.GH[mods[i]], p)
			}
		}

		for i, mod := range mods {
			u := updates[i]
			if u.err != nil {
				return errors.Wrapf(u.err, "iteration %d", k)
			}
			st.GH[mod], st.H[mod] = u.gh, u.h
			st.LossH[mod] = append(st.LossH[mod], u.loss)
		}

		wobj.bind(st.H)
		wobj.pack(st.GW, xw)
		x, loss, err := wstep.run(xw, p.NIterInner)
		if err != nil {
			return errors.Wrapf(err, "shared factor, iteration %d", k)
		}
		p.DType.roundSlice(x)
		w := wobj.factor(x)
		p.DType.round(w)
		if !finite(w) {
			return errors.Wrapf(ErrDiverged, "shared factor, iteration %d: non-finite W", k)
		}
		for _, b := range wobj.blocks {
			st.GW[b.mod] = mat.DenseCopyOf(b.view(x))
		}
		st.W = w
		st.LossW = append(st.LossW, loss)

		if log.Enabled(lbfgs.LogEval) {
			log.Logf("Outer iteration %4d    loss W = %12.5e\n", k+1, loss)
		}
		if log.Enabled(lbfgs.LogTrace) {
			for i, mod := range mods {
				log.Logf("  %-12s loss H = %12.5e\n", mod, updates[i].loss)
			}
		}

		if n := len(st.LossW); n >= 3 && math.Abs(st.LossW[n-1]-st.LossW[n-2]) <= p.Tol {
			if log.Enabled(lbfgs.LogLast) {
				log.Logf("Converged after %d outer iterations, loss W = %12.5e\n", k+1, loss)
			}
			break
		}
	}
	return nil
}

func finite(m *mat.Dense) bool {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		if floats.HasNaN(row) {
			return false
		}
		for _, v := range row {
			if math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
