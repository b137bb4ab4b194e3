// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Perform a line search along dₖ from xₖ.
// The λₖ starts with the given trial step and ensure fₖ₊₁ = f(xₖ + λₖdₖ), gₖ₊₁ = f′ₖ₊₁ satisfies:
//   - sufficient decrease condition: fₖ₊₁ ≤ fₖ + ɑλₖgₖᵀdₖ
//   - curvature condition: |gₖ₊₁ᵀdₖ| ≤ β |gₖᵀdₖ|
//
// A trial point with a non-finite function value switches the search to plain halving
// under the sufficient decrease condition, because the bracketing interval of Moré–Thuente
// cannot be updated from such a value.
//
// When the search fails, a trial point that still decreases f is accepted;
// otherwise the previous x, f and g are restored.
func (d *iterDriver) lineSearch(stp, gd float64) Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	tol := &o.search

	f0 := loc.f
	copy(w.xp, loc.x)
	copy(w.gp, loc.g)

	// the best trial point seen so far
	fb := f0
	keep := func() {
		if loc.f < fb {
			fb = loc.f
			copy(w.xb, loc.x)
			copy(w.gb, loc.g)
		}
	}
	// fallback moves to the best trial point, or back to xₖ when none decreased f.
	fallback := func(task Status) Status {
		if fb < f0 {
			copy(loc.x, w.xb)
			copy(loc.g, w.gb)
			loc.f = fb
			return task
		}
		copy(loc.x, w.xp)
		copy(loc.g, w.gp)
		loc.f = f0
		return HaltLineSearch
	}

	ls := optimize.MoreThuente{
		DecreaseFactor:  tol.Alpha,
		CurvatureFactor: tol.Beta,
		StepTolerance:   tol.Eps,
	}
	ls.Init(f0, gd, stp)

	halving := false
	for k := 1; ; k++ {
		floats.AddScaledTo(loc.x, w.xp, stp, w.d)
		if task := d.evaluate(); task != statusLoop {
			copy(loc.x, w.xp)
			copy(loc.g, w.gp)
			loc.f = f0
			return task
		}

		if o.logger.Enabled(LogVerbose) {
			o.logger.Logf("  line search %2d  stp= %12.5e  f= %12.5e\n", k, stp, loc.f)
		}

		finite := !math.IsNaN(loc.f) && !math.IsInf(loc.f, 0)
		if finite {
			keep()
		}

		exhausted := k >= tol.MaxEval || d.eval >= o.stop.MaxEvaluations
		limit := statusLoop
		if d.eval >= o.stop.MaxEvaluations {
			limit = OverEvalLimit
		}

		if !finite || halving {
			halving = true
			if finite && loc.f <= f0+tol.Alpha*stp*gd {
				return limit
			}
			if exhausted {
				return fallback(limit)
			}
			stp *= 0.5
			continue
		}

		op, next, err := ls.Iterate(loc.f, floats.Dot(loc.g, w.d))
		switch {
		case err != nil:
			if o.logger.Enabled(LogTrace) {
				o.logger.Logf("  line search: %v\n", err)
			}
			return fallback(limit)
		case op == optimize.MajorIteration:
			return limit
		case exhausted:
			return fallback(limit)
		}
		stp = next
	}
}
