// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type iterLoc struct {
	f    float64
	x, g []float64
}

// iterDriver is the main driver for iterations in one Step,
// responsible for managing the flow of the optimization.
type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	location  *iterLoc
	iter      int // iterations of this step
	eval      int // evaluations of this step
}

// evaluate computes f and g at the current location.
// A panic raised by the evaluation halts the step.
func (d *iterDriver) evaluate() (task Status) {
	o, w, loc := d.optimizer, d.workspace, d.location
	defer func() {
		if r := recover(); r != nil {
			if o.logger.Enabled(LogLast) {
				o.logger.Logf("Evaluation panic: %v\n", r)
			}
			task = HaltEvalPanic
		}
	}()
	loc.f = o.eval(loc.x, loc.g)
	d.eval++
	w.eval++
	return statusLoop
}

// checkConvergence checks the stopping rules after an accepted iteration.
func (d *iterDriver) checkConvergence(fOld float64) Status {
	o, loc := d.optimizer, d.location
	switch {
	case floats.Norm(loc.g, math.Inf(1)) <= o.stop.GradTolerance:
		return ConvGradNorm
	case math.Abs(fOld-loc.f) <= o.stop.FuncTolerance:
		return ConvFuncChange
	case d.iter >= o.stop.MaxIterations:
		return OverIterLimit
	case d.eval >= o.stop.MaxEvaluations:
		return OverEvalLimit
	}
	return statusLoop
}

// mainLoop evaluates the starting location and performs quasi-Newton iterations
// until a stopping rule fires. The correction history in the workspace survives the step.
func (d *iterDriver) mainLoop() (task Status) {

	o, w, loc := d.optimizer, d.workspace, d.location
	log := &o.logger

	// Calculate f₀ and g₀
	if task = d.evaluate(); task != statusLoop {
		return
	}
	if math.IsNaN(loc.f) || math.IsInf(loc.f, 0) {
		task = HaltNonFinite
		d.printExit(task)
		return
	}
	if log.Enabled(LogEval) {
		log.Logf("At iterate %5d    f= %12.5e    |g|= %12.5e\n",
			w.iter, loc.f, floats.Norm(loc.g, math.Inf(1)))
	}
	if floats.Norm(loc.g, math.Inf(1)) <= o.stop.GradTolerance {
		task = ConvGradNorm
		d.printExit(task)
		return
	}

	for task == statusLoop {

		// dₖ = -Hₖgₖ
		w.hist.direction(loc.g, w.d, w.q)
		gd := floats.Dot(loc.g, w.d)
		if !(gd < zero) || math.IsNaN(gd) {
			// The direction is not a descent direction, restart from steepest descent.
			if log.Enabled(LogLast) {
				log.Logf("Refreshing LBFGS memory and restarting iteration.\n")
			}
			w.hist.reset()
			floats.ScaleTo(w.d, -one, loc.g)
			gd = -floats.Dot(loc.g, loc.g)
		}

		stp := o.search.Step
		if w.hist.col == 0 && w.iter == 0 {
			stp = math.Min(one, one/floats.Norm(loc.g, 1)) * o.search.Step
		}

		fOld := loc.f
		task = d.lineSearch(stp, gd)
		if task != statusLoop && task != OverEvalLimit {
			break
		}

		// sₖ = xₖ₊₁ - xₖ, yₖ = gₖ₊₁ - gₖ
		floats.SubTo(w.xp, loc.x, w.xp)
		floats.SubTo(w.gp, loc.g, w.gp)
		if !w.hist.push(w.xp, w.gp) && log.Enabled(LogTrace) {
			log.Logf("  ys <= 0, skipping BFGS update\n")
		}

		d.iter++
		w.iter++
		d.printIter()

		if task == statusLoop {
			task = d.checkConvergence(fOld)
		}
	}

	d.printExit(task)
	return
}

func (d *iterDriver) printIter() {
	o, w, loc := d.optimizer, d.workspace, d.location
	log := &o.logger
	if log.Enabled(LogTrace) {
		log.Logf("\nITERATION %5d\n", w.iter)
		log.Logf(" nfgv = %d  f = %12.5e  |g| = %12.5e  m = %d\n",
			w.eval, loc.f, floats.Norm(loc.g, math.Inf(1)), w.hist.col)
	}
	if log.Enabled(LogVerbose) {
		log.Outf(" x = %v\n g = %v\n", loc.x, loc.g)
	}
}

func (d *iterDriver) printExit(task Status) {
	log := &d.optimizer.logger
	if !log.Enabled(LogLast) {
		return
	}
	log.Logf("%s  iter= %d  nfgv= %d  f= %12.5e\n", task, d.iter, d.eval, d.location.f)
}
