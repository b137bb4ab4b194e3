// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only one line at the last iteration
	LogLast LogLevel = 0
	// LogEval print also f and |g| every iteration
	LogEval LogLevel = 1
	// LogTrace print details of every iteration except n-vectors
	LogTrace LogLevel = 99
	// LogVerbose print details of every iteration including x and g
	LogVerbose LogLevel = 101
)

// Logger handles logging output for the optimizer and its callers.
// Note the writers must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for output data.
}

// Enabled reports whether messages of the given level are printed.
// A nil logger is silent.
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && l.Level >= level
}

// Logf writes a formatted message to Msg.
func (l *Logger) Logf(format string, a ...any) {
	if l == nil || l.Msg == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Outf writes formatted output data to Out.
func (l *Logger) Outf(format string, a ...any) {
	if l == nil || l.Out == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

// Evaluation is a function type for evaluating the objective function and gradient.
type Evaluation func(x []float64, g []float64) (f float64)

// Termination specifies the stopping criteria of one Step.
type Termination struct {
	// The step stops when the number of iterations exceeds limit.
	MaxIterations int
	// The step stops when the total number of function and gradient evaluations exceeds limit.
	// Zero means 5/4 of MaxIterations.
	MaxEvaluations int
	// The step stops when the gradient satisfies ‖ g ‖∞ ≤ 𝚐𝚝𝚘𝚕.
	GradTolerance float64
	// The step stops when the function value satisfies |fₖ - fₖ₊₁| ≤ 𝚏𝚝𝚘𝚕.
	FuncTolerance float64
}

// SearchTol configures the Moré–Thuente line search.
type SearchTol struct {
	// Alpha is a non-negative tolerance for the sufficient decrease condition.
	Alpha float64
	// Beta is a non-negative tolerance for the curvature condition.
	Beta float64
	// Eps is a non-negative relative tolerance for an acceptable interval width.
	Eps float64
	// Step is the initial trial step length.
	Step float64
	// MaxEval is the maximum number of evaluations spent in one line search.
	MaxEval int
}

// Problem specifies the problem for L-BFGS optimizer.
type Problem struct {
	N      int         // The problem dimension
	M      int         // The correction number of BFGS
	Eval   Evaluation  // Objective function and gradient
	Stop   Termination // Stop condition
	Search *SearchTol  // Optional line-search config
}

// New creates a new L-BFGS optimizer for given problem.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = &Logger{Level: LogNoop}
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}
	if logger.Out == nil {
		logger.Out = os.Stderr
	}

	n, m := p.N, p.M
	stop := p.Stop

	search := SearchTol{searchAlpha, searchBeta, searchEps, one, searchBackExit}
	if p.Search != nil {
		search = *p.Search
	}

	switch {
	case n <= 0:
		err = errors.New("lbfgs: problem dimension must greater than 0")
	case m <= 0:
		err = errors.New("lbfgs: correction number must greater than 0")
	case p.Eval == nil:
		err = errors.New("lbfgs: evaluation target is required")
	case stop.MaxIterations <= 0:
		err = errors.New("lbfgs: max iteration must greater than 0")
	case stop.GradTolerance < zero || stop.FuncTolerance < zero:
		err = errors.New("lbfgs: tolerance must not less than 0")
	case search.Alpha < zero || search.Beta <= search.Alpha || search.Beta >= one:
		err = errors.Newf("lbfgs: line search requires 0 ≤ alpha < beta < 1, got %g and %g", search.Alpha, search.Beta)
	case !(search.Step > zero) || math.IsInf(search.Step, 1):
		err = errors.Newf("lbfgs: initial step must be positive, got %g", search.Step)
	}
	if err != nil {
		return
	}

	if stop.MaxEvaluations <= 0 {
		stop.MaxEvaluations = max(stop.MaxIterations*5/4, 1)
	}
	if search.MaxEval <= 0 {
		search.MaxEval = searchBackExit
	}

	optimizer = &Optimizer{
		n: n, m: m,
		eval:   p.Eval,
		stop:   stop,
		search: search,
		logger: *logger,
	}
	return
}

// Optimizer implemented using the limited-memory BFGS algorithm.
type Optimizer struct {
	n, m   int
	eval   Evaluation
	stop   Termination
	search SearchTol
	logger Logger
}

// Workspace holds the correction history of one quasi-Newton run.
// Consecutive calls of Step with the same workspace continue the same run.
// Given problem dimension n and corrections number m,
// total work space is approximately float64[2×mn + 6×n + m].
type Workspace struct {
	n, m int
	hist history
	d    []float64 // search direction
	xp   []float64 // location before the line search
	gp   []float64 // gradient before the line search
	xb   []float64 // best trial location of the line search
	gb   []float64 // best trial gradient of the line search
	q    []float64 // two-loop scratch
	iter int       // iterations since the workspace was created or reset
	eval int       // evaluations since the workspace was created or reset
}

// Result contains the final result of one Step.
type Result struct {
	OK      bool      // Whether the step ended by a convergence test.
	F       float64   // Final function value.
	X, G    []float64 // Final solution and gradient.
	Summary           // Step summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status  Status // Final status of the step.
	NumIter int    // Number of iterations performed in this step.
	NumEval int    // Number of function and gradient evaluations performed in this step.
}

// Init allocate the workspace for L-BFGS optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := &Workspace{n: o.n, m: o.m}
	w.hist.init(o.n, o.m)
	w.d = make([]float64, o.n)
	w.xp = make([]float64, o.n)
	w.gp = make([]float64, o.n)
	w.xb = make([]float64, o.n)
	w.gb = make([]float64, o.n)
	w.q = make([]float64, o.m)
	return w
}

// Reset drops the correction history so the next Step starts a new run.
func (w *Workspace) Reset() {
	w.hist.reset()
	w.iter, w.eval = 0, 0
}

// Iterations returns the number of iterations performed since the workspace was created or reset.
func (w *Workspace) Iterations() int { return w.iter }

// Step runs at most Stop.MaxIterations iterations from the location x using workspace w.
// The slice x is not modified; the final location is returned in the result.
func (o *Optimizer) Step(x []float64, w *Workspace) *Result {

	if len(x) != o.n {
		panic("initial x dimension not match problem")
	}

	if w.n != o.n || w.m != o.m {
		panic("workspace dimension not match problem")
	}

	loc := iterLoc{
		x: slices.Clone(x),
		g: make([]float64, len(x)),
	}

	driver := iterDriver{
		optimizer: o,
		workspace: w,
		location:  &loc,
	}

	res := driver.mainLoop()
	return &Result{
		OK: res&StatusConv > 0,
		X:  loc.x, F: loc.f, G: loc.g,
		Summary: Summary{
			Status:  res,
			NumIter: driver.iter,
			NumEval: driver.eval,
		},
	}
}
