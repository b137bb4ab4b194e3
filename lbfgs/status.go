// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

const (
	zero = 0.0
	one  = 1.0
)

const (
	searchAlpha    = 1.0e-3
	searchBeta     = 0.9
	searchEps      = 0.1
	searchBackExit = 20
)

// curvature pairs with yᵀs below this threshold are not stored
const curvEps = 1e-10

// Status describes why a Step returned.
type Status int

const (
	statusLoop Status = 0
	StatusConv Status = 1 << (4 + iota)
	StatusOver
	StatusHalt
)

const (
	// ConvGradNorm ‖ g ‖∞ ≤ 𝚐𝚝𝚘𝚕
	ConvGradNorm = StatusConv | (1 + iota)
	// ConvFuncChange |fₖ - fₖ₊₁| ≤ 𝚏𝚝𝚘𝚕
	ConvFuncChange
	// OverIterLimit the iteration limit of the step is reached
	OverIterLimit = StatusOver | (1 + iota - 2)
	// OverEvalLimit the evaluation limit of the step is reached
	OverEvalLimit
	// HaltEvalPanic the evaluation panicked
	HaltEvalPanic = StatusHalt | (1 + iota - 4)
	// HaltNonFinite the evaluation returned NaN or ±Inf at the starting location
	HaltNonFinite
	// HaltLineSearch the line search could not find an acceptable step
	HaltLineSearch
)

func (s Status) String() string {
	switch s {
	case statusLoop:
		return "running"
	case ConvGradNorm:
		return "CONVERGENCE: NORM_OF_GRADIENT_<=_GTOL"
	case ConvFuncChange:
		return "CONVERGENCE: REL_REDUCTION_OF_F_<=_FTOL"
	case OverIterLimit:
		return "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case OverEvalLimit:
		return "STOP: TOTAL NO. of f AND g EVALUATIONS EXCEEDS LIMIT"
	case HaltEvalPanic:
		return "ABNORMAL: EVALUATION PANIC"
	case HaltNonFinite:
		return "ABNORMAL: NON-FINITE FUNCTION VALUE"
	case HaltLineSearch:
		return "ABNORMAL_TERMINATION_IN_LNSRCH"
	default:
		return "UNKNOWN"
	}
}
