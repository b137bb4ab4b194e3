// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/curioloop/scmiot/lbfgs"
	"gonum.org/v1/gonum/mat"
)

// Defaults of Config.
const (
	DefaultLatentDim         = 15
	DefaultRhoH              = 1e-1
	DefaultRhoW              = 1e-1
	DefaultLR                = 1e-2
	DefaultEps               = 5e-2
	DefaultTol               = 1e-2
	DefaultHistory           = 10
	DefaultMaxStepIter       = 4
	DefaultDevice            = "cpu"
	DefaultGradientTolerance = 1e-4
)

// Default iteration budgets of FitTransform and UpdateLatentDim.
const (
	DefaultIterInner = 25
	DefaultIter      = 25
)

// DType is the working precision of the optimization state.
type DType int

const (
	Float64 DType = iota
	// Float32 rounds data, kernels, duals and factors to single precision after every update.
	Float32
)

func (t DType) String() string {
	switch t {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

func (t DType) roundSlice(x []float64) {
	if t != Float32 {
		return
	}
	for i, v := range x {
		x[i] = float64(float32(v))
	}
}

func (t DType) round(m *mat.Dense) {
	if t != Float32 {
		return
	}
	m.Apply(func(_, _ int, v float64) float64 { return float64(float32(v)) }, m)
}

// Config holds the hyperparameters of an OTintNMF model.
type Config struct {
	LatentDim int     // Number of latent factors.
	RhoH      float64 // Entropic regularization of the feature factors.
	RhoW      float64 // Entropic regularization of the cell embedding.
	LR        float64 // Initial trial step of every line search.
	Eps       float64 // Entropic regularization of the transport problems.
	Tol       float64 // Convergence threshold on consecutive shared losses.

	History     int // Correction pairs kept by L-BFGS.
	MaxStepIter int // L-BFGS iterations per inner step.

	Device string // Only "cpu" is supported.
	DType  DType

	Seed     uint64 // Seed of the random initialization.
	Parallel bool   // Update the feature factors of all modalities concurrently.

	// CheckGradient compares analytic and finite-difference gradients before optimizing.
	CheckGradient     bool
	GradientTolerance float64

	Logger *lbfgs.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LatentDim:         DefaultLatentDim,
		RhoH:              DefaultRhoH,
		RhoW:              DefaultRhoW,
		LR:                DefaultLR,
		Eps:               DefaultEps,
		Tol:               DefaultTol,
		History:           DefaultHistory,
		MaxStepIter:       DefaultMaxStepIter,
		Device:            DefaultDevice,
		DType:             Float64,
		GradientTolerance: DefaultGradientTolerance,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 1) }
	switch {
	case c.LatentDim <= 0:
		return errors.Wrapf(ErrConfig, "latent dimension %d", c.LatentDim)
	case !positive(c.RhoH) || !positive(c.RhoW):
		return errors.Wrapf(ErrConfig, "rho_h = %g, rho_w = %g", c.RhoH, c.RhoW)
	case !positive(c.LR):
		return errors.Wrapf(ErrConfig, "learning rate %g", c.LR)
	case !positive(c.Eps):
		return errors.Wrapf(ErrConfig, "eps %g", c.Eps)
	case !(c.Tol >= 0):
		return errors.Wrapf(ErrConfig, "tolerance %g", c.Tol)
	case c.History <= 0 || c.MaxStepIter <= 0:
		return errors.Wrapf(ErrConfig, "history %d, iterations per step %d", c.History, c.MaxStepIter)
	case c.DType != Float64 && c.DType != Float32:
		return errors.Wrapf(ErrConfig, "dtype %d", c.DType)
	case c.CheckGradient && !positive(c.GradientTolerance):
		return errors.Wrapf(ErrConfig, "gradient tolerance %g", c.GradientTolerance)
	case c.Device != DefaultDevice:
		return errors.Wrapf(ErrUnsupportedDevice, "%q", c.Device)
	}
	return nil
}

// Option modifies a Config.
type Option func(*Config)

// WithLatentDim sets the number of latent factors.
func WithLatentDim(d int) Option { return func(c *Config) { c.LatentDim = d } }

// WithRho sets the entropic regularization of H and of W.
func WithRho(h, w float64) Option { return func(c *Config) { c.RhoH, c.RhoW = h, w } }

// WithLR sets the initial trial step of the line search.
func WithLR(lr float64) Option { return func(c *Config) { c.LR = lr } }

// WithEps sets the entropic regularization of the transport problems.
func WithEps(eps float64) Option { return func(c *Config) { c.Eps = eps } }

// WithTol sets the tolerance on the change of the shared loss.
func WithTol(tol float64) Option { return func(c *Config) { c.Tol = tol } }

// WithDevice sets the compute device, only "cpu" is available.
func WithDevice(device string) Option { return func(c *Config) { c.Device = device } }

// WithDType sets the working precision.
func WithDType(t DType) Option { return func(c *Config) { c.DType = t } }

// WithSeed sets the seed of the random initialization.
func WithSeed(seed uint64) Option { return func(c *Config) { c.Seed = seed } }

// WithParallel updates the feature factors of the modalities concurrently.
func WithParallel(on bool) Option { return func(c *Config) { c.Parallel = on } }

// WithLogger sets the progress logger, nil is silent.
func WithLogger(l *lbfgs.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithLBFGS sets the history size and the iterations per inner step.
func WithLBFGS(history, maxStepIter int) Option {
	return func(c *Config) { c.History, c.MaxStepIter = history, maxStepIter }
}

// WithGradientCheck enables the finite-difference gradient check with the given tolerance.
func WithGradientCheck(tol float64) Option {
	return func(c *Config) { c.CheckGradient, c.GradientTolerance = true, tol }
}

// params binds the iteration budgets of one driver run.
func (c Config) params(nIterInner, nIter int) Params {
	return Params{
		RhoH: c.RhoH, RhoW: c.RhoW,
		Eps: c.Eps, LR: c.LR, Tol: c.Tol,
		History: c.History, MaxStepIter: c.MaxStepIter,
		NIterInner: nIterInner, NIter: nIter,
		DType:    c.DType,
		Parallel: c.Parallel,
		Logger:   c.Logger,
	}
}
