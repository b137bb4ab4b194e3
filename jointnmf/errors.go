// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jointnmf

import "github.com/cockroachdb/errors"

var (
	ErrConfig            = errors.New("jointnmf: invalid configuration")
	ErrShapeMismatch     = errors.New("jointnmf: shape mismatch")
	ErrNegativeData      = errors.New("jointnmf: data must be non-negative")
	ErrLatentDim         = errors.New("jointnmf: latent dimension must grow")
	ErrNotFitted         = errors.New("jointnmf: model is not fitted")
	ErrDiverged          = errors.New("jointnmf: optimization diverged")
	ErrUnsupportedDevice = errors.New("jointnmf: unsupported device")
	ErrGradientMismatch  = errors.New("jointnmf: analytic gradient does not match finite differences")
)
