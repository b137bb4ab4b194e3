// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"slices"
	"testing"
)

func objTrig(x []float64) float64 {
	return x[0]*math.Sin(x[1]) + x[1]*math.Cos(x[0]) + math.Pow(x[0], 3)*math.Pow(x[1], -0.5)
}

func gradTrig(x []float64) []float64 {
	return []float64{
		math.Sin(x[1]) - x[1]*math.Sin(x[0]) + 3*math.Pow(x[0], 2)*math.Pow(x[1], -0.5),
		x[0]*math.Cos(x[1]) + math.Cos(x[0]) - 0.5*math.Pow(x[0], 3)*math.Pow(x[1], -1.5),
	}
}

func TestGrad(t *testing.T) {

	tests := []struct {
		x      []float64
		method Method
		tol    float64
	}{
		{[]float64{1.0, 2.0}, Forward, 1e-6},
		{[]float64{1.0, 2.0}, Central, 1e-9},
		{[]float64{-0.5, 0.7}, Forward, 1e-6},
		{[]float64{-0.5, 0.7}, Central, 1e-9},
		{[]float64{10, 30}, Central, 1e-6},
	}

	for _, tt := range tests {
		as := ApproxSpec{N: 2, Object: objTrig, Method: tt.method}
		x0 := slices.Clone(tt.x)
		g := make([]float64, 2)
		if err := as.Grad(x0, g); err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(x0, tt.x) {
			t.Fatal("x0 not restored")
		}
		if e := MaxRelErr(g, gradTrig(tt.x), nil); e > tt.tol {
			t.Fatalf("gradient error %g at %v (method %d)", e, tt.x, tt.method)
		}
	}
}

func TestGradIndices(t *testing.T) {

	as := ApproxSpec{N: 2, Object: objTrig, Method: Central, Indices: []int{1}}
	x0 := []float64{1, 2}
	g := []float64{-7, 0}
	if err := as.Grad(x0, g); err != nil {
		t.Fatal(err)
	}
	if g[0] != -7 {
		t.Fatal("coordinate outside indices modified")
	}
	if e := MaxRelErr(g, gradTrig(x0), []int{1}); e > 1e-9 {
		t.Fatalf("gradient error %g", e)
	}
}

func TestAbsoluteStep(t *testing.T) {

	as := ApproxSpec{N: 1, Method: Forward}
	if h := as.absoluteStep(0); h != sqrtEps {
		t.Fatalf("unexpected step %g", h)
	}
	if h := as.absoluteStep(-100); h != -100*sqrtEps {
		t.Fatalf("unexpected step %g", h)
	}

	as = ApproxSpec{N: 1, Method: Central, RelStep: 1e-3}
	if h := as.absoluteStep(4); h != 4e-3 {
		t.Fatalf("unexpected step %g", h)
	}
	// relative step vanishes at zero, fall back to the default rule
	if h := as.absoluteStep(0); h != cubeEps {
		t.Fatalf("unexpected step %g", h)
	}

	as = ApproxSpec{N: 1, Method: Central, AbsStep: 0.25}
	if h := as.absoluteStep(4); h != 0.25 {
		t.Fatalf("unexpected step %g", h)
	}
}

func TestCheck(t *testing.T) {

	x, g := []float64{1, 2}, []float64{0, 0}
	cases := []ApproxSpec{
		{N: 0, Object: objTrig},
		{N: 2, Object: objTrig, Method: Method(7)},
		{N: 2},
		{N: 3, Object: objTrig},
		{N: 2, Object: objTrig, Indices: []int{2}},
	}
	for i, as := range cases {
		if err := as.Check(x, g); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if err := (&ApproxSpec{N: 2, Object: objTrig}).Check(x, g[:1]); err == nil {
		t.Fatal("expected gradient size error")
	}
}
