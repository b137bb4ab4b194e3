// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Metric names a distance between two feature profiles.
type Metric string

const (
	Cosine      Metric = "cosine"      // 1 - u·v / (‖u‖‖v‖)
	Correlation Metric = "correlation" // cosine distance of the mean-centered profiles
	Euclidean   Metric = "euclidean"   // ‖u - v‖₂
	SqEuclidean Metric = "sqeuclidean" // ‖u - v‖₂²
	Cityblock   Metric = "cityblock"   // ‖u - v‖₁
	Chebyshev   Metric = "chebyshev"   // ‖u - v‖∞
	BrayCurtis  Metric = "braycurtis"  // Σ|uᵢ - vᵢ| / Σ|uᵢ + vᵢ|
	Canberra    Metric = "canberra"    // Σ|uᵢ - vᵢ| / (|uᵢ| + |vᵢ|)
)

// Metrics lists the supported metrics.
var Metrics = []Metric{Cosine, Correlation, Euclidean, SqEuclidean, Cityblock, Chebyshev, BrayCurtis, Canberra}

// ParseMetric resolves a metric name.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if _, ok := distances[m]; !ok {
		return "", errors.Wrapf(ErrUnsupportedMetric, "%q", name)
	}
	return m, nil
}

type distance func(u, v []float64) float64

var distances = map[Metric]distance{
	Cosine:      cosine,
	Correlation: cosine, // rows are centered before
	Euclidean:   func(u, v []float64) float64 { return floats.Distance(u, v, 2) },
	SqEuclidean: sqeuclidean,
	Cityblock:   func(u, v []float64) float64 { return floats.Distance(u, v, 1) },
	Chebyshev:   func(u, v []float64) float64 { return floats.Distance(u, v, math.Inf(1)) },
	BrayCurtis:  braycurtis,
	Canberra:    canberra,
}

// Pairwise computes the distances between every pair of rows of a.
// The result is symmetric with an exactly zero diagonal and no negative entry.
func Pairwise(a mat.Matrix, metric Metric) (*mat.Dense, error) {
	dist, ok := distances[metric]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMetric, "%q", metric)
	}
	r, c := a.Dims()
	if r == 0 || c == 0 {
		return nil, errors.Wrapf(ErrDegenerate, "empty matrix %d×%d", r, c)
	}

	rows := mat.DenseCopyOf(a)
	if metric == Correlation {
		for i := 0; i < r; i++ {
			row := rows.RawRowView(i)
			floats.AddConst(-stat.Mean(row, nil), row)
		}
	}

	d := mat.NewDense(r, r, nil)
	for i := 0; i < r; i++ {
		u := rows.RawRowView(i)
		for j := i + 1; j < r; j++ {
			v := dist(u, rows.RawRowView(j))
			if v < 0 {
				v = 0
			}
			d.Set(i, j, v)
			d.Set(j, i, v)
		}
	}
	return d, nil
}

func cosine(u, v []float64) float64 {
	nu, nv := floats.Norm(u, 2), floats.Norm(v, 2)
	switch {
	case nu == 0 && nv == 0:
		return 0
	case nu == 0 || nv == 0:
		return 1
	}
	return 1 - floats.Dot(u, v)/(nu*nv)
}

func sqeuclidean(u, v []float64) float64 {
	var s float64
	for i := range u {
		d := u[i] - v[i]
		s += d * d
	}
	return s
}

func braycurtis(u, v []float64) float64 {
	var num, den float64
	for i := range u {
		num += math.Abs(u[i] - v[i])
		den += math.Abs(u[i] + v[i])
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func canberra(u, v []float64) float64 {
	var s float64
	for i := range u {
		if den := math.Abs(u[i]) + math.Abs(v[i]); den > 0 {
			s += math.Abs(u[i]-v[i]) / den
		}
	}
	return s
}
