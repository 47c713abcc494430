// Package distance maps metric names to distance functions over float64 rows.
package distance

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Metric represents the distance metric used to compare two rows.
type Metric int

const (
	Euclidean Metric = iota
	SquaredEuclidean
	Manhattan
	Chebyshev
	Minkowski
	Cosine
)

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case SquaredEuclidean:
		return "sqeuclidean"
	case Manhattan:
		return "manhattan"
	case Chebyshev:
		return "chebyshev"
	case Minkowski:
		return "minkowski"
	case Cosine:
		return "cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Parse resolves a metric name, accepting the usual aliases.
func Parse(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "euclidean", "l2":
		return Euclidean, nil
	case "sqeuclidean":
		return SquaredEuclidean, nil
	case "manhattan", "cityblock", "l1":
		return Manhattan, nil
	case "chebyshev", "infinity":
		return Chebyshev, nil
	case "minkowski":
		return Minkowski, nil
	case "cosine":
		return Cosine, nil
	default:
		return 0, fmt.Errorf("unsupported metric %q", name)
	}
}

// IsMinkowskiFamily reports whether m is an L-p norm distance. Tree indexes
// only support these metrics.
func IsMinkowskiFamily(m Metric) bool {
	switch m {
	case Euclidean, Manhattan, Chebyshev, Minkowski:
		return true
	default:
		return false
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float64) float64

// Provider returns the distance function for m.
// p is the Minkowski power and must be >= 1 when m is Minkowski.
func Provider(m Metric, p float64) (Func, error) {
	switch m {
	case Euclidean:
		return func(a, b []float64) float64 { return floats.Distance(a, b, 2) }, nil
	case SquaredEuclidean:
		return SquaredL2, nil
	case Manhattan:
		return func(a, b []float64) float64 { return floats.Distance(a, b, 1) }, nil
	case Chebyshev:
		return func(a, b []float64) float64 { return floats.Distance(a, b, math.Inf(1)) }, nil
	case Minkowski:
		if !(p >= 1) {
			return nil, fmt.Errorf("minkowski power must be >= 1, got %v", p)
		}
		return func(a, b []float64) float64 { return floats.Distance(a, b, p) }, nil
	case Cosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// SquaredL2 calculates the squared Euclidean distance between two rows.
// Assumes rows are the same length (caller's responsibility).
func SquaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// CosineDistance returns 1 - cosine similarity. A zero row is at distance 1
// from everything.
func CosineDistance(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

// Pairwise returns the full symmetric distance matrix of rows.
func Pairwise(rows [][]float64, fn Func) [][]float64 {
	n := len(rows)
	out := make([][]float64, n)
	backing := make([]float64, n*n)
	for i := range out {
		out[i] = backing[i*n : (i+1)*n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := fn(rows[i], rows[j])
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}
