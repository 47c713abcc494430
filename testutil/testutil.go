package testutil

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// FillGaussian fills dst with standard normal values.
func (r *RNG) FillGaussian(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()
	}
}

// UniformMatrix generates a rows x cols matrix with values in [0, 1).
func (r *RNG) UniformMatrix(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	r.FillUniform(data)
	return mat.NewDense(rows, cols, data)
}

// Blobs generates perCluster points around each center with Gaussian noise
// of standard deviation spread. Points are emitted cluster by cluster; the
// second return value holds the generating center of every row.
func (r *RNG) Blobs(centers [][]float64, perCluster int, spread float64) (*mat.Dense, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dim := len(centers[0])
	n := len(centers) * perCluster
	data := make([]float64, n*dim)
	truth := make([]int, n)

	for c, center := range centers {
		for i := range perCluster {
			row := c*perCluster + i
			truth[row] = c
			for j := range dim {
				data[row*dim+j] = center[j] + r.rand.NormFloat64()*spread
			}
		}
	}
	return mat.NewDense(n, dim, data), truth
}

// SeparatedBlobs places k centers on the axes of a dim-dimensional space at
// the given distance from the origin (alternating sign once the axes are
// used up) and generates blobs around them.
func (r *RNG) SeparatedBlobs(k, perCluster, dim int, separation, spread float64) (*mat.Dense, []int) {
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = make([]float64, dim)
		sign := 1.0
		if (c/dim)%2 == 1 {
			sign = -1
		}
		centers[c][c%dim] = sign * separation * float64(1+c/(2*dim))
	}
	return r.Blobs(centers, perCluster, spread)
}

// Ring generates n points on a circle of the given radius with radial noise.
func (r *RNG) Ring(n int, radius, noise float64) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]float64, n)
	for i := range out {
		theta := 2 * math.Pi * float64(i) / float64(n)
		rr := radius + r.rand.NormFloat64()*noise
		out[i] = []float64{rr * math.Cos(theta), rr * math.Sin(theta)}
	}
	return out
}

// FromRows builds a dense matrix from row slices.
func FromRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), dim, data)
}

// RandIndex computes the Rand index between two labelings: the fraction of
// point pairs on which they agree (same cluster in both, or different in
// both). 1.0 means the partitions are identical up to label names.
func RandIndex(truth, labels []int) float64 {
	n := len(truth)
	if n != len(labels) {
		return 0
	}
	if n < 2 {
		return 1
	}

	agree := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if (truth[i] == truth[j]) == (labels[i] == labels[j]) {
				agree++
			}
		}
	}
	return float64(agree) / float64(n*(n-1)/2)
}

// SamePartition reports whether two labelings group the points identically.
func SamePartition(a, b []int) bool {
	return len(a) == len(b) && RandIndex(a, b) == 1
}

// Distinct returns the number of distinct labels, ignoring the given
// exclusions (for example a noise label).
func Distinct(labels []int, exclude ...int) int {
	seen := make(map[int]struct{})
outer:
	for _, l := range labels {
		for _, e := range exclude {
			if l == e {
				continue outer
			}
		}
		seen[l] = struct{}{}
	}
	return len(seen)
}
