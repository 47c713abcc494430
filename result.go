package ensemble

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/ensemble/cluster"
	"github.com/hupe1980/ensemble/params"
)

// Result is the outcome of one clustering invocation.
type Result struct {
	// Algorithm is the registered name that produced the result.
	Algorithm string

	// K is the requested cluster count. DBSCAN ignores it.
	K int

	// Items is the number of rows clustered.
	Items int

	// Assignment holds one label per row. Noise rows carry cluster.Noise.
	Assignment []int

	// Params are the effective options: the algorithm defaults with the
	// recognized overlay keys applied.
	Params params.Params

	// Clusters is the number of distinct non-noise labels.
	Clusters int

	// Noise is the number of rows labelled cluster.Noise.
	Noise int

	// Duration is the time spent in the routine.
	Duration time.Duration
}

func newResult(algorithm string, k int, labels []int, p params.Params, d time.Duration) *Result {
	r := &Result{
		Algorithm:  algorithm,
		K:          k,
		Items:      len(labels),
		Assignment: labels,
		Params:     p,
		Duration:   d,
	}

	seen := make(map[int]struct{})
	for _, l := range labels {
		if l == cluster.Noise {
			r.Noise++
			continue
		}
		seen[l] = struct{}{}
	}
	r.Clusters = len(seen)
	return r
}

// Sizes returns the number of rows per label, noise included.
func (r *Result) Sizes() map[int]int {
	sizes := make(map[int]int)
	for _, l := range r.Assignment {
		sizes[l]++
	}
	return sizes
}

// Members returns the row indices carrying label, in ascending order.
func (r *Result) Members(label int) []int {
	var out []int
	for i, l := range r.Assignment {
		if l == label {
			out = append(out, i)
		}
	}
	return out
}

// NoiseSet returns the rows labelled as noise.
func (r *Result) NoiseSet() *roaring.Bitmap {
	bm := roaring.New()
	for i, l := range r.Assignment {
		if l == cluster.Noise {
			bm.Add(uint32(i))
		}
	}
	return bm
}
