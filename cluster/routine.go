package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/ensemble/params"
	"gonum.org/v1/gonum/mat"
)

// Noise is the label DBSCAN gives to points that belong to no cluster.
const Noise = -1

// Routine fits one clustering algorithm.
//
// Fit returns one label per row of data. Options are the fully merged set;
// implementations validate them and return an error for bad values or
// shapes. Implementations must not modify data.
type Routine interface {
	Fit(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error)
}

// RoutineFunc adapts a function to the Routine interface.
type RoutineFunc func(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error)

// Fit calls f.
func (f RoutineFunc) Fit(ctx context.Context, data mat.Matrix, k int, p params.Params) ([]int, error) {
	return f(ctx, data, k, p)
}

var (
	// ErrEmptyDataset is returned when the dataset has no rows or no columns.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrInvalidOption is returned when an option value is out of range or unsupported.
	ErrInvalidOption = errors.New("invalid option")

	// ErrTooFewSamples is returned when there are fewer rows than requested clusters.
	ErrTooFewSamples = errors.New("too few samples")

	// ErrNotConverged is returned when a numerical decomposition fails.
	ErrNotConverged = errors.New("decomposition did not converge")
)

// InvalidOptionError reports an option value the routine cannot use.
type InvalidOptionError struct {
	Algorithm string
	Key       string
	Value     any
	Reason    string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("%s: invalid %s=%v: %s", e.Algorithm, e.Key, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidOption.
func (e *InvalidOptionError) Unwrap() error { return ErrInvalidOption }

// TooFewSamplesError reports a dataset smaller than the requested cluster count.
type TooFewSamplesError struct {
	Samples  int
	Clusters int
}

func (e *TooFewSamplesError) Error() string {
	return fmt.Sprintf("n_samples=%d should be >= n_clusters=%d", e.Samples, e.Clusters)
}

// Unwrap returns ErrTooFewSamples.
func (e *TooFewSamplesError) Unwrap() error { return ErrTooFewSamples }

func invalid(algorithm, key string, value any, reason string) error {
	return &InvalidOptionError{Algorithm: algorithm, Key: key, Value: value, Reason: reason}
}

// dims validates data and returns its shape.
func dims(data mat.Matrix) (int, int, error) {
	if data == nil {
		return 0, 0, ErrEmptyDataset
	}
	if e, ok := data.(interface{ IsEmpty() bool }); ok && e.IsEmpty() {
		return 0, 0, ErrEmptyDataset
	}
	r, c := data.Dims()
	if r == 0 || c == 0 {
		return 0, 0, ErrEmptyDataset
	}
	return r, c, nil
}

// rowsOf exposes data as row slices. When copyRows is false and data is a
// *mat.Dense, the rows alias the matrix storage; callers must treat them as
// read-only.
func rowsOf(data mat.Matrix, copyRows bool) ([][]float64, error) {
	r, c, err := dims(data)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, r)
	if d, ok := data.(*mat.Dense); ok && !copyRows {
		for i := range rows {
			rows[i] = d.RawRowView(i)
		}
		return rows, nil
	}

	backing := make([]float64, r*c)
	for i := range rows {
		rows[i] = mat.Row(backing[i*c:(i+1)*c], i, data)
	}
	return rows, nil
}

func checkClusters(algorithm string, n, k int) error {
	if k < 1 {
		return invalid(algorithm, "n_clusters", k, "must be >= 1")
	}
	if n < k {
		return &TooFewSamplesError{Samples: n, Clusters: k}
	}
	return nil
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// relabel renumbers labels by order of first appearance, keeping Noise.
func relabel(labels []int) []int {
	next := 0
	seen := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == Noise {
			out[i] = Noise
			continue
		}
		id, ok := seen[l]
		if !ok {
			id = next
			seen[l] = id
			next++
		}
		out[i] = id
	}
	return out
}
