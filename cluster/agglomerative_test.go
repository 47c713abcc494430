package cluster

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/hupe1980/ensemble/distance"
	"github.com/hupe1980/ensemble/params"
	"github.com/hupe1980/ensemble/resource"
	"github.com/hupe1980/ensemble/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func agglomerativeOptions(overlay params.Params) params.Params {
	return params.Merge(params.Params{
		"affinity":          "euclidean",
		"connectivity":      nil,
		"n_components":      nil,
		"compute_full_tree": "auto",
		"linkage":           "ward",
		"pooling_func":      "mean",
	}, overlay)
}

func TestAgglomerative_Linkages(t *testing.T) {
	rng := testutil.NewRNG(42)
	data, truth := rng.SeparatedBlobs(3, 12, 2, 10, 0.5)

	tests := []struct {
		name    string
		overlay params.Params
	}{
		{"ward", nil},
		{"complete", params.Params{"linkage": "complete"}},
		{"average", params.Params{"linkage": "average"}},
		{"single", params.Params{"linkage": "single"}},
		{"average manhattan", params.Params{"linkage": "average", "affinity": "manhattan"}},
		{"complete cosine", params.Params{"linkage": "complete", "affinity": "cosine"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := (&Agglomerative{}).Fit(context.Background(), data, 3, agglomerativeOptions(tt.overlay))
			require.NoError(t, err)
			require.Len(t, labels, 36)
			assert.True(t, testutil.SamePartition(truth, labels))
			assert.Equal(t, 0, labels[0])
		})
	}
}

func TestAgglomerative_SingleLinkageExample(t *testing.T) {
	data := mat.NewDense(5, 1, []float64{0, 1, 5, 6, 20})

	labels, err := (&Agglomerative{}).Fit(context.Background(), data, 3, agglomerativeOptions(params.Params{"linkage": "single"}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 2}, labels)
}

func TestAgglomerative_Precomputed(t *testing.T) {
	data := mat.NewDense(5, 1, []float64{0, 1, 5, 6, 20})
	rows, err := rowsOf(data, true)
	require.NoError(t, err)

	fn, err := distance.Provider(distance.Euclidean, 2)
	require.NoError(t, err)
	dist := distance.Pairwise(rows, fn)

	labels, err := (&Agglomerative{}).Fit(context.Background(), mat.NewDense(5, 5, flatten(dist)), 3,
		agglomerativeOptions(params.Params{"linkage": "average", "affinity": "precomputed"}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 2}, labels)

	_, err = (&Agglomerative{}).Fit(context.Background(), data, 3,
		agglomerativeOptions(params.Params{"linkage": "average", "affinity": "precomputed"}))
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestAgglomerative_Connectivity(t *testing.T) {
	data := mat.NewDense(6, 1, []float64{0, 1, 2, 10, 11, 12})

	chain := make([][]bool, 6)
	for i := range chain {
		chain[i] = make([]bool, 6)
		if i > 0 {
			chain[i][i-1] = true
		}
		if i < 5 {
			chain[i][i+1] = true
		}
	}

	t.Run("chain", func(t *testing.T) {
		labels, err := (&Agglomerative{}).Fit(context.Background(), data, 2, agglomerativeOptions(params.Params{"connectivity": chain}))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
	})

	t.Run("matrix", func(t *testing.T) {
		m := mat.NewDense(6, 6, nil)
		for i := range chain {
			for j := range chain[i] {
				if chain[i][j] {
					m.Set(i, j, 1)
				}
			}
		}
		labels, err := (&Agglomerative{}).Fit(context.Background(), data, 2,
			agglomerativeOptions(params.Params{"connectivity": m, "linkage": "single"}))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
	})

	t.Run("decoded lists", func(t *testing.T) {
		lists := make([]any, len(chain))
		for i := range chain {
			row := make([]any, len(chain[i]))
			for j, edge := range chain[i] {
				switch {
				case i%2 == 1:
					row[j] = edge
				case edge:
					row[j] = int64(1)
				default:
					row[j] = 0.0
				}
			}
			lists[i] = row
		}
		labels, err := (&Agglomerative{}).Fit(context.Background(), data, 2, agglomerativeOptions(params.Params{"connectivity": lists}))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
	})

	t.Run("disconnected", func(t *testing.T) {
		var buf bytes.Buffer
		a := &Agglomerative{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

		empty := make([][]float64, 6)
		for i := range empty {
			empty[i] = make([]float64, 6)
		}
		labels, err := a.Fit(context.Background(), data, 2, agglomerativeOptions(params.Params{"connectivity": empty}))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
		assert.Contains(t, buf.String(), "not connected")
	})

	t.Run("wrong shape", func(t *testing.T) {
		_, err := (&Agglomerative{}).Fit(context.Background(), data, 2,
			agglomerativeOptions(params.Params{"connectivity": [][]bool{{true}}}))
		assert.ErrorIs(t, err, ErrInvalidOption)
	})
}

func TestAgglomerative_Tree(t *testing.T) {
	data := mat.NewDense(6, 1, []float64{0, 1, 3, 10, 11, 15})

	tests := []struct {
		name   string
		full   any
		merges int
	}{
		{"auto", "auto", 5},
		{"full", true, 5},
		{"partial", false, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, merges, err := (&Agglomerative{}).Tree(context.Background(), data, 2,
				agglomerativeOptions(params.Params{"compute_full_tree": tt.full, "linkage": "average"}))
			require.NoError(t, err)
			assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
			require.Len(t, merges, tt.merges)
			for i := 1; i < len(merges); i++ {
				assert.GreaterOrEqual(t, merges[i].Height, merges[i-1].Height)
			}
		})
	}
}

func TestAgglomerative_InvalidOptions(t *testing.T) {
	data := mat.NewDense(4, 1, []float64{0, 1, 10, 11})

	tests := []struct {
		name    string
		overlay params.Params
	}{
		{"linkage", params.Params{"linkage": "centroid"}},
		{"ward manhattan", params.Params{"affinity": "manhattan"}},
		{"ward precomputed", params.Params{"affinity": "precomputed"}},
		{"affinity", params.Params{"affinity": "hamming", "linkage": "average"}},
		{"compute_full_tree", params.Params{"compute_full_tree": "sometimes"}},
		{"pooling_func", params.Params{"pooling_func": "mode"}},
		{"pooling_func type", params.Params{"pooling_func": 3}},
		{"connectivity type", params.Params{"connectivity": "grid"}},
		{"connectivity cell", params.Params{"connectivity": []any{[]any{"yes"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Agglomerative{}).Fit(context.Background(), data, 2, agglomerativeOptions(tt.overlay))
			assert.ErrorIs(t, err, ErrInvalidOption)
		})
	}
}

func TestAgglomerative_PoolingFunc(t *testing.T) {
	data := mat.NewDense(4, 1, []float64{0, 1, 10, 11})
	sum := func(v []float64) float64 { return v[0] }

	labels, err := (&Agglomerative{}).Fit(context.Background(), data, 2,
		agglomerativeOptions(params.Params{"pooling_func": sum, "n_components": 3}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1}, labels)
}

func TestAgglomerative_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	data := mat.NewDense(4, 1, []float64{0, 1, 10, 11})

	_, err := (&Agglomerative{Resources: rc}).Fit(context.Background(), data, 2, agglomerativeOptions(nil))
	assert.ErrorIs(t, err, resource.ErrLimitExceeded)
}

func TestCutTree(t *testing.T) {
	labels := cutTree(5, []Merge{{A: 3, B: 4}, {A: 0, B: 2}})
	assert.Equal(t, []int{0, 1, 0, 2, 2}, labels)
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
