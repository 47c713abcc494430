package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{4, 6, 3}

	tests := []struct {
		name     string
		metric   Metric
		p        float64
		expected float64
	}{
		{"Euclidean", Euclidean, 0, 5},
		{"SquaredEuclidean", SquaredEuclidean, 0, 25},
		{"Manhattan", Manhattan, 0, 7},
		{"Chebyshev", Chebyshev, 0, 4},
		{"MinkowskiP1", Minkowski, 1, 7},
		{"MinkowskiP2", Minkowski, 2, 5},
		{"MinkowskiP3", Minkowski, 3, math.Cbrt(27 + 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Provider(tt.metric, tt.p)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, fn(a, b), 1e-9)
		})
	}

	t.Run("MinkowskiBadPower", func(t *testing.T) {
		_, err := Provider(Minkowski, 0.5)
		assert.Error(t, err)
		_, err = Provider(Minkowski, math.NaN())
		assert.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Provider(Metric(99), 2)
		assert.Error(t, err)
	})
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float64{1, 0}, []float64{2, 0}), 1e-12)
	assert.InDelta(t, 1.0, CosineDistance([]float64{1, 0}, []float64{0, 3}), 1e-12)
	assert.InDelta(t, 2.0, CosineDistance([]float64{1, 0}, []float64{-1, 0}), 1e-12)
	assert.Equal(t, 1.0, CosineDistance([]float64{0, 0}, []float64{1, 1}))
}

func TestParse(t *testing.T) {
	for name, want := range map[string]Metric{
		"euclidean":   Euclidean,
		"L2":          Euclidean,
		"sqeuclidean": SquaredEuclidean,
		"cityblock":   Manhattan,
		"l1":          Manhattan,
		"manhattan":   Manhattan,
		"chebyshev":   Chebyshev,
		"minkowski":   Minkowski,
		"cosine":      Cosine,
	} {
		got, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := Parse("haversine")
	assert.Error(t, err)
}

func TestMetric(t *testing.T) {
	assert.Equal(t, "euclidean", Euclidean.String())
	assert.Equal(t, "cosine", Cosine.String())
	assert.Equal(t, "Unknown(99)", Metric(99).String())

	assert.True(t, IsMinkowskiFamily(Manhattan))
	assert.False(t, IsMinkowskiFamily(Cosine))
	assert.False(t, IsMinkowskiFamily(SquaredEuclidean))
}

func TestPairwise(t *testing.T) {
	rows := [][]float64{{0, 0}, {3, 4}, {6, 8}}
	d := Pairwise(rows, func(a, b []float64) float64 { return math.Sqrt(SquaredL2(a, b)) })

	require.Len(t, d, 3)
	assert.Equal(t, []float64{0, 5, 10}, d[0])
	assert.Equal(t, d[0][2], d[2][0])
	assert.Equal(t, 0.0, d[1][1])
}
