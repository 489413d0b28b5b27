package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"Opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"ZeroVector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-5)
		})
	}
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-5)

	assert.False(t, NormalizeL2InPlace([]float32{0, 0}))
	assert.False(t, NormalizeL2InPlace(nil))
}

func TestNormalizeL2Copy(t *testing.T) {
	src := []float32{3, 4}

	dst, ok := NormalizeL2Copy(src)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, src, "source must not be modified")
	assert.InDelta(t, 1, Magnitude(dst), 1e-5)

	_, ok = NormalizeL2Copy([]float32{0, 0, 0})
	assert.False(t, ok)
}

func TestMetricString(t *testing.T) {
	assert.Equal(t, "L2", MetricL2.String())
	assert.Equal(t, "Cosine", MetricCosine.String())
	assert.Equal(t, "Dot", MetricDot.String())
	assert.Equal(t, "Unknown(42)", Metric(42).String())
}

func TestProvider(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{3, 4}

	fn, err := Provider(MetricL2)
	require.NoError(t, err)
	assert.InDelta(t, SquaredL2(a, b), fn(a, b), 1e-6)

	fn, err = Provider(MetricDot)
	require.NoError(t, err)
	assert.InDelta(t, Dot(a, b), fn(a, b), 1e-6)

	_, err = Provider(Metric(42))
	assert.Error(t, err)
}
