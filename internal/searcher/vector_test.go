package searcher

import (
	"testing"

	"github.com/dshills/semindex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	_, err = Normalize([]float32{0, 0, 0})
	assert.ErrorIs(t, err, types.ErrZeroVector)

	_, err = Normalize(nil)
	assert.ErrorIs(t, err, types.ErrZeroVector)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	_, err := CosineSimilarity([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	_, err = CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	assert.ErrorIs(t, err, types.ErrZeroVector)
}
