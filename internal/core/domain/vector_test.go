package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCentroid(t *testing.T) {
	t.Run("component-wise mean", func(t *testing.T) {
		got, err := Centroid([][]float32{
			{1, 2, 3},
			{3, 4, 5},
			{5, 0, 1},
		})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{3, 2, 3}, got, 1e-6)
	})

	t.Run("single vector is itself", func(t *testing.T) {
		got, err := Centroid([][]float32{{0.25, -0.5}})
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, -0.5}, got)
	})

	t.Run("empty set is not found", func(t *testing.T) {
		_, err := Centroid(nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("mismatched dimensions", func(t *testing.T) {
		_, err := Centroid([][]float32{{1, 2}, {1, 2, 3}})
		assert.True(t, errors.Is(err, ErrDimensionMismatch))
	})
}
