package search

import (
	"fmt"
	"math"

	"github.com/airrygarments/stylematch/internal/models"
)

// HybridScale blends a query pair for the dotproduct metric: sparse values are multiplied by
// (1-weight) and dense values by weight. weight 0 is pure sparse, 1 pure dense; anything
// outside [0,1] is rejected. The inputs are never modified.
func HybridScale(sparse models.SparseVector, dense []float32, weight float64) (models.SparseVector, []float32, error) {
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return models.SparseVector{}, nil, fmt.Errorf("%w: style similarity must be between 0 and 1, got %v", models.ErrInvalidArgument, weight)
	}
	scaledSparse := models.SparseVector{
		Indices: append([]uint32(nil), sparse.Indices...),
		Values:  make([]float32, len(sparse.Values)),
	}
	for i, v := range sparse.Values {
		scaledSparse.Values[i] = float32(float64(v) * (1 - weight))
	}
	scaledDense := make([]float32, len(dense))
	for i, v := range dense {
		scaledDense[i] = float32(float64(v) * weight)
	}
	return scaledSparse, scaledDense, nil
}
