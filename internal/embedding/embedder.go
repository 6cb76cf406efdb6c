// Package embedding provides the dense (CLIP) and sparse encoder contracts, the ONNX CLIP
// embedder, a deterministic mock and an LRU cache.
package embedding

import (
	"context"
	"math"

	"github.com/airrygarments/stylematch/internal/models"
)

// DenseEmbedder maps garment images and text into one shared space. Output is unit length.
type DenseEmbedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// SparseEncoder produces lexical sparse vectors. Fit must be called exactly once before
// either encode method.
type SparseEncoder interface {
	Fit(corpus []string) error
	EncodeDocuments(text string) (models.SparseVector, error)
	EncodeQueries(text string) (models.SparseVector, error)
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
