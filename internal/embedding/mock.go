package embedding

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Text embeddings derive
// from the text hash and image embeddings from the file contents, so identical inputs always
// get identical unit vectors.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromSeed(xxhash.Sum64String(text)), nil
}

// EmbedImage returns a deterministic embedding based on the image bytes.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return e.fromSeed(xxhash.Sum64(data)), nil
}

func (e *MockEmbedder) fromSeed(seed uint64) []float32 {
	h := float64(seed%1_000_003) + 1
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	NormalizeL2Slice(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

var _ DenseEmbedder = (*MockEmbedder)(nil)
