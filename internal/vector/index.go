// Package vector defines the hybrid inventory index contract and an in-memory backend.
package vector

import (
	"context"
	"fmt"

	"github.com/airrygarments/stylematch/internal/models"
)

// Metric is the similarity metric an index scores with.
type Metric string

// MetricDotProduct scores dense and sparse components by inner product and sums them.
const MetricDotProduct Metric = "dotproduct"

// DefaultDimension matches the CLIP ViT-B/32 embedding width.
const DefaultDimension = 512

// IndexSpec describes the index EnsureIndex should provide.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Normalize fills the default dimension and metric and validates the spec.
func (s *IndexSpec) Normalize() error {
	if s.Name == "" {
		return fmt.Errorf("%w: index name is empty", models.ErrInvalidArgument)
	}
	if s.Dimension == 0 {
		s.Dimension = DefaultDimension
	}
	if s.Dimension < 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", models.ErrInvalidArgument, s.Dimension)
	}
	if s.Metric == "" {
		s.Metric = MetricDotProduct
	}
	if s.Metric != MetricDotProduct {
		return fmt.Errorf("%w: unsupported metric %q (hybrid queries need %q)",
			models.ErrInvalidArgument, s.Metric, MetricDotProduct)
	}
	return nil
}

// UpsertOutcome reports what an upsert did.
type UpsertOutcome int

const (
	// UpsertInserted means the record was written.
	UpsertInserted UpsertOutcome = iota
	// UpsertSkipped means a record with the same id already existed and was left untouched.
	UpsertSkipped
)

func (o UpsertOutcome) String() string {
	if o == UpsertSkipped {
		return "skipped"
	}
	return "inserted"
}

// IndexStats summarises an index.
type IndexStats struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Count     int64  `json:"count"`
}

// Store provisions hybrid indexes. Implementations must be safe for concurrent use.
type Store interface {
	// EnsureIndex returns a handle to the named index, creating it when absent. An existing
	// index whose dimension differs from spec is dropped and recreated empty.
	EnsureIndex(ctx context.Context, spec IndexSpec) (Index, error)
	// Type names the backend ("memory", "sqlite", "postgres").
	Type() string
	Close() error
}

// Index is a handle to one hybrid index. Handles are safe to share across goroutines.
type Index interface {
	Name() string
	Dimension() int
	// Upsert writes item when its id is absent; an existing id is a no-op reported as
	// UpsertSkipped. Uniqueness is enforced by the store, not by the caller.
	Upsert(ctx context.Context, item *models.InventoryItem) (UpsertOutcome, error)
	// Query returns up to topK matches ordered by descending hybrid score.
	Query(ctx context.Context, dense []float32, sparse models.SparseVector, topK int) ([]*models.Match, error)
	// Fetch returns the stored items for ids; missing ids are absent from the map.
	Fetch(ctx context.Context, ids []string) (map[string]*models.InventoryItem, error)
	Stats(ctx context.Context) (IndexStats, error)
}

// ValidateQuery checks the query shape against the index dimension before any I/O.
func ValidateQuery(dimension int, dense []float32, sparse models.SparseVector, topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidArgument, topK)
	}
	if len(dense) != dimension {
		return fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrInvalidArgument, len(dense), dimension)
	}
	return sparse.Validate()
}

// String implements fmt.Stringer for log fields.
func (s IndexSpec) String() string {
	return fmt.Sprintf("%s(dim=%d, metric=%s)", s.Name, s.Dimension, s.Metric)
}
