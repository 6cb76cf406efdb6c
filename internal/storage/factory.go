package storage

import (
	"context"
	"fmt"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.IndexConfig) (vector.Store, error) {
	switch cfg.Backend {
	case "memory":
		return vector.NewMemoryStore(), nil
	case "", "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", models.ErrInvalidArgument, cfg.Backend)
	}
}

// SpecFromConfig builds the index description from configuration.
func SpecFromConfig(cfg *config.IndexConfig) vector.IndexSpec {
	return vector.IndexSpec{
		Name:      cfg.Name,
		Dimension: cfg.Dimension,
		Metric:    vector.Metric(cfg.Metric),
	}
}

// ValidateHashSpace checks that every sparse term index the encoder can emit fits the backend.
// Postgres sparsevec values are declared SparseDimensions wide; other backends accept any uint32.
func ValidateHashSpace(backend string, hashSpace uint32) error {
	if backend == "postgres" && hashSpace > uint32(SparseDimensions) {
		return fmt.Errorf("%w: embedding.sparse.hash_space %d exceeds the postgres sparse width %d",
			models.ErrInvalidArgument, hashSpace, SparseDimensions)
	}
	return nil
}
