package storage

import (
	"context"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// BuildStatus reports index statistics, local disk usage and the relevant configuration.
// cfg may be nil, in which case only the index figures are returned.
func BuildStatus(ctx context.Context, store vector.Store, idx vector.Index, cfg *config.Config) (*models.Status, error) {
	stats, err := idx.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status := &models.Status{
		Index:     stats.Name,
		Backend:   store.Type(),
		Dimension: stats.Dimension,
		Metric:    string(stats.Metric),
		Records:   stats.Count,
	}
	if diskBytes, err := Footprint(store); err == nil && diskBytes > 0 {
		status.DiskUsageBytes = &diskBytes
	}
	if cfg != nil {
		sc := &models.StatusConfig{
			DenseProvider:   cfg.Embedding.Dense.Provider,
			DenseModel:      cfg.Embedding.Dense.Model,
			SparseHashSpace: cfg.Embedding.Sparse.HashSpace,
			DefaultTopK:     cfg.Search.DefaultTopK,
			StyleSimilarity: cfg.Search.StyleSimilarityOrDefault(),
			LanguageModel:   cfg.Outreach.Model,
			WatchedFiles:    cfg.Watch.Files,
		}
		if store.Type() == "sqlite" {
			sc.DatabasePath = cfg.Index.DatabasePath
		}
		status.Config = sc
	}
	return status, nil
}
