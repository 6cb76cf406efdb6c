package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/inventory"
	"github.com/airrygarments/stylematch/internal/keyword"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/internal/search"
	"github.com/airrygarments/stylematch/internal/storage"
	"github.com/airrygarments/stylematch/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Store    vector.Store
	Index    vector.Index
	Dense    embedding.DenseEmbedder
	Sparse   *keyword.BM25Encoder
	Engine   *search.Engine
	Ingester *inventory.Ingester
	Metrics  *metrics.Metrics
	logger   *zap.Logger

	// mockDense is set when the configured dense embedder failed and mock vectors stand in.
	mockDense bool
}

// Close releases the store and the embedder.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Dense != nil {
		_ = c.Dense.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	m := metrics.New()

	if err := storage.ValidateHashSpace(cfg.Index.Backend, cfg.Embedding.Sparse.HashSpace); err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Index.RequestTimeout)
	defer cancel()
	store, err := storage.Open(openCtx, &cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	idx, err := store.EnsureIndex(openCtx, storage.SpecFromConfig(&cfg.Index))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to provision index: %w", err)
	}
	logger.Info("index ready",
		zap.String("backend", store.Type()),
		zap.String("index", idx.Name()),
		zap.Int("dimension", idx.Dimension()))

	mockDense := false
	dense, err := embedding.NewDenseEmbedder(cfg.Embedding.Dense, logger)
	if err != nil {
		logger.Warn("dense embedder unavailable, falling back to mock embeddings",
			zap.String("provider", cfg.Embedding.Dense.Provider),
			zap.Error(err))
		dense = embedding.NewMockEmbedder(cfg.Index.Dimension)
		mockDense = true
	}
	if dense.Dimensions() != idx.Dimension() {
		_ = store.Close()
		_ = dense.Close()
		return nil, fmt.Errorf("dense embedder produces %d dimensions, index %s expects %d",
			dense.Dimensions(), idx.Name(), idx.Dimension())
	}

	sparse, err := keyword.NewBM25Encoder(
		keyword.WithParams(cfg.Embedding.Sparse.K1, cfg.Embedding.Sparse.B),
		keyword.WithHashSpace(cfg.Embedding.Sparse.HashSpace),
	)
	if err != nil {
		_ = store.Close()
		_ = dense.Close()
		return nil, err
	}
	if err := loadSparseParams(sparse, cfg.Embedding.Sparse.ParamsPath, logger); err != nil {
		_ = store.Close()
		_ = dense.Close()
		return nil, err
	}

	engineOpts := []search.EngineOption{search.WithMetrics(m)}
	ingestOpts := []inventory.IngesterOption{
		inventory.WithMetrics(m),
		inventory.WithRequestTimeout(cfg.Index.RequestTimeout),
	}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	ingestOpts = append(ingestOpts, inventory.WithLogger(logger))

	return &Components{
		Config:    cfg,
		Store:     store,
		Index:     idx,
		Dense:     dense,
		Sparse:    sparse,
		Engine:    search.NewEngine(idx, dense, sparse, &cfg.Search, engineOpts...),
		Ingester:  inventory.NewIngester(idx, dense, sparse, &cfg.Inventory, ingestOpts...),
		Metrics:   m,
		logger:    logger,
		mockDense: mockDense,
	}, nil
}

// loadSparseParams restores fitted BM25 statistics when a params file exists.
func loadSparseParams(sparse *keyword.BM25Encoder, path string, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("no BM25 params yet; run ingest to fit", zap.String("path", path))
		return nil
	}
	if err := sparse.LoadParamsFile(path); err != nil {
		return fmt.Errorf("failed to load BM25 params: %w", err)
	}
	logger.Debug("BM25 params loaded", zap.String("path", path))
	return nil
}

// ingest loads an inventory file into the index and persists the sparse statistics so later
// queries use the same corpus.
// Mock fallback vectors are only accepted by the memory backend; durable stores would keep them.
func (c *Components) ingest(ctx context.Context, path, imageRoot string) (*inventory.IngestReport, error) {
	if c.mockDense && c.Store.Type() != "memory" {
		return nil, fmt.Errorf("%w: dense embedder %q failed to load; refusing to write mock vectors into the %s index",
			models.ErrInvalidArgument, c.Config.Embedding.Dense.Provider, c.Store.Type())
	}
	if imageRoot == "" {
		imageRoot = c.Config.Inventory.ImageRoot
	}
	if imageRoot == "" {
		imageRoot = filepath.Dir(path)
	}
	report, err := c.Ingester.IngestFile(ctx, path, imageRoot)
	if err != nil {
		return report, err
	}
	if p := c.Config.Embedding.Sparse.ParamsPath; p != "" && c.Sparse.Fitted() {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return report, fmt.Errorf("failed to create params directory: %w", err)
		}
		if err := c.Sparse.SaveParams(p); err != nil {
			return report, err
		}
	}
	return report, nil
}

// pipeline wires the outreach flow. It fails when no language model key is configured.
func (c *Components) pipeline() (*outreach.Pipeline, error) {
	llm, err := outreach.NewLLM(&c.Config.Outreach, c.Metrics)
	if err != nil {
		return nil, err
	}
	return outreach.NewPipeline(c.Engine, llm, &c.Config.Outreach, outreach.WithLogger(c.logger))
}
