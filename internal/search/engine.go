// Package search provides hybrid query scaling, the fabric and likeliness searches and
// result collection over the inventory index.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

const (
	// DefaultTopK is used by the fabric and likeliness searches when topK is 0.
	DefaultTopK = 3
	// DefaultStyleSimilarity is the likeliness weight: pure dense.
	DefaultStyleSimilarity = 1.0
)

// Engine runs hybrid queries against one index.
type Engine struct {
	index   vector.Index
	dense   embedding.DenseEmbedder
	sparse  embedding.SparseEncoder
	config  *config.SearchConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records query counts and latency.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine. cfg may be nil, in which case package defaults apply.
func NewEngine(index vector.Index, dense embedding.DenseEmbedder, sparse embedding.SparseEncoder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{DefaultTopK: DefaultTopK}
	}
	e := &Engine{
		index:  index,
		dense:  dense,
		sparse: sparse,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the index the engine queries.
func (e *Engine) Index() vector.Index {
	return e.index
}

// Encode builds the query pair for text: CLIP text embedding and BM25 query weights,
// computed concurrently.
func (e *Engine) Encode(ctx context.Context, text string) (*models.QueryPair, error) {
	pair := &models.QueryPair{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense, err := e.dense.EmbedText(gctx, text)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		pair.Dense = dense
		return nil
	})
	g.Go(func() error {
		sparse, err := e.sparse.EncodeQueries(text)
		if err != nil {
			return fmt.Errorf("sparse encoding failed: %w", err)
		}
		pair.Sparse = sparse
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pair, nil
}

// Search scales pair by weight and queries the index for the topK best matches.
func (e *Engine) Search(ctx context.Context, pair *models.QueryPair, weight float64, topK int) ([]*models.Match, error) {
	return e.search(ctx, modeLabel(weight), pair, weight, topK)
}

// SearchByFabric ranks purely by the sparse (composition text) signal.
func (e *Engine) SearchByFabric(ctx context.Context, pair *models.QueryPair, topK int) ([]*models.Match, error) {
	return e.search(ctx, string(models.ModeFabric), pair, 0, e.topK(topK))
}

// SearchByLikeliness ranks by the configured style similarity, pure dense by default.
func (e *Engine) SearchByLikeliness(ctx context.Context, pair *models.QueryPair, topK int) ([]*models.Match, error) {
	return e.search(ctx, string(models.ModeLikeliness), pair, e.config.StyleSimilarityOrDefault(), e.topK(topK))
}

// SearchText validates req, encodes its query and runs the requested search.
func (e *Engine) SearchText(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	if err := req.Validate(e.topK(0), e.config.MaxTopK); err != nil {
		return nil, err
	}
	pair, err := e.Encode(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	var (
		matches []*models.Match
		weight  float64
		mode    string
	)
	switch {
	case req.Weight != nil:
		weight = *req.Weight
		mode = modeLabel(weight)
		matches, err = e.Search(ctx, pair, weight, req.TopK)
	case req.Mode == models.ModeFabric:
		mode = string(models.ModeFabric)
		matches, err = e.SearchByFabric(ctx, pair, req.TopK)
	default:
		mode = string(models.ModeLikeliness)
		weight = e.config.StyleSimilarityOrDefault()
		matches, err = e.SearchByLikeliness(ctx, pair, req.TopK)
	}
	if err != nil {
		return nil, err
	}
	collected, err := Collect(matches)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return &models.SearchResponse{
		Query:     req.Query,
		Mode:      mode,
		Weight:    weight,
		Matches:   matches,
		Collected: *collected,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func (e *Engine) search(ctx context.Context, mode string, pair *models.QueryPair, weight float64, topK int) ([]*models.Match, error) {
	start := time.Now()
	matches, err := e.query(ctx, pair, weight, topK)
	e.metrics.ObserveQuery(mode, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("hybrid query",
		zap.String("mode", mode),
		zap.Float64("weight", weight),
		zap.Int("top_k", topK),
		zap.Int("matches", len(matches)))
	return matches, nil
}

func (e *Engine) query(ctx context.Context, pair *models.QueryPair, weight float64, topK int) ([]*models.Match, error) {
	if pair == nil {
		return nil, fmt.Errorf("%w: nil query pair", models.ErrInvalidArgument)
	}
	sparse, dense, err := HybridScale(pair.Sparse, pair.Dense, weight)
	if err != nil {
		return nil, err
	}
	return e.index.Query(ctx, dense, sparse, topK)
}

func (e *Engine) topK(k int) int {
	if k != 0 {
		return k
	}
	if e.config.DefaultTopK > 0 {
		return e.config.DefaultTopK
	}
	return DefaultTopK
}

func modeLabel(weight float64) string {
	switch weight {
	case 0:
		return string(models.ModeFabric)
	case DefaultStyleSimilarity:
		return string(models.ModeLikeliness)
	default:
		return "custom"
	}
}
