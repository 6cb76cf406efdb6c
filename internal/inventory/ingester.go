package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// IngestReport summarizes one build-phase run.
type IngestReport struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// Ingester embeds inventory items and upserts them into the hybrid index.
type Ingester struct {
	index   vector.Index
	dense   embedding.DenseEmbedder
	sparse  embedding.SparseEncoder
	workers int
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for per-item events (skipped duplicates, failures).
func WithLogger(l *zap.Logger) IngesterOption {
	return func(in *Ingester) { in.logger = l }
}

// WithMetrics records upsert outcomes.
func WithMetrics(m *metrics.Metrics) IngesterOption {
	return func(in *Ingester) { in.metrics = m }
}

// WithRequestTimeout bounds each index upsert. Zero leaves upserts bounded only by the run context.
func WithRequestTimeout(d time.Duration) IngesterOption {
	return func(in *Ingester) { in.timeout = d }
}

// NewIngester creates an ingester. cfg controls parallelism and optional throttling
// (upserts_per_second 0 disables the limiter).
func NewIngester(index vector.Index, dense embedding.DenseEmbedder, sparse embedding.SparseEncoder, cfg *config.InventoryConfig, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		index:   index,
		dense:   dense,
		sparse:  sparse,
		workers: 1,
		logger:  zap.NewNop(),
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			in.workers = cfg.Workers
		}
		if cfg.UpsertsPerSecond > 0 {
			burst := cfg.Burst
			if burst <= 0 {
				burst = 1
			}
			in.limiter = rate.NewLimiter(rate.Limit(cfg.UpsertsPerSecond), burst)
		}
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Fit fits the sparse encoder on the item descriptions. An encoder that is already fitted
// is kept as is.
func (in *Ingester) Fit(items []*Item) error {
	err := in.sparse.Fit(Descriptions(items))
	if errors.Is(err, models.ErrAlreadyFitted) {
		in.logger.Debug("sparse encoder already fitted, reusing statistics")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fit sparse encoder: %w", err)
	}
	return nil
}

// Ingest fits the sparse encoder if needed, then embeds and upserts every item. Existing
// ids are skipped by the store and counted in the report. The first failure cancels the run.
func (in *Ingester) Ingest(ctx context.Context, items []*Item) (*IngestReport, error) {
	start := time.Now()
	report := &IngestReport{RunID: uuid.New().String(), Total: len(items)}
	logger := in.logger.With(zap.String("run_id", report.RunID))

	if len(items) == 0 {
		return report, nil
	}
	if err := in.Fit(items); err != nil {
		in.metrics.ObserveIngest(err)
		return report, err
	}

	var inserted, skipped atomic.Int64
	var waitErr error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for _, item := range items {
		if in.limiter != nil {
			if err := in.limiter.Wait(gctx); err != nil {
				waitErr = fmt.Errorf("throttle before style %s: %w", item.Style, err)
				break
			}
		}
		item := item
		g.Go(func() error {
			outcome, err := in.ingestOne(gctx, item)
			if err != nil {
				in.metrics.ObserveUpsert("error")
				return fmt.Errorf("style %s: %w", item.Style, err)
			}
			in.metrics.ObserveUpsert(outcome.String())
			if outcome == vector.UpsertSkipped {
				skipped.Add(1)
				logger.Info("ID already exists in the index, skipping upsert", zap.String("style", item.Style))
				return nil
			}
			inserted.Add(1)
			logger.Debug("style upserted", zap.String("style", item.Style))
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = waitErr
	}
	if err == nil {
		err = ctx.Err()
	}

	report.Inserted = int(inserted.Load())
	report.Skipped = int(skipped.Load())
	report.Duration = time.Since(start)
	in.metrics.ObserveIngest(err)
	if err != nil {
		return report, err
	}
	logger.Info("ingest complete",
		zap.Int("total", report.Total),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// IngestFile loads, prepares and ingests an inventory file.
func (in *Ingester) IngestFile(ctx context.Context, path, imageRoot string) (*IngestReport, error) {
	table, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	items, err := Prepare(table, imageRoot)
	if err != nil {
		return nil, err
	}
	return in.Ingest(ctx, items)
}

func (in *Ingester) ingestOne(ctx context.Context, item *Item) (vector.UpsertOutcome, error) {
	dense, err := in.dense.EmbedImage(ctx, item.ImagePath)
	if err != nil {
		return vector.UpsertInserted, fmt.Errorf("embed image: %w", err)
	}
	sparse, err := in.sparse.EncodeDocuments(item.Description)
	if err != nil {
		return vector.UpsertInserted, fmt.Errorf("encode description: %w", err)
	}
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}
	return in.index.Upsert(ctx, &models.InventoryItem{
		ID:       item.Style,
		Dense:    dense,
		Sparse:   sparse,
		Metadata: item.Metadata,
	})
}
