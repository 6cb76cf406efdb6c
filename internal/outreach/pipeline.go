// Package outreach turns a prospect's product page and about page into a cold email that
// pitches the closest matching styles from the inventory.
package outreach

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/search"
)

// PageSource returns the text content of a URL.
type PageSource interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Result is the outcome of one outreach run.
type Result struct {
	Email     string            `json:"email_content"`
	Product   *ProductInfo      `json:"product"`
	Client    ClientInfo        `json:"client"`
	Query     string            `json:"query"`
	Matches   []*models.Match   `json:"matches"`
	Collected *models.Collected `json:"collected"`
	Duration  int64             `json:"duration_ms"`
}

// Pipeline fetches both pages, extracts product and client info, searches the inventory by
// likeliness and composes the email.
type Pipeline struct {
	engine         *search.Engine
	pages          PageSource
	extractor      *Extractor
	composer       *Composer
	company        string
	sampleProducts int
	logger         *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for pipeline progress.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithPageSource replaces the HTTP page fetcher.
func WithPageSource(src PageSource) PipelineOption {
	return func(p *Pipeline) { p.pages = src }
}

// NewPipeline wires an outreach pipeline. The company description comes from cfg, falling
// back to DefaultCompanyDescription.
func NewPipeline(engine *search.Engine, llm Completer, cfg *config.OutreachConfig, opts ...PipelineOption) (*Pipeline, error) {
	if engine == nil || llm == nil || cfg == nil {
		return nil, fmt.Errorf("%w: outreach pipeline needs an engine, a language model and config", models.ErrInvalidArgument)
	}
	company, err := cfg.LoadCompanyDescription()
	if err != nil {
		return nil, err
	}
	if company == "" {
		company = DefaultCompanyDescription
	}
	p := &Pipeline{
		engine:         engine,
		pages:          NewPageFetcher(cfg.FetchTimeout, cfg.MaxPageBytes),
		extractor:      NewExtractor(llm),
		composer:       NewComposer(llm),
		company:        company,
		sampleProducts: cfg.SampleProducts,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run generates an email for the product at productURL and the client at clientURL.
func (p *Pipeline) Run(ctx context.Context, productURL, clientURL string) (*Result, error) {
	if productURL == "" || clientURL == "" {
		return nil, fmt.Errorf("%w: both product_url and client_url are required", models.ErrInvalidArgument)
	}
	start := time.Now()

	var product *ProductInfo
	var client ClientInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := p.pages.Fetch(gctx, productURL)
		if err != nil {
			return fmt.Errorf("product page: %w", err)
		}
		product, err = p.extractor.ExtractProduct(gctx, page)
		return err
	})
	g.Go(func() error {
		page, err := p.pages.Fetch(gctx, clientURL)
		if err != nil {
			return fmt.Errorf("client page: %w", err)
		}
		client, err = p.extractor.ExtractClient(gctx, page)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.logger.Info("Extracted product info",
		zap.String("brand", product.Brand),
		zap.String("fabric", product.FabricComposition))

	query := product.SearchQuery()
	pair, err := p.engine.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := p.engine.SearchByLikeliness(ctx, pair, p.sampleProducts)
	if err != nil {
		return nil, err
	}
	collected, err := search.Collect(matches)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Matched styles",
		zap.String("query", query),
		zap.Strings("styles", collected.Styles))

	email, err := p.composer.Compose(ctx, &EmailInput{
		CompanyDescription: p.company,
		Client:             client,
		Product:            product,
		Styles:             collected.Styles,
		FabricDescriptions: collected.Descriptions,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Email:     email,
		Product:   product,
		Client:    client,
		Query:     query,
		Matches:   matches,
		Collected: collected,
		Duration:  time.Since(start).Milliseconds(),
	}, nil
}
