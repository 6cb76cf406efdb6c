// Package server provides the HTTP API for stylematch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/internal/search"
	"github.com/airrygarments/stylematch/internal/vector"
)

// EmailGenerator runs the outreach flow for a product page and a client page.
type EmailGenerator interface {
	Run(ctx context.Context, productURL, clientURL string) (*outreach.Result, error)
}

// WatchService manages the inventory files that trigger re-ingest.
type WatchService interface {
	Files() []string
	AddFile(path string, syncExisting bool) error
	RemoveFile(path string) error
}

// Server is the HTTP server for the stylematch API.
type Server struct {
	engine     *search.Engine
	generator  EmailGenerator
	store      vector.Store
	config     *config.Config
	logger     *zap.Logger
	watch      WatchService
	configPath string
	configMu   sync.Mutex
	metrics    *metrics.Metrics
	server     *http.Server
}

// NewServer creates a server with the given dependencies. generator, watch and m may be nil;
// the matching endpoints then answer 503 or 404. When configPath is set, watch list changes
// are persisted to it.
func NewServer(
	engine *search.Engine,
	generator EmailGenerator,
	store vector.Store,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	m *metrics.Metrics,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	return &Server{
		engine:     engine,
		generator:  generator,
		store:      store,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
		metrics:    m,
	}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(allowAllOrigins)
		r.Get("/health", s.handleHealth)
		r.Post("/generate-email", s.handleGenerateEmail)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/search", s.handleSearch)
			r.Get("/styles/{id}", s.handleGetStyle)
			r.Get("/status", s.handleStatus)
			r.Post("/generate-email", s.handleGenerateEmail)
			r.Get("/watch/files", s.handleWatchFilesList)
			r.Post("/watch/files", s.handleWatchFilesAdd)
			r.Delete("/watch/files", s.handleWatchFilesRemove)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// allowAllOrigins lets the browser frontend call the API from any origin.
func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
