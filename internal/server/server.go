// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Asker answers and searches against the indexed corpus.
type Asker interface {
	Ask(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error)
	Search(ctx context.Context, req *models.QueryRequest) ([]*models.SearchResult, error)
}

// Ingestor adds and removes documents.
type Ingestor interface {
	IngestDocument(ctx context.Context, text, sourceLabel string) (string, error)
	RemoveDocument(ctx context.Context, docID string) (int, error)
}

// WatchService manages the drop-folder directories. Implemented by watch.DropFolder.
type WatchService interface {
	Directories() []string
	AddDirectory(ctx context.Context, path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	asker    Asker
	ingestor Ingestor
	index    *vector.Index
	storage  storage.Store
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	snapshotPath string // when set, the index is snapshotted after each mutation

	watch         WatchService
	watchConfig   *config.Config
	configPath    string
	watchConfigMu sync.Mutex
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithSnapshot makes the server persist an index snapshot to path after every
// successful ingest or delete.
func WithSnapshot(path string) Option {
	return func(s *Server) { s.snapshotPath = path }
}

// WithWatch exposes the drop folder over the watch-directory endpoints.
// configPath and cfg, when set, persist directory changes back to the config file.
func WithWatch(svc WatchService, configPath string, cfg *config.Config) Option {
	return func(s *Server) {
		s.watch = svc
		s.configPath = configPath
		s.watchConfig = cfg
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	asker Asker,
	ing Ingestor,
	idx *vector.Index,
	store storage.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		asker:    asker,
		ingestor: ing,
		index:    idx,
		storage:  store,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/documents", s.handleIngestDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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

// persistSnapshot writes the index snapshot after a mutation. Failures are
// logged; the in-memory index stays authoritative.
func (s *Server) persistSnapshot() {
	if s.snapshotPath == "" {
		return
	}
	if err := s.index.Save(s.snapshotPath); err != nil {
		s.logger.Warn("snapshot save failed", zap.String("path", s.snapshotPath), zap.Error(err))
	}
}
