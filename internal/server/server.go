// Package server wires the store, blob backends, OCR registry, search
// index, and orchestrator into one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/pipeline"
	"github.com/broadsheet-archive/broadsheet/internal/providers"
	"github.com/broadsheet-archive/broadsheet/internal/server/endpoints"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// Server is the main broadsheet HTTP server. It owns the SQLite store, the
// blob backends, and the pipeline orchestrator.
type Server struct {
	httpServer *http.Server
	st         *store.Store
	blobs      *blob.Store
	registry   *providers.Registry
	backend    index.Backend
	orch       *pipeline.Orchestrator
	configMgr  *config.Manager
	logger     *slog.Logger
	dataDir    string

	// services holds all core services for context enrichment
	services *svcctx.Services

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DataDir is the root directory for the database and blob storage
	DataDir string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToOCRRegistryConfig())

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToOCRRegistryConfig())
			cfg.Logger.Info("OCR provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.dataDir = cfg.DataDir

	return s, nil
}

// Start opens storage, builds the pipeline, and serves HTTP. It blocks
// until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	st, err := store.Open(filepath.Join(s.dataDir, "broadsheet.db"))
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.st = st

	blobs, err := blob.New(s.dataDir)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	s.blobs = blobs

	searchCfg := config.DefaultConfig().Search
	if s.configMgr != nil {
		searchCfg = s.configMgr.Get().Search
	}
	backend, err := index.NewFTSBackend(st.DB(), searchCfg)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to initialize search index: %w", err)
	}
	s.backend = backend

	cfgFn := func() *config.Config {
		if s.configMgr != nil {
			return s.configMgr.Get()
		}
		return config.DefaultConfig()
	}
	s.orch = pipeline.New(st, blobs, s.registry, backend, cfgFn, s.logger)

	s.services = &svcctx.Services{
		Store:        s.st,
		Blobs:        s.blobs,
		Registry:     s.registry,
		Orchestrator: s.orch,
		Index:        s.backend,
		Config:       s.configMgr,
		Logger:       s.logger,
	}

	if s.configMgr != nil {
		s.configMgr.WatchConfig()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and storage.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	if s.st != nil {
		if err := s.st.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Store returns the store. Nil before Start.
func (s *Server) Store() *store.Store {
	return s.st
}

// Orchestrator returns the pipeline orchestrator. Nil before Start.
func (s *Server) Orchestrator() *pipeline.Orchestrator {
	return s.orch
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures storage and the orchestrator are
// ready. Returns 503 Service Unavailable before Start completes setup.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.st == nil || s.orch == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
