package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketintel/internal/config"
	"marketintel/internal/scenario"
	"marketintel/internal/store"
)

// Server runs the HTTP API for the dashboard.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a Server wired to the given store and scenario engine.
func NewServer(cfg config.HTTPConfig, classifierCfg config.ClassifierConfig, s *store.Client, sc *scenario.Engine, logger *slog.Logger) *Server {
	handlers := NewHandlers(s, sc, classifierCfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/graph-data", handlers.HandleGraphData)
	mux.HandleFunc("/api/scenario", handlers.HandleScenario)
	mux.HandleFunc("/api/scenarios", handlers.HandleScenarios)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{server: server, logger: logger.With("component", "api-server")}
}

// Start runs the HTTP server until it is stopped. Blocks; intended to be
// called from its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server within a bounded grace period.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
