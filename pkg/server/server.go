// Package server exposes hierarchy upload and clustering over HTTP.
//
// Hierarchies are parsed once on upload and kept in memory. A single scale
// can be clustered synchronously; clustering every sub-scale runs as a
// background job that can be polled or cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

const shutdownTimeout = 30 * time.Second

// Server serves the clustering API.
type Server struct {
	cfg         *clustering.Config
	logger      zerolog.Logger
	hierarchies *hierarchyStore
	jobs        *jobRunner
	handler     http.Handler
}

// New creates a server. Close must be called to stop background jobs.
func New(cfg *clustering.Config, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		hierarchies: newHierarchyStore(),
		jobs:        newJobRunner(cfg.MaxJobs(), cfg.JobTTL(), logger),
	}

	router := mux.NewRouter()
	s.setupRoutes(router)
	s.handler = s.corsHandler(router)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// AddHierarchy stores an already parsed hierarchy and returns its description.
func (s *Server) AddHierarchy(name string, h *hsne.Hierarchy) HierarchyInfo {
	return s.hierarchies.add(name, h)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ServerAddress(),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout(),
		WriteTimeout: s.cfg.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", srv.Addr).Msg("HTTP server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Close cancels all jobs and waits for them to stop.
func (s *Server) Close() {
	s.jobs.close()
}
