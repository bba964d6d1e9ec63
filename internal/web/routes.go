package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
)

const matchTimeout = 10 * time.Minute

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Configuration and statistics
		r.Get("/config", s.config.Get)
		r.Get("/stats", s.stats.Get)
		r.Get("/presets", s.group.Presets)

		// Grouping runs (long-running operations)
		r.Post("/runs", s.group.Start)
		r.Get("/runs", s.group.List)
		r.Get("/runs/{runId}", s.group.Status)
		r.Get("/runs/{runId}/events", s.group.Events)
		r.Delete("/runs/{runId}", s.group.Delete)

		// One query image against a folder; synchronous, bounded by a timeout
		r.With(chiMiddleware.Timeout(matchTimeout)).Post("/match", s.group.Match)
	})
}
