package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
	"github.com/kozaktomas/photo-dedup/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
	runs       *handlers.RunManager
	group      *handlers.GroupHandler
	config     *handlers.ConfigHandler
	stats      *handlers.StatsHandler
	logger     *slog.Logger
}

// Backends are the components the API serves.
type Backends struct {
	Runner   handlers.Runner
	Presets  config.Presets
	Features database.FeatureStore // optional, reported by /stats
	Texts    database.TextStore    // optional, reported by /stats
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, port int, host string, backends Backends, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	// Runs are kept in memory only
	runs := handlers.NewRunManager(0)

	s := &Server{
		cfg:    cfg,
		router: r,
		runs:   runs,
		group:  handlers.NewGroupHandler(backends.Runner, runs, backends.Presets, cfg.Web.ImageRoot, logger),
		config: handlers.NewConfigHandler(cfg),
		stats:  handlers.NewStatsHandler(backends.Features, backends.Texts, runs, logger),
		logger: logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(middleware.ParseAllowedOrigins(cfg.Web.AllowedOrigins)))

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open for the whole run
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels active runs
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	for _, run := range s.runs.ListRuns() {
		if !run.Status.Terminal() {
			s.runs.DeleteRun(run.ID)
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
