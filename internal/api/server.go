// Package api serves a read-only HTTP view of resolvable MD packages and of
// the runs and parameterisation jobs in the ledger.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/ledger"
)

// Ledger is the read side of the run ledger.
type Ledger interface {
	GetRun(ctx context.Context, id string) (*ledger.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*ledger.Run, error)
	ListJobs(ctx context.Context, limit int) ([]*ledger.Job, error)
}

// PackageReporter describes which MD packages can be resolved.
type PackageReporter interface {
	Report() []engine.PackageStatus
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token. Empty disables authentication.
	APIKey string
}

// Server is the HTTP status API.
type Server struct {
	config    Config
	ledger    Ledger
	packages  PackageReporter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a server. Call Start to serve or Handler to mount it elsewhere.
func New(config Config, ledger Ledger, packages PackageReporter, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		ledger:    ledger,
		packages:  packages,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/packages", s.handleListPackages)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/jobs", s.handleListJobs)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
