// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/engine"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine     *engine.Engine
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	startTime  time.Time
}

// NewServer wires the routes and builds the underlying http.Server.
func NewServer(eng *engine.Engine, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:    eng,
		logger:    logger,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/insights", s.handleInsights)
		r.Get("/trends", s.handleTrends)
		r.Get("/trends/{metric}", s.handleTrendDetail)
		r.Post("/datapoints", s.handleAddDataPoint)
		r.Post("/cache/cleanup", s.handleCacheCleanup)
		r.Post("/sync", s.handleSync)
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the listener fails or the
// server is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
