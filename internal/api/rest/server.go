package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compilo/compilo-backend/internal/infrastructure/config"
)

// HealthChecker reports the readiness of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServerMetrics holds the request-level prometheus collectors the middleware
// feeds.
type ServerMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	health     HealthChecker
}

// NewServer assembles the middleware chain and route table around the
// handler. health may be nil; /readyz then only confirms the process is up.
func NewServer(cfg *config.Config, handler *Handler, logger *slog.Logger, metrics *ServerMetrics, health HealthChecker) *Server {
	s := &Server{cfg: cfg, logger: logger, health: health}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Tenant resolution applies to the API surface only; probes and metrics
	// stay unauthenticated.
	mux.Handle("/api/", Chain(handler.Routes(), organizationMiddleware))

	middlewares := []Middleware{
		requestIDMiddleware,
		tracingMiddleware,
		recoveryMiddleware,
		loggingMiddleware,
	}
	if metrics != nil {
		middlewares = append(middlewares, metricsMiddleware(metrics.Requests, metrics.Duration))
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 {
		middlewares = append(middlewares,
			rateLimitMiddleware(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.BurstSize))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      Chain(mux, middlewares...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start serves until the context is canceled, then drains connections within
// the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, s.cfg.Version)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
