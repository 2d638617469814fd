// Package api exposes the answer pipeline over HTTP.
//
// Endpoints:
//
//	POST /api/v1/query             →  run the pipeline for one query
//	POST /api/v1/citations/resolve →  presign a cited document
//	GET  /health                   →  liveness probe
//	GET  /ready                    →  readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - query.go: query and citation-resolve handlers
//   - health.go: health check endpoints
//   - middleware.go: recovery, request id, logging
//   - ratelimit.go: per-client token bucket
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/orchestrator"
	"github.com/ragline/ragline/internal/resolve"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because generation can take a while.
	WriteTimeout = 120 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// AnswerService runs the pipeline for one query. *orchestrator.Orchestrator
// satisfies it.
type AnswerService interface {
	Answer(ctx context.Context, q orchestrator.Query) (orchestrator.Answer, error)
}

// CitationResolver presigns cited documents. *resolve.Resolver satisfies it.
type CitationResolver interface {
	Resolve(ctx context.Context, p evidence.Provenance) (resolve.Resolution, error)
}

// Server is the HTTP front of the pipeline.
type Server struct {
	mux    *http.ServeMux
	limit  *clientLimiter
	logger log.Logger
}

// Config tunes the server.
type Config struct {
	RatePerSecond float64 // per-client sustained request rate, 0 disables limiting
	RateBurst     int
	TrustProxy    bool // trust X-Forwarded-For for client identity
}

// NewServer creates a server with all routes registered. resolver may be
// nil when no document store is configured; the resolve endpoint then
// reports unavailability.
func NewServer(svc AnswerService, resolver CitationResolver, pool *pgxpool.Pool, cfg Config, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{mux: mux, logger: logger}

	if cfg.RatePerSecond > 0 {
		s.limit = newClientLimiter(cfg.RatePerSecond, cfg.RateBurst, cfg.TrustProxy)
	}

	qh := newQueryHandler(svc, resolver, logger)
	hh := newHealthHandler(pool, logger)
	qh.registerRoutes(mux)
	hh.registerRoutes(mux)

	return s
}

// Handler returns the mux with middleware applied.
// Order: recovery → request id → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
	}
	if s.limit != nil {
		middlewares = append(middlewares, s.limit.middleware)
	}
	return chain(s.mux, middlewares...)
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// chain applies middleware in order: first middleware wraps outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
