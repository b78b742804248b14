// Package http provides the HTTP admission API for the guard.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the inbound adapter exposing the guard over HTTP.
//
// Routes:
//
//	POST /v1/check  - admission check
//	GET  /healthz   - liveness probe
//	GET  /metrics   - Prometheus metrics
type Server struct {
	admitter     Admitter
	server       *http.Server
	addr         string
	apiRateLimit int
	logger       *slog.Logger
	metrics      *Metrics
	keyCount     func() int // reports active rate limit keys for the gauge
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger for the HTTP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAPIRateLimit bounds requests per IP per minute on the API surface.
// Zero disables the middleware.
func WithAPIRateLimit(requestsPerMinute int) Option {
	return func(s *Server) {
		s.apiRateLimit = requestsPerMinute
	}
}

// WithKeyCounter wires a callback reporting the number of active rate
// limit keys, exported as the statguard_rate_limit_keys gauge.
func WithKeyCounter(fn func() int) Option {
	return func(s *Server) {
		s.keyCount = fn
	}
}

// NewServer creates an HTTP server wrapping the given admitter.
func NewServer(admitter Admitter, opts ...Option) *Server {
	s := &Server{
		admitter: admitter,
		addr:     "127.0.0.1:8080",
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Metrics returns the metrics struct, available after Start.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(reg)

	// Middleware chain (outermost first):
	// 1. MetricsMiddleware - record duration and status
	// 2. RequestID - extract/generate request ID and enrich logger
	// 3. RealIP - extract client IP from X-Forwarded-For
	// 4. APIRateLimit - per-IP bound on the API surface
	// 5. Handler - admission check
	check := checkHandler(s.admitter, s.metrics)
	if s.apiRateLimit > 0 {
		check = APIRateLimitMiddleware(s.apiRateLimit, time.Minute)(check)
	}
	check = RealIPMiddleware(check)
	check = RequestIDMiddleware(s.logger)(check)
	check = MetricsMiddleware(s.metrics)(check)

	mux := http.NewServeMux()
	mux.Handle("/v1/check", check)
	mux.Handle("/healthz", healthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	// Sample the key gauge periodically while serving.
	gaugeCtx, gaugeCancel := context.WithCancel(ctx)
	defer gaugeCancel()
	if s.keyCount != nil {
		go s.sampleKeyGauge(gaugeCtx)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// sampleKeyGauge refreshes the rate_limit_keys gauge every 10 seconds.
func (s *Server) sampleKeyGauge(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.RateLimitKeys.Set(float64(s.keyCount()))
		}
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
