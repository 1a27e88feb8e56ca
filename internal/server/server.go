// Package server exposes the HTTP and WebSocket API for the spread monitor.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/server/handler"
	"github.com/alanyoungcy/spreadwatch/internal/server/middleware"
	"github.com/alanyoungcy/spreadwatch/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Spreads *handler.SpreadHandler
	Ticks   *handler.TickHandler
	Pairs   *handler.PairHandler
	Stats   *handler.StatsHandler
}

// Server is the headless HTTP + WebSocket API for the spread monitor.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limiting, logging, CORS, auth) applied.
// limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Spread endpoints.
	mux.HandleFunc("GET /api/spreads", handlers.Spreads.ListSpreads)
	mux.HandleFunc("GET /api/spreads/{id}", handlers.Spreads.GetSpread)
	mux.HandleFunc("GET /api/alerts", handlers.Spreads.ListAlerts)

	// Tick log endpoints.
	mux.HandleFunc("GET /api/ticks", handlers.Ticks.ListTicks)
	mux.HandleFunc("POST /api/debug/price", handlers.Ticks.DebugPrice)

	// Pair configuration endpoints.
	mux.HandleFunc("GET /api/pairs", handlers.Pairs.ListPairs)
	mux.HandleFunc("POST /api/pairs/reload", handlers.Pairs.ReloadPairs)

	// Stats endpoints.
	mux.HandleFunc("GET /api/stats/cache", handlers.Stats.CacheStats)
	mux.HandleFunc("GET /api/stats/consumer", handlers.Stats.ConsumerStats)
	mux.HandleFunc("GET /api/ws/stats", handlers.Stats.WSStats)

	// WebSocket endpoints.
	if wsHub != nil {
		mux.HandleFunc("GET /ws/spreads", wsHub.HandleSpreads)
		mux.HandleFunc("GET /ws/ticks", wsHub.HandleTicks)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
