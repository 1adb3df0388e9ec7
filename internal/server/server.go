// Package server exposes the HTTP API and the live price WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/server/handler"
	"github.com/DanielNuud/reactive-my-stock-app/internal/server/middleware"
	"github.com/DanielNuud/reactive-my-stock-app/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Stocks *handler.StocksHandler
}

// Server is the HTTP + WebSocket API surface of the price service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS) and attaches the WebSocket gateway.
func NewServer(cfg Config, handlers Handlers, gateway *ws.Gateway, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Subscription management.
	mux.HandleFunc("POST /api/stocks/subscribe/{ticker}", handlers.Stocks.Subscribe)
	mux.HandleFunc("POST /api/stocks/unsubscribe/{ticker}", handlers.Stocks.Unsubscribe)

	// Price reads.
	mux.HandleFunc("GET /api/stocks/{ticker}/recent", handlers.Stocks.Recent)
	mux.HandleFunc("GET /api/stocks/{ticker}/latest", handlers.Stocks.Latest)

	// Live price stream.
	if gateway != nil {
		mux.HandleFunc("GET /ws/prices", gateway.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections outlive any request deadline
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
