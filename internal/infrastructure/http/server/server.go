package server

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/alexander-mattos/baileys/pkg/httputil"
)

// Server represents fasthttp server
type Server struct {
	server     *fasthttp.Server
	Router     *router.Router
	middleware []httputil.Middleware
	addr       string
	logger     zerolog.Logger
}

// NewServer creates a new fasthttp server
func NewServer(name, port string, logger zerolog.Logger) *Server {
	r := router.New()

	srv := &fasthttp.Server{
		Name:        name,
		ReadTimeout: 5 * time.Second,
		// SSE subscribers keep the response open, so writes are not bounded here
		IdleTimeout:        120 * time.Second,
		MaxRequestBodySize: 4 * 1024 * 1024,
	}

	return &Server{
		server: srv,
		Router: r,
		addr:   fmt.Sprintf(":%s", port),
		logger: logger.With().Str("component", "http_server").Logger(),
	}
}

// Use registers middleware applied to every route, outermost first
func (s *Server) Use(m ...httputil.Middleware) {
	s.middleware = append(s.middleware, m...)
}

// RegisterMetrics registers Prometheus metrics endpoint
func (s *Server) RegisterMetrics() {
	prometheusHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s.Router.GET("/metrics", prometheusHandler)
}

// Handler returns the router wrapped in the registered middleware
func (s *Server) Handler() fasthttp.RequestHandler {
	handler := s.Router.Handler
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler
}

// Start starts the HTTP server in a separate goroutine
func (s *Server) Start() error {
	s.server.Handler = s.Handler()

	s.logger.Info().
		Str("addr", s.addr).
		Msg("Starting HTTP server")

	go func() {
		if err := s.server.ListenAndServe(s.addr); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}
