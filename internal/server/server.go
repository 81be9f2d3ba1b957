package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/gosuda/fanout/internal/api/ws"
	"github.com/gosuda/fanout/internal/change"
	"github.com/gosuda/fanout/internal/config"
	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/metrics"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Broker      domain.Broker
	Broadcaster *change.Broadcaster
	// Members authorizes workspace topics for user tokens. May be nil.
	Members  domain.MembershipRepository
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	wsHub      *ws.Hub
	cfg        *config.Config
}

// New creates a Server with all routes wired. ctx bounds the background
// cleanup of the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hubOpts := []ws.Option{
		ws.WithMetrics(deps.Metrics),
		ws.WithOriginPatterns(cfg.Server.CORSOrigins...),
		ws.WithWriteTimeout(cfg.Realtime.WSWriteTimeout),
	}
	if deps.Members != nil {
		hubOpts = append(hubOpts, ws.WithMembership(deps.Members))
	}
	hub := ws.NewHub(deps.Broker, hubOpts...)

	s := &Server{
		router: router,
		wsHub:  hub,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	registerAPIRoutes(ctx, router, cfg, deps.Broadcaster)
	registerRealtimeRoutes(ctx, router, cfg, hub)
	registerOpsRoutes(router, gatherer)

	return s
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Hijacked WebSocket connections
// are not tracked by net/http and end when the broker closes their feeds.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
