package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/gosuda/fanout/internal/api/v1"
	"github.com/gosuda/fanout/internal/api/ws"
	"github.com/gosuda/fanout/internal/change"
	"github.com/gosuda/fanout/internal/config"
	"github.com/gosuda/fanout/internal/server/middleware"
)

// registerAPIRoutes mounts the service-only ingress API on /api/v1.
func registerAPIRoutes(ctx context.Context, router chi.Router, cfg *config.Config, b *change.Broadcaster) {
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		r.Use(middleware.RequireService())
		r.Use(middleware.RateLimit(ctx, cfg.Realtime.IngressRatePerSec, cfg.Realtime.IngressBurst))

		apiConfig := huma.DefaultConfig("Fanout API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)

		v1.RegisterChangeRoutes(api, b)
		v1.RegisterCacheRoutes(api, b.Resolver())
	})
}

func registerRealtimeRoutes(ctx context.Context, router chi.Router, cfg *config.Config, hub *ws.Hub) {
	router.With(
		middleware.RateLimitByIP(ctx, cfg.Realtime.WSRatePerSec, cfg.Realtime.WSBurst),
		middleware.Auth(cfg.JWT.Secret),
	).Get("/realtime", hub.ServeRealtime)
}

func registerOpsRoutes(router chi.Router, gatherer prometheus.Gatherer) {
	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
