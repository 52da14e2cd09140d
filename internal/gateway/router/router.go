// Package router assembles the gateway's HTTP surface: the route table
// plus the middleware stack every request passes through.
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/middleware"
)

// New builds the gateway handler: every route, wrapped in the shared
// middleware stack.
//
// Route table:
//
//	POST   /api/v1/patterns                 → ingestion service (proxy)
//	GET    /api/v1/patterns                 → list patterns     (direct DB)
//	GET    /api/v1/patterns/{id}            → get pattern       (direct DB)
//	POST   /api/v1/scan                     → scanner service   (proxy)
//	GET    /api/v1/analytics                → analytics service (proxy)
//	GET    /api/v1/analytics/history        → analytics service (proxy)
//	GET    /api/v1/cache/stats              → scanner service   (proxy)
//	POST   /api/v1/cache/invalidate         → scanner service   (proxy)
//	POST   /api/v1/admin/keys               → create API key    (direct DB)
//	GET    /api/v1/admin/keys               → list API keys     (direct DB)
//	GET    /api/v1/admin/registry/stats     → registry service  (RPC)
//	POST   /api/v1/admin/registry/snapshot  → registry service  (RPC)
//	GET    /health                          → gateway health
//
// Middleware, outermost first: RequestID, CORS, Auth, RateLimit,
// Metrics, then the mux. Metrics sits directly on the mux so requests
// are labelled by the route pattern that matched; requests rejected by
// Auth or RateLimit never reach it and show up in the gateway logs
// instead.
func New(h *gwhandler.Handler, validator gwmw.KeyValidator, limiter *ratelimit.Limiter, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Auth lets /health through without credentials.
	mux.HandleFunc("GET /health", h.Health)

	// Pattern API
	mux.HandleFunc("POST /api/v1/patterns", h.ProxyRegister)
	mux.HandleFunc("GET /api/v1/patterns", h.ListPatterns)
	mux.HandleFunc("GET /api/v1/patterns/{id}", h.GetPattern)

	// Scan API
	mux.HandleFunc("POST /api/v1/scan", h.ProxyScan)

	// Analytics API
	mux.HandleFunc("GET /api/v1/analytics", h.ProxyAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/history", h.ProxyAnalytics)

	// Cache API
	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxyCacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.ProxyCacheInvalidate)

	// Admin API
	mux.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
	mux.HandleFunc("GET /api/v1/admin/registry/stats", h.RegistryStats)
	mux.HandleFunc("POST /api/v1/admin/registry/snapshot", h.RegistrySnapshot)

	// Wrapping runs inside-out, so the last wrap handles the request
	// first.
	var chain http.Handler = mux
	chain = pkgmw.Metrics(m)(chain)
	chain = gwmw.RateLimit(limiter)(chain)
	chain = gwmw.Auth(validator)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
