// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pulsetrader/internal/middleware"
)

// RouterConfig configures the middleware chain.
type RouterConfig struct {
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP across /api.
	// Zero disables the limiter.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// AuthRateLimit applies to register and login per IP per minute.
	// Defaults to 10; negative disables it.
	AuthRateLimit int
}

// Authenticator verifies the bearer token. *auth.Middleware satisfies it.
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

// Authorizer checks the caller's role against the route.
// *authz.Middleware satisfies it.
type Authorizer interface {
	AuthorizeRequest(next http.Handler) http.Handler
}

// NewRouter builds the chi router.
//
//	/health, /metrics, /ws         public
//	/api/auth/{register,login}     public, rate limited per IP
//	/api/...                       bearer token, then casbin policy
func NewRouter(h *Handler, authn Authenticator, authzr Authorizer, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, CodeNotFound, "Method not allowed", nil)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited)))
		}

		r.Group(func(r chi.Router) {
			if limit := authLimit(cfg.AuthRateLimit); limit > 0 {
				r.Use(httprate.Limit(limit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(rateLimited)))
			}
			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)
			r.Use(authzr.AuthorizeRequest)

			r.Get("/users/me", h.Me)
			r.Put("/users/me/settings", h.UpdateSettings)

			r.Get("/stocks/search", h.SearchStocks)
			r.Get("/stocks/{symbol}", h.StockDetail)
			r.Get("/stocks/{symbol}/price", h.StockPrice)

			r.Get("/watchlist", h.ListWatchlist)
			r.Post("/watchlist", h.AddToWatchlist)
			r.Put("/watchlist/{symbol}", h.UpdateWatch)
			r.Delete("/watchlist/{symbol}", h.RemoveFromWatchlist)

			r.Get("/notifications", h.ListNotifications)
			r.Put("/notifications/{id}/read", h.MarkNotificationRead)
			r.Delete("/notifications/{id}", h.DeleteNotification)

			r.Post("/admin/scan", h.TriggerScan)
			r.Get("/admin/stats", h.Stats)
		})
	})

	return r
}

func authLimit(n int) int {
	if n == 0 {
		return 10
	}
	return n
}

func rateLimited(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusTooManyRequests, CodeRateLimit, "Too many requests, please try again later", nil)
}

// securityHeaders sets the response headers every API response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
