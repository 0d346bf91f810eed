// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package middleware holds the HTTP middleware PulseTrader adds on top of
// chi's own: request IDs wired into the logging context, Prometheus request
// instrumentation keyed by route pattern, and an access log.
//
// All middleware has the func(http.Handler) http.Handler shape so it can be
// passed straight to chi.Router.Use:
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	r.Use(middleware.PrometheusMetrics)
//	r.Use(middleware.AccessLog)
package middleware
