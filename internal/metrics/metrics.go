// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package metrics registers the Prometheus collectors for PulseTrader.
//
// Collectors are package-level and registered with the default registry on
// import, so any package can record without wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert evaluation
	AlertScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_scans_total",
			Help: "Total number of alert scans by outcome",
		},
		[]string{"outcome"}, // "completed", "overlap", "cancelled", "error"
	)

	AlertScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_scan_duration_seconds",
			Help:    "Duration of a full alert scan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	AlertRulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_rules_evaluated_total",
			Help: "Total number of watch rules evaluated against a fresh quote",
		},
	)

	AlertRulesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_rules_skipped_total",
			Help: "Total number of watch rules skipped during a scan",
		},
		[]string{"reason"}, // "quote_not_found", "quote_unavailable", "quote_timeout", "quote_rate_limited", "vanished", "changed", "store_error"
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Total number of watch rules that crossed their threshold",
		},
		[]string{"direction"},
	)

	AlertLastScan = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_last_scan_timestamp_seconds",
			Help: "Unix time of the last completed alert scan",
		},
	)

	// Quote source
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_upstream_requests_total",
			Help: "Total number of upstream quote provider requests",
		},
		[]string{"endpoint", "result"}, // result: "success", "not_found", "unavailable", "timeout", "rate_limited"
	)

	QuoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_upstream_request_duration_seconds",
			Help:    "Upstream quote provider request duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	QuoteCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quote_cache_hits_total",
			Help: "Total number of quote lookups served from cache",
		},
	)

	QuoteCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quote_cache_misses_total",
			Help: "Total number of quote lookups that went upstream",
		},
	)

	// Dispatch
	NotificationsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_stored_total",
			Help: "Total number of notifications appended to user logs",
		},
		[]string{"severity"},
	)

	NotificationsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_evicted_total",
			Help: "Total number of notifications dropped by the retention cap",
		},
	)

	DispatchChannelResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_channel_results_total",
			Help: "Delivery attempts per channel by result",
		},
		[]string{"channel", "result"}, // channel: "email", "live"; result: "sent", "queued", "dropped", "skipped", "failed"
	)

	EmailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_queue_depth",
			Help: "Emails waiting for a mailer worker",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	WSAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_authenticated_connections",
			Help: "Current number of WebSocket connections bound to a user",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages queued to clients",
		},
		[]string{"type"},
	)

	WSAuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_auth_attempts_total",
			Help: "WebSocket credential messages by result",
		},
		[]string{"result"},
	)

	WSDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_dropped_clients_total",
			Help: "Clients disconnected because their send queue was full",
		},
	)

	// Authorization
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by result",
		},
		[]string{"result"}, // "allowed", "denied", "error"
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordScan records the outcome of one alert scan.
func RecordScan(outcome string, duration time.Duration) {
	AlertScansTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		AlertScanDuration.Observe(duration.Seconds())
		AlertLastScan.Set(float64(time.Now().Unix()))
	}
}

// RecordQuoteRequest records one upstream provider call.
func RecordQuoteRequest(endpoint, result string, duration time.Duration) {
	QuoteRequests.WithLabelValues(endpoint, result).Inc()
	QuoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordDispatch records one delivery attempt on a channel.
func RecordDispatch(channel, result string) {
	DispatchChannelResults.WithLabelValues(channel, result).Inc()
}
