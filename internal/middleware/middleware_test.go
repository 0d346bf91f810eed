// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"generated when absent", "", false},
		{"upstream id kept", "proxy-abc.123", true},
		{"oversized id replaced", strings.Repeat("a", 65), false},
		{"unsafe id replaced", "abc\r\nX-Evil: 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r)
				if logging.CorrelationIDFromContext(r.Context()) == "" {
					t.Error("correlation id missing")
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q != context %q", got, seen)
			}
			if tt.wantSame {
				if got != tt.incoming {
					t.Errorf("id = %q, want %q", got, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("id %q is not a uuid", got)
			}
		})
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/stocks/{symbol}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/api/implicit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	counter := func(endpoint, status string) float64 {
		return testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, endpoint, status))
	}
	beforeTeapot := counter("/api/stocks/{symbol}", "418")
	beforeOK := counter("/api/implicit", "200")
	beforeUnmatched := counter(unmatchedRoute, "404")

	for _, path := range []string{"/api/stocks/AAPL", "/api/stocks/MSFT", "/api/implicit", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if d := counter("/api/stocks/{symbol}", "418") - beforeTeapot; d != 2 {
		t.Errorf("pattern counter delta = %v, want 2", d)
	}
	if d := counter("/api/implicit", "200") - beforeOK; d != 1 {
		t.Errorf("implicit 200 delta = %v, want 1", d)
	}
	if d := counter(unmatchedRoute, "404") - beforeUnmatched; d != 1 {
		t.Errorf("unmatched delta = %v, want 1", d)
	}
	if v := testutil.ToFloat64(metrics.APIActiveRequests); v != 0 {
		t.Errorf("active requests = %v after completion", v)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { logging.Init(logging.Config{Level: "disabled", Output: io.Discard}) })

	h := RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/watchlist", nil))

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"status":400`, `"path":"/api/watchlist"`, `"bytes":3`, `"request_id"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}
