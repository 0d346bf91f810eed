// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package authz

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// CodeAuthorization is the error code written on a denied request.
const CodeAuthorization = "AUTHORIZATION_ERROR"

// Middleware enforces the policy for authenticated requests. It must run
// after auth.Middleware.Authenticate.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// AuthorizeRequest authorizes the caller's role against the request path,
// with the action derived from the HTTP method.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusForbidden, "Forbidden: no authentication context")
			return
		}

		allowed, err := m.enforcer.Enforce(claims.Role, r.URL.Path, methodToAction(r.Method))
		if err != nil {
			metrics.AuthzDecisions.WithLabelValues("error").Inc()
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !allowed {
			metrics.AuthzDecisions.WithLabelValues("denied").Inc()
			logging.Ctx(r.Context()).Warn().
				Str("role", claims.Role).
				Str("path", r.URL.Path).
				Msg("Request denied")
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}

		metrics.AuthzDecisions.WithLabelValues("allowed").Inc()
		next.ServeHTTP(w, r)
	})
}

// methodToAction maps HTTP methods to policy actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may be gone
	json.NewEncoder(w).Encode(models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: CodeAuthorization, Message: message},
	})
}
