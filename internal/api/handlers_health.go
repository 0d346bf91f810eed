// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"net/http"

	"github.com/tomtom215/pulsetrader/internal/logging"
)

// Health handles GET /health. It reports liveness only.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebSocket handles GET /ws. The connection starts unauthenticated; the
// client authenticates with an auth message over the socket.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, CodeInternal, "Live channel is disabled", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if _, err := h.deps.Hub.Attach(conn); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket rejected: hub closed")
		_ = conn.Close()
	}
}

// checkWebSocketOrigin allows requests without an Origin header (non-browser
// clients authenticate over the socket anyway) and browser requests from a
// configured origin.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin || h.origins[origin] {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
