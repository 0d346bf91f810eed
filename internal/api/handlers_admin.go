// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/pulsetrader/internal/alert"
	"github.com/tomtom215/pulsetrader/internal/logging"
)

type adminStats struct {
	Uptime          string            `json:"uptime"`
	WSClients       int               `json:"wsClients"`
	WSAuthenticated int               `json:"wsAuthenticated"`
	ScanRunning     bool              `json:"scanRunning"`
	LastScan        *alert.ScanResult `json:"lastScan,omitempty"`
}

// TriggerScan handles POST /api/admin/scan. The scan runs on the request
// context, so a client that disconnects cancels the remaining rules.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scanner == nil {
		respondError(w, http.StatusServiceUnavailable, CodeInternal, "Alert scanning is disabled", nil)
		return
	}

	res, err := h.deps.Scanner.Scan(r.Context())
	if errors.Is(err, alert.ErrScanInProgress) {
		respondError(w, http.StatusConflict, CodeConflict, "A scan is already in progress", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Int("fired", res.Fired).Msg("Manual alert scan completed")
	respondData(w, http.StatusOK, res)
}

// Stats handles GET /api/admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	stats := adminStats{Uptime: time.Since(h.started).Round(time.Second).String()}
	if h.deps.Hub != nil {
		stats.WSClients = h.deps.Hub.GetClientCount()
		stats.WSAuthenticated = h.deps.Hub.AuthenticatedCount()
	}
	if h.deps.Scanner != nil {
		stats.ScanRunning = h.deps.Scanner.Running()
		if last, ok := h.deps.Scanner.LastResult(); ok {
			stats.LastScan = &last
		}
	}
	respondData(w, http.StatusOK, stats)
}
