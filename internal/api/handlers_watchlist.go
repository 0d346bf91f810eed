// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/dispatch"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/watchlist"
)

type addWatchRequest struct {
	Symbol      string  `json:"symbol" validate:"required,ticker"`
	TargetPrice float64 `json:"targetPrice" validate:"gt=0"`
	AlertType   string  `json:"alertType" validate:"omitempty,oneof=above below"`
}

type updateWatchRequest struct {
	TargetPrice float64 `json:"targetPrice" validate:"gt=0"`
	AlertType   string  `json:"alertType" validate:"omitempty,oneof=above below"`
}

type addWatchResponse struct {
	Message string            `json:"message"`
	Rule    *models.WatchRule `json:"rule"`
	Stock   *models.Quote     `json:"stock"`
}

// respondWatchlistError maps watchlist service errors.
func respondWatchlistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, watchlist.ErrInvalidSymbol):
		respondError(w, http.StatusBadRequest, CodeInvalidSymbol, "Invalid stock symbol", nil)
	case errors.Is(err, watchlist.ErrDuplicate):
		respondError(w, http.StatusBadRequest, CodeDuplicate, "Stock already in watchlist", nil)
	case errors.Is(err, watchlist.ErrInvalidTarget), errors.Is(err, watchlist.ErrInvalidDirection):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, watchlist.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "Stock not in watchlist", nil)
	case errors.Is(err, watchlist.ErrQuoteUnavailable):
		respondError(w, http.StatusServiceUnavailable, CodeUpstream, "Price service unavailable, try again later", nil)
	default:
		respondInternal(w, r, err)
	}
}

// notify records an account notification for a watchlist change. Failure
// to record it does not undo the change.
func (h *Handler) notify(r *http.Request, userID, symbol, message string, severity models.Severity) {
	if h.deps.Notifier == nil {
		return
	}
	_, err := h.deps.Notifier.Dispatch(r.Context(), userID, message, severity,
		dispatch.WithSymbol(symbol), dispatch.WithoutEmail())
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("symbol", symbol).Msg("Failed to record watchlist notification")
	}
}

// ListWatchlist handles GET /api/watchlist.
func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	items, err := h.deps.Watchlist.List(r.Context(), claims.UserID)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if items == nil {
		items = []models.WatchlistItem{}
	}
	count := len(items)
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     items,
		Metadata: models.Metadata{Timestamp: timeNow(), Count: &count},
	})
}

// AddToWatchlist handles POST /api/watchlist.
func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req addWatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	rule, q, err := h.deps.Watchlist.Add(r.Context(), claims.UserID, watchlist.AddRequest{
		Symbol:      req.Symbol,
		TargetPrice: req.TargetPrice,
		Direction:   models.Direction(req.AlertType),
	})
	if err != nil {
		respondWatchlistError(w, r, err)
		return
	}

	h.notify(r, claims.UserID, rule.Symbol,
		fmt.Sprintf("Added %s to watchlist with target price $%.2f", rule.Symbol, rule.TargetPrice),
		models.SeverityPositive)
	respondData(w, http.StatusCreated, addWatchResponse{
		Message: "Stock added to watchlist",
		Rule:    rule,
		Stock:   q,
	})
}

// UpdateWatch handles PUT /api/watchlist/{symbol}. It replaces target and
// direction and re-arms a fired rule.
func (h *Handler) UpdateWatch(w http.ResponseWriter, r *http.Request) {
	var req updateWatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	rule, err := h.deps.Watchlist.Update(r.Context(), claims.UserID, symbol, watchlist.UpdateRequest{
		TargetPrice: req.TargetPrice,
		Direction:   models.Direction(req.AlertType),
	})
	if err != nil {
		respondWatchlistError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, rule)
}

// RemoveFromWatchlist handles DELETE /api/watchlist/{symbol}.
func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err := h.deps.Watchlist.Remove(r.Context(), claims.UserID, symbol); err != nil {
		respondWatchlistError(w, r, err)
		return
	}

	h.notify(r, claims.UserID, symbol, fmt.Sprintf("Removed %s from watchlist", symbol), models.SeverityWarning)
	respondData(w, http.StatusOK, map[string]string{"message": "Stock removed from watchlist"})
}
