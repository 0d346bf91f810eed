// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/quote"
)

// maxSearchQuery bounds the q parameter forwarded upstream.
const maxSearchQuery = 64

// respondQuoteError maps quote adapter failures to HTTP responses.
func respondQuoteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quote.ErrNotFound), errors.Is(err, quote.ErrInvalidSymbol):
		respondError(w, http.StatusNotFound, CodeNotFound, "Stock not found", nil)
	case errors.Is(err, quote.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, CodeRateLimit, "Market data rate limit reached, try again shortly", nil)
	default:
		logging.Ctx(r.Context()).Warn().Err(err).Str("reason", quote.Reason(err)).Msg("Market data request failed")
		respondError(w, http.StatusServiceUnavailable, CodeUpstream, "Failed to fetch stock data", nil)
	}
}

// SearchStocks handles GET /api/stocks/search?q=.
func (h *Handler) SearchStocks(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, CodeValidation, "Search query required", nil)
		return
	}
	if len(q) > maxSearchQuery {
		respondError(w, http.StatusBadRequest, CodeValidation, "Search query too long", nil)
		return
	}

	matches, err := h.deps.Market.Search(r.Context(), q)
	if err != nil {
		respondQuoteError(w, r, err)
		return
	}
	if matches == nil {
		matches = []models.SymbolMatch{}
	}
	respondData(w, http.StatusOK, matches)
}

// StockDetail handles GET /api/stocks/{symbol}. News is best effort; a news
// failure still returns the quote.
func (h *Handler) StockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	q, err := h.deps.Market.GetQuote(r.Context(), symbol)
	if err != nil {
		respondQuoteError(w, r, err)
		return
	}

	news, err := h.deps.Market.News(r.Context(), symbol)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("symbol", symbol).Msg("News unavailable")
	}
	if news == nil {
		news = []models.NewsItem{}
	}
	respondData(w, http.StatusOK, models.StockDetail{Stock: q, News: news})
}

// StockPrice handles GET /api/stocks/{symbol}/price.
func (h *Handler) StockPrice(w http.ResponseWriter, r *http.Request) {
	q, err := h.deps.Market.GetQuote(r.Context(), models.NormalizeSymbol(chi.URLParam(r, "symbol")))
	if err != nil {
		respondQuoteError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, q)
}
