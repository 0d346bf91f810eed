// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package models

import "time"

// Quote is a point-in-time price snapshot. It is never persisted.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        float64   `json:"volume"`
	AsOf          time.Time `json:"lastUpdate"`
}

// SymbolMatch is one result of a symbol search.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
}

// NewsItem is a company news headline.
type NewsItem struct {
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	Source   string    `json:"source"`
	URL      string    `json:"url"`
	Image    string    `json:"image,omitempty"`
	Datetime time.Time `json:"datetime"`
}

// StockDetail combines a quote with recent news.
type StockDetail struct {
	Stock *Quote     `json:"stock"`
	News  []NewsItem `json:"news"`
}
