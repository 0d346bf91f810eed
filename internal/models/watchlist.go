// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package models holds the data types shared between the stores, the alert
// evaluator, the dispatcher, the live channel, and the HTTP API. JSON tags
// follow the camelCase wire format the web client consumes.
package models

import (
	"strings"
	"time"
)

// Direction selects the comparison a watch rule fires on.
type Direction string

const (
	// DirectionAbove fires when price >= target.
	DirectionAbove Direction = "above"
	// DirectionBelow fires when price <= target.
	DirectionBelow Direction = "below"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// Crossed reports whether price satisfies the rule predicate for target.
func (d Direction) Crossed(price, target float64) bool {
	switch d {
	case DirectionAbove:
		return price >= target
	case DirectionBelow:
		return price <= target
	default:
		return false
	}
}

// WatchRule is one (user, symbol) alert. A user has at most one rule per symbol.
type WatchRule struct {
	UserID      string     `json:"userId"`
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name"`
	TargetPrice float64    `json:"targetPrice"`
	Direction   Direction  `json:"alertType"`
	Active      bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"addedAt"`
	FiredAt     *time.Time `json:"firedAt,omitempty"`
}

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// WatchlistItem is a rule enriched with the latest quote for display.
type WatchlistItem struct {
	WatchRule
	CurrentPrice  float64    `json:"currentPrice"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"changePercent"`
	LastUpdate    *time.Time `json:"lastUpdate,omitempty"`
	Error         string     `json:"error,omitempty"`
}
