// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package models

import "time"

// Severity tags a notification for display.
type Severity string

const (
	SeverityPositive Severity = "positive"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Notification is one entry in a user's notification log. Only Read is
// mutable after creation.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"timestamp"`
	Read      bool      `json:"read"`

	// Symbol is set for price alerts and drives the email subject line.
	Symbol string `json:"symbol,omitempty"`
}
