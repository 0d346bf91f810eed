// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package quote

import (
	"errors"
	"fmt"
)

// Tagged failures. Callers branch with errors.Is; none of them is fatal to an
// alert scan.
var (
	// ErrInvalidSymbol is returned for an empty ticker.
	ErrInvalidSymbol = errors.New("quote: invalid symbol")

	// ErrNotFound means the provider does not know the symbol.
	ErrNotFound = errors.New("quote: symbol not found")

	// ErrUpstreamUnavailable covers transport failures, 5xx responses,
	// undecodable payloads, and an open circuit breaker.
	ErrUpstreamUnavailable = errors.New("quote: upstream unavailable")

	// ErrRateLimited means the provider answered 429 or the local limiter
	// could not grant a request before the call deadline.
	ErrRateLimited = errors.New("quote: rate limited")

	// ErrTimeout is a per-call deadline expiry. It also matches
	// ErrUpstreamUnavailable.
	ErrTimeout = fmt.Errorf("quote: upstream timeout: %w", ErrUpstreamUnavailable)
)

// Reason returns a short label for err, used for metrics and log fields.
func Reason(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	default:
		return "unavailable"
	}
}
