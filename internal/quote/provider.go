// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package quote

import (
	"context"
	"time"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// Provider is an upstream market data source. Implementations return the
// tagged errors from this package and never retry.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Search(ctx context.Context, query string) ([]models.SymbolMatch, error)
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error)
}
