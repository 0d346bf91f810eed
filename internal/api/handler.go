// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package api serves the PulseTrader REST API and the /ws upgrade.
//
// Every JSON response uses the models.APIResponse envelope. Handlers depend
// on narrow interfaces so tests can run the router against in-memory stores.
package api

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/pulsetrader/internal/alert"
	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/dispatch"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/notification"
	"github.com/tomtom215/pulsetrader/internal/watchlist"
	ws "github.com/tomtom215/pulsetrader/internal/websocket"
)

// AuthService is implemented by *auth.Service.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateSettings(ctx context.Context, userID string, settings models.UserSettings) (*models.User, error)
}

// MarketData is implemented by *quote.Adapter.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	Search(ctx context.Context, query string) ([]models.SymbolMatch, error)
	News(ctx context.Context, symbol string) ([]models.NewsItem, error)
}

// Watchlist is implemented by *watchlist.Service.
type Watchlist interface {
	Add(ctx context.Context, userID string, req watchlist.AddRequest) (*models.WatchRule, *models.Quote, error)
	Update(ctx context.Context, userID, symbol string, req watchlist.UpdateRequest) (*models.WatchRule, error)
	Remove(ctx context.Context, userID, symbol string) error
	List(ctx context.Context, userID string) ([]models.WatchlistItem, error)
}

// Notifier is implemented by *dispatch.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, userID, message string, severity models.Severity, opts ...dispatch.Option) (*models.Notification, error)
}

// Scanner is implemented by *alert.Evaluator.
type Scanner interface {
	Scan(ctx context.Context) (alert.ScanResult, error)
	LastResult() (alert.ScanResult, bool)
	Running() bool
}

// LiveHub is implemented by *websocket.Hub.
type LiveHub interface {
	Attach(conn *websocket.Conn) (*ws.Client, error)
	GetClientCount() int
	AuthenticatedCount() int
}

// Deps are the services behind the handlers. Scanner and Hub may be nil,
// which disables the admin scan and the live channel.
type Deps struct {
	Auth          AuthService
	Market        MarketData
	Watchlist     Watchlist
	Notifications notification.Log
	Notifier      Notifier
	Scanner       Scanner
	Hub           LiveHub
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps      Deps
	upgrader  websocket.Upgrader
	origins   map[string]bool
	anyOrigin bool
	started   time.Time
}

// NewHandler creates a Handler. allowedOrigins gates WebSocket upgrades;
// "*" allows any origin.
func NewHandler(deps Deps, allowedOrigins []string) *Handler {
	h := &Handler{
		deps:    deps,
		origins: make(map[string]bool, len(allowedOrigins)),
		started: time.Now(),
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			h.anyOrigin = true
		}
		h.origins[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
	return h
}
