// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package main is the PulseTrader server.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment, .env)
//  2. BadgerDB, or in-memory stores when database.in_memory is set
//  3. Quote adapter: Finnhub client behind a circuit breaker and a TTL cache
//  4. WebSocket hub, price event bus, notification dispatcher and mailer
//  5. Alert evaluator and its cron scheduler
//  6. HTTP API
//
// Long-lived components run under a suture tree; SIGINT or SIGTERM cancels
// it and every service shuts down within its timeout.
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export FINNHUB_API_KEY=your-key
//	./pulsetrader
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/pulsetrader/internal/alert"
	"github.com/tomtom215/pulsetrader/internal/api"
	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/authz"
	"github.com/tomtom215/pulsetrader/internal/config"
	"github.com/tomtom215/pulsetrader/internal/database"
	"github.com/tomtom215/pulsetrader/internal/dispatch"
	"github.com/tomtom215/pulsetrader/internal/events"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/notification"
	"github.com/tomtom215/pulsetrader/internal/quote"
	"github.com/tomtom215/pulsetrader/internal/supervisor"
	"github.com/tomtom215/pulsetrader/internal/supervisor/services"
	"github.com/tomtom215/pulsetrader/internal/users"
	"github.com/tomtom215/pulsetrader/internal/watchlist"
	ws "github.com/tomtom215/pulsetrader/internal/websocket"
)

// stores groups the three repositories so main can pick Badger or memory.
type stores struct {
	users     users.Store
	rules     watchlist.Store
	notifLog  notification.Log
	db        *database.DB
	closeFunc func()
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Database.InMemory {
		logging.Warn().Msg("Using in-memory stores: accounts, watchlists and notifications are lost on restart")
		return &stores{
			users:     users.NewMemoryStore(),
			rules:     watchlist.NewMemoryStore(),
			notifLog:  notification.NewMemoryLog(cfg.Notifications.Retention),
			closeFunc: func() {},
		}, nil
	}

	db, err := database.Open(database.Config{
		Path:       cfg.Database.Path,
		GCInterval: cfg.Database.GCInterval,
	})
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    users.NewBadgerStore(db.DB),
		rules:    watchlist.NewBadgerStore(db.DB),
		notifLog: notification.NewBadgerLog(db.DB, cfg.Notifications.Retention),
		db:       db,
		closeFunc: func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing database")
			}
		},
	}, nil
}

func newMailer(cfg config.EmailConfig) *dispatch.Mailer {
	if !cfg.Enabled {
		logging.Info().Msg("Email delivery disabled")
		return nil
	}
	sender, err := dispatch.NewSMTPSender(dispatch.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		UseTLS:   cfg.UseTLS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Email delivery disabled: invalid SMTP settings")
		return nil
	}
	logging.Info().Str("host", cfg.Host).Int("port", cfg.Port).Int("workers", cfg.Workers).Msg("Email delivery enabled")
	return dispatch.NewMailer(sender, dispatch.MailerConfig{Workers: cfg.Workers, QueueSize: cfg.QueueSize})
}

//nolint:gocyclo // sequential wiring
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Int("port", cfg.Server.Port).
		Bool("alerts_enabled", cfg.Alerts.Enabled).
		Dur("alert_interval", cfg.Alerts.Interval).
		Bool("in_memory", cfg.Database.InMemory).
		Msg("Starting PulseTrader")

	st, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.closeFunc()

	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	authService := auth.NewService(st.users, jwtManager, auth.ServiceConfig{
		BcryptCost:  cfg.Security.BcryptCost,
		AdminEmails: cfg.Security.AdminEmails,
	})
	enforcer, err := authz.NewEnforcer(authz.Config{PolicyPath: cfg.Security.AuthzPolicyPath, CacheTTL: time.Minute})
	if err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	defer enforcer.Close()

	provider := quote.NewBreakerProvider(quote.NewFinnhubClient(quote.FinnhubConfig{
		BaseURL:   cfg.Quote.ProviderURL,
		APIKey:    cfg.Quote.APIKey,
		RateLimit: cfg.Quote.RateLimit,
		RateBurst: cfg.Quote.RateBurst,
	}), quote.DefaultBreakerConfig())
	quotes := quote.NewAdapter(provider, quote.AdapterConfig{
		CacheTTL: cfg.Quote.CacheTTL,
		Timeout:  cfg.Quote.Timeout,
	})
	defer quotes.Close()

	hub := ws.NewHub(jwtManager)
	bus := events.NewBus(logging.NewSlogLogger())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing price bus")
		}
	}()

	mailer := newMailer(cfg.Email)
	dispatcher := dispatch.New(st.notifLog, st.users, mailer, hub)
	evaluator := alert.NewEvaluator(st.rules, quotes, dispatcher, bus, alert.Config{})

	handler := api.NewHandler(api.Deps{
		Auth:          authService,
		Market:        quotes,
		Watchlist:     watchlist.NewService(st.rules, quotes),
		Notifications: st.notifLog,
		Notifier:      dispatcher,
		Scanner:       evaluator,
		Hub:           hub,
	}, cfg.Server.CORSOrigins)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), authz.NewMiddleware(enforcer), api.RouterConfig{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Security.RateLimitRequests,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if st.db != nil {
		tree.AddDataService(database.NewGCService(st.db, cfg.Database.GCInterval))
	}
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddMessagingService(events.NewForwarder(bus, hub))
	if mailer != nil {
		tree.AddMessagingService(mailer)
	}
	if cfg.Alerts.Enabled {
		scheduler, err := alert.NewCronScheduler(evaluator, cfg.Alerts.Interval, nil)
		if err != nil {
			return err
		}
		tree.AddAlertService(scheduler)
	} else {
		logging.Warn().Msg("Scheduled alert scans disabled; use POST /api/admin/scan")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("PulseTrader listening")
	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("PulseTrader stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}
