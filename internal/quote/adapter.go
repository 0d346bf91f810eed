// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package quote resolves normalized price quotes for ticker symbols.
//
// The Adapter sits in front of an upstream Provider (Finnhub in production)
// and adds symbol normalization, a process-wide TTL cache, a bounded timeout
// per upstream call, and load collapsing so concurrent lookups of the same
// symbol reach the provider once. It never retries; a failed symbol is simply
// asked for again on the next alert scan.
package quote

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/pulsetrader/internal/cache"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// Defaults for AdapterConfig.
const (
	DefaultCacheTTL = 60 * time.Second
	DefaultTimeout  = 10 * time.Second
	newsLookback    = 7 * 24 * time.Hour
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	CacheTTL time.Duration
	Timeout  time.Duration

	// Clock overrides time.Now for cache ageing and news ranges.
	Clock func() time.Time
}

// Adapter is the quote source used by the evaluator and the HTTP API.
type Adapter struct {
	provider Provider
	quotes   *cache.Cache[*models.Quote]
	timeout  time.Duration
	now      func() time.Time
}

// NewAdapter wraps provider. Call Close to stop the cache sweep.
func NewAdapter(provider Provider, cfg AdapterConfig) *Adapter {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Adapter{
		provider: provider,
		quotes:   cache.New[*models.Quote](cfg.CacheTTL, cache.WithClock(cfg.Clock)),
		timeout:  cfg.Timeout,
		now:      cfg.Clock,
	}
}

// GetQuote returns the quote for symbol, from cache when it is younger than
// the TTL. Errors are the tagged values from this package.
func (a *Adapter) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	// the shared load is bounded by the adapter timeout, not by whichever
	// caller happened to start it
	q, hit, err := a.quotes.GetOrLoad(ctx, symbol, func(loadCtx context.Context) (*models.Quote, error) {
		callCtx, cancel := context.WithTimeout(loadCtx, a.timeout)
		defer cancel()

		q, err := a.provider.Quote(callCtx, symbol)
		if err != nil {
			return nil, classify(callCtx, err)
		}
		q.Symbol = symbol
		return q, nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if hit {
		metrics.QuoteCacheHits.Inc()
	} else {
		metrics.QuoteCacheMisses.Inc()
	}

	// Callers get their own copy so the cached value stays immutable.
	out := *q
	return &out, nil
}

// Search looks up symbols matching query. Results are not cached.
func (a *Adapter) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.provider.Search(callCtx, query)
	if err != nil {
		return nil, classify(callCtx, err)
	}
	return res, nil
}

// News returns company news for the last seven days.
func (a *Adapter) News(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	to := a.now().UTC()
	res, err := a.provider.CompanyNews(callCtx, symbol, to.Add(-newsLookback), to)
	if err != nil {
		return nil, classify(callCtx, err)
	}
	return res, nil
}

// Invalidate drops a cached quote.
func (a *Adapter) Invalidate(symbol string) {
	a.quotes.Delete(models.NormalizeSymbol(symbol))
}

// CacheStats exposes the quote cache counters.
func (a *Adapter) CacheStats() cache.Stats {
	return a.quotes.Stats()
}

// Close stops background work.
func (a *Adapter) Close() {
	a.quotes.Stop()
}

// classify guarantees that a deadline expiry surfaces as ErrTimeout and that
// any untagged provider error surfaces as ErrUpstreamUnavailable.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTimeout), errors.Is(err, ErrInvalidSymbol):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	case errors.Is(err, ErrUpstreamUnavailable):
		return err
	default:
		return errors.Join(ErrUpstreamUnavailable, err)
	}
}
