// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package alert evaluates active watch rules against fresh quotes and fires
// each crossing exactly once.
//
// A rule moves from active to fired and stays there until the user re-arms
// it. On a crossing the evaluator flips the rule dormant before it
// dispatches, so a crash between the two loses a notification rather than
// sending it twice.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pulsetrader/internal/dispatch"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/quote"
	"github.com/tomtom215/pulsetrader/internal/watchlist"
)

// ErrScanInProgress is returned when Scan is called while another scan runs.
var ErrScanInProgress = errors.New("alert scan already in progress")

// RuleStore is the part of watchlist.Store the evaluator needs.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]models.WatchRule, error)
	DeactivateIfMatch(ctx context.Context, expected models.WatchRule) error
}

// QuoteSource resolves a symbol to a quote. *quote.Adapter satisfies it.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Notifier delivers a fired alert. *dispatch.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, userID, message string, severity models.Severity, opts ...dispatch.Option) (*models.Notification, error)
}

// PricePublisher receives every resolved quote after a scan.
// *events.Bus satisfies it.
type PricePublisher interface {
	PublishQuotes(ctx context.Context, quotes []*models.Quote) error
}

// Config configures an Evaluator.
type Config struct {
	// FetchConcurrency bounds concurrent quote fetches. Defaults to 4.
	FetchConcurrency int

	// Clock overrides time.Now.
	Clock func() time.Time
}

// ScanResult summarizes one pass over the active rules.
type ScanResult struct {
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
	Evaluated      int           `json:"evaluated"`
	Fired          int           `json:"fired"`
	Skipped        int           `json:"skipped"`
	Vanished       int           `json:"vanished"`
	SymbolsFetched int           `json:"symbolsFetched"`
	SymbolsFailed  int           `json:"symbolsFailed"`
	Cancelled      bool          `json:"cancelled,omitempty"`
}

// Evaluator runs alert scans. It is safe for concurrent use; overlapping
// scans are rejected rather than queued.
type Evaluator struct {
	rules     RuleStore
	quotes    QuoteSource
	notifier  Notifier
	publisher PricePublisher
	limit     int
	now       func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last *ScanResult
}

// NewEvaluator creates an evaluator. publisher may be nil.
func NewEvaluator(rules RuleStore, quotes QuoteSource, notifier Notifier, publisher PricePublisher, cfg Config) *Evaluator {
	limit := cfg.FetchConcurrency
	if limit <= 0 {
		limit = 4
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		rules:     rules,
		quotes:    quotes,
		notifier:  notifier,
		publisher: publisher,
		limit:     limit,
		now:       now,
	}
}

// LastResult returns the most recent completed scan, if any.
func (e *Evaluator) LastResult() (ScanResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return ScanResult{}, false
	}
	return *e.last, true
}

// Running reports whether a scan is in flight.
func (e *Evaluator) Running() bool {
	return e.running.Load()
}

// Scan evaluates every active rule once. Per-symbol and per-rule failures
// are counted in the result and never abort the scan; the only errors are
// ErrScanInProgress, a failure to load the rules, and ctx cancellation.
func (e *Evaluator) Scan(ctx context.Context) (ScanResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.RecordScan("overlap", 0)
		return ScanResult{}, ErrScanInProgress
	}
	defer e.running.Store(false)

	started := e.now()
	res := ScanResult{StartedAt: started.UTC()}
	logger := logging.Ctx(ctx).With().Str("component", "alert-evaluator").Logger()

	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		metrics.RecordScan("error", e.now().Sub(started))
		return res, fmt.Errorf("list active rules: %w", err)
	}

	bySymbol := groupBySymbol(rules)
	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	quotes, failures := e.fetchAll(ctx, symbols)
	res.SymbolsFetched = len(quotes)
	res.SymbolsFailed = len(failures)

	for _, symbol := range symbols {
		group := bySymbol[symbol]
		q, ok := quotes[symbol]
		if !ok {
			reason := quote.Reason(failures[symbol])
			res.Skipped += len(group)
			metrics.AlertRulesSkipped.WithLabelValues("quote_" + reason).Add(float64(len(group)))
			logger.Debug().Err(failures[symbol]).Str("symbol", symbol).Int("rules", len(group)).Msg("Skipping symbol")
			continue
		}

		for i := range group {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			e.evaluate(ctx, &group[i], q, &res, &logger)
		}
		if res.Cancelled {
			break
		}
	}

	if e.publisher != nil && len(quotes) > 0 && ctx.Err() == nil {
		resolved := make([]*models.Quote, 0, len(quotes))
		for _, s := range symbols {
			if q, ok := quotes[s]; ok {
				resolved = append(resolved, q)
			}
		}
		if err := e.publisher.PublishQuotes(ctx, resolved); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish price updates")
		}
	}

	res.Duration = e.now().Sub(started)
	e.mu.Lock()
	last := res
	e.last = &last
	e.mu.Unlock()

	if res.Cancelled {
		metrics.RecordScan("cancelled", res.Duration)
		return res, ctx.Err()
	}
	metrics.RecordScan("completed", res.Duration)
	logger.Info().
		Int("rules", len(rules)).
		Int("fired", res.Fired).
		Int("skipped", res.Skipped).
		Int("vanished", res.Vanished).
		Dur("duration", res.Duration).
		Msg("Alert scan completed")
	return res, nil
}

// evaluate checks one rule and fires it on a crossing.
func (e *Evaluator) evaluate(ctx context.Context, r *models.WatchRule, q *models.Quote, res *ScanResult, logger *zerolog.Logger) {
	res.Evaluated++
	metrics.AlertRulesEvaluated.Inc()

	if !r.Direction.Crossed(q.Price, r.TargetPrice) {
		return
	}

	// once flipped, the fire runs to completion even if the scan is cancelled
	ctx = context.WithoutCancel(ctx)
	// the crossing was judged on the snapshot; fire only if the stored rule still matches it
	if err := e.rules.DeactivateIfMatch(ctx, *r); err != nil {
		switch {
		case errors.Is(err, watchlist.ErrRuleNotFound):
			res.Vanished++
			metrics.AlertRulesSkipped.WithLabelValues("vanished").Inc()
			return
		case errors.Is(err, watchlist.ErrRuleChanged):
			res.Skipped++
			metrics.AlertRulesSkipped.WithLabelValues("changed").Inc()
			logger.Debug().Str("user_id", r.UserID).Str("symbol", r.Symbol).Msg("Rule changed during scan, not firing")
			return
		}
		res.Skipped++
		metrics.AlertRulesSkipped.WithLabelValues("store_error").Inc()
		logger.Error().Err(err).Str("user_id", r.UserID).Str("symbol", r.Symbol).Msg("Failed to deactivate rule")
		return
	}

	res.Fired++
	metrics.AlertsFired.WithLabelValues(string(r.Direction)).Inc()

	msg, severity := alertMessage(r, q.Price)
	if _, err := e.notifier.Dispatch(ctx, r.UserID, msg, severity, dispatch.WithQuote(q)); err != nil {
		logger.Error().Err(err).Str("user_id", r.UserID).Str("symbol", r.Symbol).Msg("Alert fired but notification could not be stored")
	}
}

// fetchAll resolves each symbol once. Failures are returned per symbol.
func (e *Evaluator) fetchAll(ctx context.Context, symbols []string) (map[string]*models.Quote, map[string]error) {
	var (
		mu       sync.Mutex
		quotes   = make(map[string]*models.Quote, len(symbols))
		failures = make(map[string]error)
	)

	g := new(errgroup.Group)
	g.SetLimit(e.limit)
	for _, symbol := range symbols {
		g.Go(func() error {
			q, err := e.quotes.GetQuote(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[symbol] = err
				return nil
			}
			quotes[symbol] = q
			return nil
		})
	}
	_ = g.Wait()
	return quotes, failures
}

func groupBySymbol(rules []models.WatchRule) map[string][]models.WatchRule {
	out := make(map[string][]models.WatchRule)
	for _, r := range rules {
		out[r.Symbol] = append(out[r.Symbol], r)
	}
	return out
}

// alertMessage renders the user-facing text for a fired rule.
func alertMessage(r *models.WatchRule, price float64) (string, models.Severity) {
	if r.Direction == models.DirectionBelow {
		return fmt.Sprintf("%s dropped to $%.2f (target: $%.2f)", r.Symbol, price, r.TargetPrice), models.SeverityWarning
	}
	return fmt.Sprintf("%s reached $%.2f (target: $%.2f)", r.Symbol, price, r.TargetPrice), models.SeverityPositive
}
