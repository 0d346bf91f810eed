// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/pulsetrader/internal/logging"
)

// Scanner is what the schedulers drive. *Evaluator satisfies it.
type Scanner interface {
	Scan(ctx context.Context) (ScanResult, error)
}

// ScanHook observes every scheduled scan.
type ScanHook func(ScanResult, error)

// runScan runs one scan, logs the outcome, and turns a panic into an error
// so a bad tick never takes the scheduler down.
func runScan(ctx context.Context, s Scanner, hook ScanHook) {
	var (
		res ScanResult
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert scan panicked: %v", r)
			logging.Error().Err(err).Msg("Recovered panic in alert scan")
		}
		if hook != nil {
			hook(res, err)
		}
	}()

	res, err = s.Scan(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		logging.Debug().Msg("Skipping tick: previous scan still running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.Info().Int("fired", res.Fired).Msg("Alert scan interrupted by shutdown")
	default:
		logging.Error().Err(err).Msg("Alert scan failed")
	}
}

// Ticker delivers scan ticks. It lets tests drive the scheduler without
// wall-clock waits.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ManualTicker fires only when Tick is called.
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker creates a ManualTicker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// C implements Ticker.
func (m *ManualTicker) C() <-chan time.Time { return m.ch }

// Stop implements Ticker.
func (m *ManualTicker) Stop() {}

// Tick hands t to the scheduler, blocking until it is received.
func (m *ManualTicker) Tick(t time.Time) {
	m.ch <- t
}

// TickerScheduler runs a scan on every tick. It implements suture.Service.
type TickerScheduler struct {
	scanner Scanner
	ticker  Ticker
	hook    ScanHook
}

// NewTickerScheduler creates a scheduler over ticker. hook may be nil.
func NewTickerScheduler(scanner Scanner, ticker Ticker, hook ScanHook) *TickerScheduler {
	return &TickerScheduler{scanner: scanner, ticker: ticker, hook: hook}
}

// Serve blocks until ctx is cancelled. Scans run on the serving goroutine,
// so ticks that arrive during a scan are dropped by the ticker.
func (s *TickerScheduler) Serve(ctx context.Context) error {
	defer s.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ticker.C():
			runScan(ctx, s.scanner, s.hook)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *TickerScheduler) String() string {
	return "alert-scheduler"
}

// CronScheduler runs scans with robfig/cron on an @every spec. Overlapping
// ticks are skipped and panics recovered by the cron job chain. It
// implements suture.Service.
type CronScheduler struct {
	scanner  Scanner
	interval time.Duration
	hook     ScanHook
}

// NewCronScheduler creates a cron-driven scheduler.
func NewCronScheduler(scanner Scanner, interval time.Duration, hook ScanHook) (*CronScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("alert interval must be positive, got %s", interval)
	}
	return &CronScheduler{scanner: scanner, interval: interval, hook: hook}, nil
}

// Spec returns the cron spec in use.
func (s *CronScheduler) Spec() string {
	return "@every " + s.interval.String()
}

// Serve starts the cron runner and blocks until ctx is cancelled, then
// waits for a running scan to return.
func (s *CronScheduler) Serve(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := c.AddFunc(s.Spec(), func() { runScan(ctx, s.scanner, s.hook) }); err != nil {
		return fmt.Errorf("schedule alert scan: %w", err)
	}

	c.Start()
	logging.Info().Str("spec", s.Spec()).Msg("Alert scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *CronScheduler) String() string {
	return "alert-scheduler"
}

// cronLogger adapts cron.Logger to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Str("component", "cron").Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Str("component", "cron").Msg(msg)
}
