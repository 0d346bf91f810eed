// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// BreakerConfig tunes the circuit breaker around a Provider.
type BreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval resets counts while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// MinRequests and FailureRatio decide when to trip.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig opens after 60% failures over at least 10 requests and
// retries after 2 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "quote-provider",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker. Only upstream
// unavailability counts as failure; an unknown symbol or a 429 is a healthy
// answer from a working upstream.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

var _ Provider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps next.
func NewBreakerProvider(next Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.Name == "" {
		cfg = DefaultBreakerConfig()
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				logging.Warn().
					Str("breaker", cfg.Name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening quote provider circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUpstreamUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &BreakerProvider{next: next, cb: cb, name: cfg.Name}
}

// State reports the breaker state as closed, half-open, or open.
func (b *BreakerProvider) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerProvider) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, fmt.Errorf("%w: circuit %s: %v", ErrUpstreamUnavailable, b.name, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
}

// castResult type-asserts a breaker result.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected result type %T", ErrUpstreamUnavailable, result)
	}
	return typed, nil
}

// Quote implements Provider.
func (b *BreakerProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return castResult[*models.Quote](b.execute(func() (interface{}, error) {
		return b.next.Quote(ctx, symbol)
	}))
}

// Search implements Provider.
func (b *BreakerProvider) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return castResult[[]models.SymbolMatch](b.execute(func() (interface{}, error) {
		return b.next.Search(ctx, query)
	}))
}

// CompanyNews implements Provider.
func (b *BreakerProvider) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	return castResult[[]models.NewsItem](b.execute(func() (interface{}, error) {
		return b.next.CompanyNews(ctx, symbol, from, to)
	}))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
