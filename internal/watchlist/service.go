// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package watchlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/quote"
)

// Service errors surfaced to the HTTP layer.
var (
	ErrInvalidSymbol    = errors.New("invalid stock symbol")
	ErrInvalidTarget    = errors.New("target price must be positive")
	ErrInvalidDirection = errors.New("alert type must be above or below")
	ErrQuoteUnavailable = errors.New("price service unavailable")
)

// PriceUnavailable is the per-item error text when enrichment fails.
const PriceUnavailable = "Price unavailable"

// enrichConcurrency bounds parallel quote lookups for one watchlist.
const enrichConcurrency = 4

// QuoteSource is the subset of quote.Adapter the service needs.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// AddRequest describes a new watch rule.
type AddRequest struct {
	Symbol      string
	TargetPrice float64
	Direction   models.Direction
}

// UpdateRequest replaces the target and direction of an existing rule.
type UpdateRequest struct {
	TargetPrice float64
	Direction   models.Direction
}

// Service implements the watchlist operations behind /api/watchlist.
type Service struct {
	store  Store
	quotes QuoteSource
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, quotes QuoteSource) *Service {
	return &Service{store: store, quotes: quotes, now: time.Now}
}

// Store returns the underlying repository.
func (s *Service) Store() Store {
	return s.store
}

func normalizeDirection(d models.Direction) (models.Direction, error) {
	if d == "" {
		return models.DirectionAbove, nil
	}
	if !d.Valid() {
		return "", ErrInvalidDirection
	}
	return d, nil
}

// Add validates the request, confirms the symbol resolves to a live quote,
// and stores an active rule. The quote used for validation is returned.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (*models.WatchRule, *models.Quote, error) {
	symbol := models.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, nil, ErrInvalidSymbol
	}
	if req.TargetPrice <= 0 {
		return nil, nil, ErrInvalidTarget
	}
	dir, err := normalizeDirection(req.Direction)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.store.Get(ctx, userID, symbol); err == nil {
		return nil, nil, ErrDuplicate
	} else if !errors.Is(err, ErrRuleNotFound) {
		return nil, nil, err
	}

	q, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, quote.ErrNotFound) || errors.Is(err, quote.ErrInvalidSymbol) {
			return nil, nil, ErrInvalidSymbol
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	rule := &models.WatchRule{
		UserID:      userID,
		Symbol:      symbol,
		Name:        symbol + " Corp.",
		TargetPrice: req.TargetPrice,
		Direction:   dir,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Add(ctx, rule); err != nil {
		return nil, nil, err
	}

	logging.Ctx(ctx).Info().
		Str("symbol", symbol).
		Float64("target", rule.TargetPrice).
		Str("direction", string(dir)).
		Msg("Watch rule added")
	return rule, q, nil
}

// Update replaces target and direction and re-arms the rule.
func (s *Service) Update(ctx context.Context, userID, symbol string, req UpdateRequest) (*models.WatchRule, error) {
	if req.TargetPrice <= 0 {
		return nil, ErrInvalidTarget
	}
	rule, err := s.store.Get(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	dir := rule.Direction
	if req.Direction != "" {
		if dir, err = normalizeDirection(req.Direction); err != nil {
			return nil, err
		}
	}

	rule.TargetPrice = req.TargetPrice
	rule.Direction = dir
	rule.Active = true
	rule.FiredAt = nil
	if err := s.store.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Remove deletes a rule. Removing a symbol that is not watched returns
// ErrRuleNotFound.
func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	return s.store.Remove(ctx, userID, models.NormalizeSymbol(symbol))
}

// List returns the user's rules enriched with current prices. A symbol whose
// quote fails carries Error instead of price fields; List itself only fails
// when the store does.
func (s *Service) List(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	rules, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]models.WatchlistItem, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range rules {
		items[i].WatchRule = rules[i]
		g.Go(func() error {
			q, err := s.quotes.GetQuote(gctx, rules[i].Symbol)
			if err != nil {
				items[i].Error = PriceUnavailable
				return nil
			}
			items[i].CurrentPrice = q.Price
			items[i].Change = q.Change
			items[i].ChangePercent = q.ChangePercent
			asOf := q.AsOf
			items[i].LastUpdate = &asOf
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}
