// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package watchlist persists watch rules and implements the user-facing
// watchlist operations.
//
// A rule is keyed by (userId, SYMBOL). The alert evaluator reads it through
// ListActiveRules and flips it dormant through SetRuleActive; every other
// mutation comes from the HTTP layer through Service.
package watchlist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/pulsetrader/internal/models"
)

var (
	// ErrRuleNotFound is returned when no rule exists for (userId, symbol).
	ErrRuleNotFound = errors.New("watch rule not found")

	// ErrDuplicate is returned by Add when the user already watches the symbol.
	ErrDuplicate = errors.New("stock already in watchlist")

	// ErrRuleChanged is returned by DeactivateIfMatch when the stored rule was
	// edited, re-added or already deactivated since the caller read it.
	ErrRuleChanged = errors.New("watch rule changed")
)

// Store is the repository the evaluator and the service depend on.
type Store interface {
	// ListActiveRules returns every active rule across all users, ordered by
	// symbol and then user id.
	ListActiveRules(ctx context.Context) ([]models.WatchRule, error)

	// SetRuleActive flips a rule. Deactivating stamps FiredAt; activating
	// clears it. Returns ErrRuleNotFound if the rule was removed.
	SetRuleActive(ctx context.Context, userID, symbol string, active bool) error

	// DeactivateIfMatch deactivates the stored rule only while it is still
	// active with the target, direction and creation time of expected.
	// Returns ErrRuleNotFound or ErrRuleChanged otherwise; either way the
	// stored rule is left untouched.
	DeactivateIfMatch(ctx context.Context, expected models.WatchRule) error

	Add(ctx context.Context, rule *models.WatchRule) error
	Get(ctx context.Context, userID, symbol string) (*models.WatchRule, error)
	ListByUser(ctx context.Context, userID string) ([]models.WatchRule, error)
	Update(ctx context.Context, rule *models.WatchRule) error
	Remove(ctx context.Context, userID, symbol string) error
}

// sortRules orders rules by symbol, then user, then creation time.
func sortRules(rules []models.WatchRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Symbol != rules[j].Symbol {
			return rules[i].Symbol < rules[j].Symbol
		}
		if rules[i].UserID != rules[j].UserID {
			return rules[i].UserID < rules[j].UserID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

type ruleKey struct {
	userID string
	symbol string
}

// MemoryStore is an in-process Store used by tests and when no database is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[ruleKey]models.WatchRule
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[ruleKey]models.WatchRule), now: time.Now}
}

func keyOf(userID, symbol string) ruleKey {
	return ruleKey{userID: userID, symbol: models.NormalizeSymbol(symbol)}
}

// ListActiveRules implements Store.
func (s *MemoryStore) ListActiveRules(_ context.Context) ([]models.WatchRule, error) {
	s.mu.RLock()
	out := make([]models.WatchRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortRules(out)
	return out, nil
}

// SetRuleActive implements Store.
func (s *MemoryStore) SetRuleActive(_ context.Context, userID, symbol string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(userID, symbol)
	r, ok := s.rules[k]
	if !ok {
		return ErrRuleNotFound
	}
	applyActive(&r, active, s.now())
	s.rules[k] = r
	return nil
}

// DeactivateIfMatch implements Store.
func (s *MemoryStore) DeactivateIfMatch(_ context.Context, expected models.WatchRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(expected.UserID, expected.Symbol)
	r, ok := s.rules[k]
	if !ok {
		return ErrRuleNotFound
	}
	if !matchesSnapshot(&r, &expected) {
		return ErrRuleChanged
	}
	applyActive(&r, false, s.now())
	s.rules[k] = r
	return nil
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, rule *models.WatchRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(rule.UserID, rule.Symbol)
	if _, ok := s.rules[k]; ok {
		return ErrDuplicate
	}
	s.rules[k] = *rule
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID, symbol string) (*models.WatchRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[keyOf(userID, symbol)]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &r, nil
}

// ListByUser implements Store. Rules are returned oldest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]models.WatchRule, error) {
	s.mu.RLock()
	out := make([]models.WatchRule, 0)
	for k, r := range s.rules {
		if k.userID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortByCreated(out)
	return out, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, rule *models.WatchRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(rule.UserID, rule.Symbol)
	if _, ok := s.rules[k]; !ok {
		return ErrRuleNotFound
	}
	s.rules[k] = *rule
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(userID, symbol)
	if _, ok := s.rules[k]; !ok {
		return ErrRuleNotFound
	}
	delete(s.rules, k)
	return nil
}

// matchesSnapshot reports whether stored is still the active rule that
// expected was read from.
func matchesSnapshot(stored, expected *models.WatchRule) bool {
	return stored.Active &&
		stored.TargetPrice == expected.TargetPrice &&
		stored.Direction == expected.Direction &&
		stored.CreatedAt.Equal(expected.CreatedAt)
}

func applyActive(r *models.WatchRule, active bool, now time.Time) {
	r.Active = active
	if active {
		r.FiredAt = nil
		return
	}
	t := now.UTC()
	r.FiredAt = &t
}

func sortByCreated(rules []models.WatchRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].Symbol < rules[j].Symbol
	})
}
