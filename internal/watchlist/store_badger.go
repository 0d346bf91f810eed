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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	ruleKeyPrefix       = "rule:"
	ruleActiveKeyPrefix = "rule_active:"
)

// BadgerStore implements Store on BadgerDB. Active rules are indexed under
// rule_active:<SYMBOL>:<userId> so ListActiveRules never reads dormant rules.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a store on an open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func ruleKeyBytes(userID, symbol string) []byte {
	return []byte(ruleKeyPrefix + userID + ":" + models.NormalizeSymbol(symbol))
}

func activeKeyBytes(userID, symbol string) []byte {
	return []byte(ruleActiveKeyPrefix + models.NormalizeSymbol(symbol) + ":" + userID)
}

// readRule loads the rule at key inside txn.
func readRule(txn *badger.Txn, key []byte) (*models.WatchRule, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	var r models.WatchRule
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal rule: %w", err)
	}
	return &r, nil
}

// writeRule stores the rule and keeps the active index in step.
func writeRule(txn *badger.Txn, r *models.WatchRule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	key := ruleKeyBytes(r.UserID, r.Symbol)
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set rule: %w", err)
	}

	activeKey := activeKeyBytes(r.UserID, r.Symbol)
	if r.Active {
		if err := txn.Set(activeKey, key); err != nil {
			return fmt.Errorf("set active index: %w", err)
		}
		return nil
	}
	if err := txn.Delete(activeKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete active index: %w", err)
	}
	return nil
}

// ListActiveRules implements Store.
func (s *BadgerStore) ListActiveRules(ctx context.Context) ([]models.WatchRule, error) {
	var rules []models.WatchRule

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(ruleActiveKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ruleKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read active index: %w", err)
			}
			r, err := readRule(txn, ruleKey)
			if errors.Is(err, ErrRuleNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if r.Active {
				rules = append(rules, *r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	sortRules(rules)
	return rules, nil
}

// SetRuleActive implements Store.
func (s *BadgerStore) SetRuleActive(_ context.Context, userID, symbol string, active bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		r, err := readRule(txn, ruleKeyBytes(userID, symbol))
		if err != nil {
			return err
		}
		applyActive(r, active, s.now())
		return writeRule(txn, r)
	})
}

// DeactivateIfMatch implements Store. The comparison and the write share one
// transaction, so a concurrent Update or Remove makes one of them conflict.
func (s *BadgerStore) DeactivateIfMatch(_ context.Context, expected models.WatchRule) error {
	return s.db.Update(func(txn *badger.Txn) error {
		r, err := readRule(txn, ruleKeyBytes(expected.UserID, expected.Symbol))
		if err != nil {
			return err
		}
		if !matchesSnapshot(r, &expected) {
			return ErrRuleChanged
		}
		applyActive(r, false, s.now())
		return writeRule(txn, r)
	})
}

// Add implements Store.
func (s *BadgerStore) Add(_ context.Context, rule *models.WatchRule) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := readRule(txn, ruleKeyBytes(rule.UserID, rule.Symbol))
		switch {
		case err == nil:
			return ErrDuplicate
		case !errors.Is(err, ErrRuleNotFound):
			return err
		}
		return writeRule(txn, rule)
	})
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, userID, symbol string) (*models.WatchRule, error) {
	var rule *models.WatchRule
	err := s.db.View(func(txn *badger.Txn) error {
		r, err := readRule(txn, ruleKeyBytes(userID, symbol))
		rule = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListByUser implements Store.
func (s *BadgerStore) ListByUser(_ context.Context, userID string) ([]models.WatchRule, error) {
	rules := make([]models.WatchRule, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(ruleKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r models.WatchRule
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("unmarshal rule: %w", err)
			}
			rules = append(rules, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list user rules: %w", err)
	}

	sortByCreated(rules)
	return rules, nil
}

// Update implements Store.
func (s *BadgerStore) Update(_ context.Context, rule *models.WatchRule) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := readRule(txn, ruleKeyBytes(rule.UserID, rule.Symbol)); err != nil {
			return err
		}
		return writeRule(txn, rule)
	})
}

// Remove implements Store.
func (s *BadgerStore) Remove(_ context.Context, userID, symbol string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := ruleKeyBytes(userID, symbol)
		if _, err := readRule(txn, key); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		if err := txn.Delete(activeKeyBytes(userID, symbol)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete active index: %w", err)
		}
		return nil
	})
}
