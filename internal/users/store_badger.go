// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	userKeyPrefix      = "user:"
	userEmailKeyPrefix = "user_email:"
)

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a store on an open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func getUser(txn *badger.Txn, id string) (*models.User, error) {
	item, err := txn.Get([]byte(userKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var u models.User
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &u)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func putUser(txn *badger.Txn, u *models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return txn.Set([]byte(userKeyPrefix+u.ID), data)
}

// Create implements Store. The email index and the record commit together,
// so two concurrent registrations for one email cannot both succeed.
func (s *BadgerStore) Create(_ context.Context, u *models.User) error {
	emailKey := []byte(userEmailKeyPrefix + NormalizeEmail(u.Email))
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(emailKey)
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get email index: %w", err)
		}
		if err := txn.Set(emailKey, []byte(u.ID)); err != nil {
			return fmt.Errorf("set email index: %w", err)
		}
		return putUser(txn, u)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrEmailTaken
	}
	return err
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, id string) (*models.User, error) {
	var u *models.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, id)
		return err
	})
	return u, err
}

// GetByEmail implements Store.
func (s *BadgerStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var u *models.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailKeyPrefix + NormalizeEmail(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get email index: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		u, err = getUser(txn, string(id))
		return err
	})
	return u, err
}

// Update implements Store. The email cannot change.
func (s *BadgerStore) Update(_ context.Context, u *models.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		old, err := getUser(txn, u.ID)
		if err != nil {
			return err
		}
		u.Email = old.Email
		return putUser(txn, u)
	})
}

// Count implements Store.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(userKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
