// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package notification

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	entryKeyPrefix = "notif:"
	idKeyPrefix    = "notif_id:"
	seqKeyPrefix   = "notif_seq:"
)

// BadgerLog implements Log on BadgerDB.
//
// Entries live under notif:<userId>:<seq> with seq a big-endian uint64 that
// grows per user, so a reverse prefix scan yields newest first.
// notif_id:<userId>:<id> points back at the entry key.
type BadgerLog struct {
	db        *badger.DB
	retention int
	locks     userLocks
	now       func() time.Time
}

var _ Log = (*BadgerLog)(nil)

// NewBadgerLog creates a log on an open database.
func NewBadgerLog(db *badger.DB, retention int) *BadgerLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &BadgerLog{db: db, retention: retention, now: time.Now}
}

func entryPrefix(userID string) []byte {
	return []byte(entryKeyPrefix + userID + ":")
}

func entryKey(userID string, seq uint64) []byte {
	k := entryPrefix(userID)
	return binary.BigEndian.AppendUint64(k, seq)
}

func idKey(userID, id string) []byte {
	return []byte(idKeyPrefix + userID + ":" + id)
}

func seqKey(userID string) []byte {
	return []byte(seqKeyPrefix + userID)
}

// nextSeq increments and returns the user's sequence inside txn.
func nextSeq(txn *badger.Txn, userID string) (uint64, error) {
	var seq uint64
	item, err := txn.Get(seqKey(userID))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, fmt.Errorf("get sequence: %w", err)
	default:
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt sequence for %s", userID)
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	seq++
	if err := txn.Set(seqKey(userID), binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return 0, fmt.Errorf("set sequence: %w", err)
	}
	return seq, nil
}

// Append implements Log. The entry, its id index, and any evictions commit
// in one transaction while the user's lock is held.
func (l *BadgerLog) Append(_ context.Context, n *models.Notification) (int, error) {
	unlock := l.locks.lock(n.UserID)
	defer unlock()

	// Stamped under the lock so CreatedAt order matches sequence order.
	prepare(n, l.now())
	data, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("marshal notification: %w", err)
	}

	evicted := 0
	err = l.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, n.UserID)
		if err != nil {
			return err
		}
		key := entryKey(n.UserID, seq)
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set notification: %w", err)
		}
		if err := txn.Set(idKey(n.UserID, n.ID), key); err != nil {
			return fmt.Errorf("set id index: %w", err)
		}

		stale, staleIDs, err := l.beyondCap(txn, n.UserID)
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("evict notification: %w", err)
			}
		}
		for _, id := range staleIDs {
			if err := txn.Delete(idKey(n.UserID, id)); err != nil {
				return fmt.Errorf("evict id index: %w", err)
			}
		}
		evicted = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append notification: %w", err)
	}

	recordAppend(n, evicted)
	return evicted, nil
}

// beyondCap returns the entry keys and ids past the retention cap, walking
// newest first. The iterator is closed before the caller mutates txn.
func (l *BadgerLog) beyondCap(txn *badger.Txn, userID string) ([][]byte, []string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	var ids []string
	prefix := entryPrefix(userID)
	seen := 0
	for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix); it.Next() {
		seen++
		if seen <= l.retention {
			continue
		}
		item := it.Item()
		var old models.Notification
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &old)
		}); err != nil {
			return nil, nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		keys = append(keys, item.KeyCopy(nil))
		ids = append(ids, old.ID)
	}
	return keys, ids, nil
}

// seekLast is the reverse-iteration start for prefix.
func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

// List implements Log.
func (l *BadgerLog) List(_ context.Context, userID string) ([]models.Notification, error) {
	out := make([]models.Notification, 0)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := entryPrefix(userID)
		for it.Seek(seekLast(prefix)); it.ValidForPrefix(prefix); it.Next() {
			var n models.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return fmt.Errorf("unmarshal notification: %w", err)
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// lookup resolves id to its entry key inside txn.
func lookup(txn *badger.Txn, userID, id string) ([]byte, error) {
	item, err := txn.Get(idKey(userID, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get id index: %w", err)
	}
	return item.ValueCopy(nil)
}

// MarkRead implements Log.
func (l *BadgerLog) MarkRead(_ context.Context, userID, id string) error {
	unlock := l.locks.lock(userID)
	defer unlock()

	return l.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, userID, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}
		var n models.Notification
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		}); err != nil {
			return fmt.Errorf("unmarshal notification: %w", err)
		}
		if n.Read {
			return nil
		}
		n.Read = true
		data, err := json.Marshal(&n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Delete implements Log.
func (l *BadgerLog) Delete(_ context.Context, userID, id string) error {
	unlock := l.locks.lock(userID)
	defer unlock()

	return l.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, userID, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete notification: %w", err)
		}
		return txn.Delete(idKey(userID, id))
	})
}

// UnreadCount implements Log.
func (l *BadgerLog) UnreadCount(ctx context.Context, userID string) (int, error) {
	list, err := l.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range list {
		if !e.Read {
			n++
		}
	}
	return n, nil
}
