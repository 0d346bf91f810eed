// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package notification stores the per-user notification log.
//
// The log is newest first and capped per user. Append and the eviction it
// causes happen as one operation, so a reader never sees more than the cap
// and never sees an entry disappear without its replacement.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// DefaultRetention is the per-user cap.
const DefaultRetention = 50

// ErrNotFound is returned for an unknown notification id.
var ErrNotFound = errors.New("notification not found")

// Log is the notification repository.
type Log interface {
	// Append stores n for n.UserID, assigning ID and CreatedAt when empty,
	// and evicts the oldest entries beyond the cap. It returns how many were
	// evicted.
	Append(ctx context.Context, n *models.Notification) (evicted int, err error)

	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID string) ([]models.Notification, error)

	MarkRead(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// prepare fills in defaults before a notification is stored.
func prepare(n *models.Notification, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now.UTC()
	}
	if n.Severity == "" {
		n.Severity = models.SeverityInfo
	}
}

func recordAppend(n *models.Notification, evicted int) {
	metrics.NotificationsStored.WithLabelValues(string(n.Severity)).Inc()
	if evicted > 0 {
		metrics.NotificationsEvicted.Add(float64(evicted))
	}
}

// userLocks hands out one mutex per user so appends for different users do
// not contend.
type userLocks struct {
	locks sync.Map
}

func (u *userLocks) lock(userID string) func() {
	v, _ := u.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu        sync.RWMutex
	entries   map[string][]models.Notification
	retention int
	now       func() time.Time
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog creates a log keeping at most retention entries per user.
func NewMemoryLog(retention int) *MemoryLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryLog{
		entries:   make(map[string][]models.Notification),
		retention: retention,
		now:       time.Now,
	}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, n *models.Notification) (int, error) {
	l.mu.Lock()
	prepare(n, l.now())
	list := append([]models.Notification{*n}, l.entries[n.UserID]...)
	evicted := 0
	if len(list) > l.retention {
		evicted = len(list) - l.retention
		list = list[:l.retention]
	}
	l.entries[n.UserID] = list
	l.mu.Unlock()

	recordAppend(n, evicted)
	return evicted, nil
}

// List implements Log.
func (l *MemoryLog) List(_ context.Context, userID string) ([]models.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Notification, len(l.entries[userID]))
	copy(out, l.entries[userID])
	return out, nil
}

// MarkRead implements Log.
func (l *MemoryLog) MarkRead(_ context.Context, userID, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries[userID] {
		if l.entries[userID][i].ID == id {
			l.entries[userID][i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// Delete implements Log.
func (l *MemoryLog) Delete(_ context.Context, userID, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.entries[userID]
	for i := range list {
		if list[i].ID == id {
			l.entries[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// UnreadCount implements Log.
func (l *MemoryLog) UnreadCount(_ context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.entries[userID] {
		if !e.Read {
			n++
		}
	}
	return n, nil
}
