// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package database opens the embedded BadgerDB instance shared by the user,
// watchlist, and notification stores, and runs its value log GC.
//
// Each store owns a key prefix:
//
//	user:<id>                     -> models.User
//	user_email:<email>            -> user id
//	rule:<userId>:<SYMBOL>        -> models.WatchRule
//	rule_active:<SYMBOL>:<userId> -> empty (index of active rules)
//	notif:<userId>:<seq>          -> models.Notification
//	notif_id:<userId>:<id>        -> seq
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/pulsetrader/internal/logging"
)

// DefaultGCRatio is the discard ratio passed to RunValueLogGC.
const DefaultGCRatio = 0.5

// Config configures Open.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
	GCRatio    float64
}

// DB wraps a BadgerDB handle.
type DB struct {
	*badger.DB
	cfg Config
}

// Open opens (or creates) the database. An in-memory database ignores Path.
func Open(cfg Config) (*DB, error) {
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = DefaultGCRatio
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("database path is required")
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	// Badger's own logger is too chatty for the service log.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Database opened")
	return &DB{DB: db, cfg: cfg}, nil
}

// OpenInMemory is a shortcut for tests.
func OpenInMemory() (*DB, error) {
	return Open(Config{InMemory: true})
}

// RunGC runs value log GC until Badger reports nothing left to rewrite.
func (d *DB) RunGC() error {
	if d.cfg.InMemory {
		return nil
	}
	for {
		err := d.RunValueLogGC(d.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// GCService runs RunGC on an interval until its context is cancelled. It
// implements suture.Service.
type GCService struct {
	db       *DB
	interval time.Duration
}

// NewGCService creates the GC service. A non-positive interval defaults to
// ten minutes.
func NewGCService(db *DB, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.db.RunGC(); err != nil {
				logging.Error().Err(err).Msg("Database GC failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Database GC completed")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *GCService) String() string {
	return "database-gc"
}
