// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the live-channel hub. A hub cannot be restarted once its
// loop has returned (every client has been closed and Attach fails), so a
// stop other than cancellation is reported as ErrDoNotRestart.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	err := s.hub.RunWithContext(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("websocket hub stopped")
	}
	return errors.Join(err, suture.ErrDoNotRestart)
}

// String implements fmt.Stringer for suture logging.
func (s *HubService) String() string {
	return "websocket-hub"
}
