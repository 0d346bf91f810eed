// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package events

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type recordingSink struct {
	mu     sync.Mutex
	quotes map[string]*models.Quote
	got    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{quotes: make(map[string]*models.Quote), got: make(chan struct{}, 16)}
}

func (s *recordingSink) BroadcastPriceUpdate(q *models.Quote) {
	s.mu.Lock()
	s.quotes[q.Symbol] = q
	s.mu.Unlock()
	s.got <- struct{}{}
}

func TestForwarderDeliversPriceEvents(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })
	sink := newRecordingSink()
	fwd := NewForwarder(bus, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Serve(ctx) }()

	select {
	case <-fwd.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("forwarder never became ready")
	}

	quotes := []*models.Quote{
		{Symbol: "AAPL", Price: 151, Change: 1.5},
		nil,
		{Symbol: "MSFT", Price: 410.25, Change: -2},
	}
	if err := bus.PublishQuotes(context.Background(), quotes); err != nil {
		t.Fatalf("PublishQuotes: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-sink.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of 2 events", i)
		}
	}

	sink.mu.Lock()
	if q := sink.quotes["AAPL"]; q == nil || q.Price != 151 || q.Change != 1.5 {
		t.Errorf("AAPL = %+v", q)
	}
	if q := sink.quotes["MSFT"]; q == nil || q.Price != 410.25 {
		t.Errorf("MSFT = %+v", q)
	}
	sink.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestPublishWithoutQuotes(t *testing.T) {
	t.Parallel()
	bus := NewBus(nil)
	defer bus.Close()
	if err := bus.PublishQuotes(context.Background(), nil); err != nil {
		t.Errorf("PublishQuotes(nil) = %v", err)
	}
}

func TestForwarderString(t *testing.T) {
	t.Parallel()
	if got := NewForwarder(NewBus(nil), newRecordingSink()).String(); got != "price-forwarder" {
		t.Errorf("String() = %q", got)
	}
}
