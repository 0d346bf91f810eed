// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// PriceSink receives forwarded price events. *websocket.Hub satisfies it.
type PriceSink interface {
	BroadcastPriceUpdate(q *models.Quote)
}

// Forwarder routes TopicPriceUpdates to a PriceSink. It implements
// suture.Service; each Serve call builds a fresh router.
type Forwarder struct {
	bus  *Bus
	sink PriceSink

	readyOnce sync.Once
	ready     chan struct{}
}

// NewForwarder creates a forwarder.
func NewForwarder(bus *Bus, sink PriceSink) *Forwarder {
	return &Forwarder{bus: bus, sink: sink, ready: make(chan struct{})}
}

// Serve runs the router until ctx is cancelled.
func (f *Forwarder) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, f.bus.logger)
	if err != nil {
		return fmt.Errorf("create price router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler("price-forwarder", TopicPriceUpdates, f.bus.Subscriber(), f.handle)

	go func() {
		select {
		case <-router.Running():
			f.readyOnce.Do(func() { close(f.ready) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("price router: %w", err)
	}
	return ctx.Err()
}

// Ready is closed once the first router is subscribed.
func (f *Forwarder) Ready() <-chan struct{} {
	return f.ready
}

// String implements fmt.Stringer for suture logging.
func (f *Forwarder) String() string {
	return "price-forwarder"
}

// handle acks malformed payloads after logging them; redelivery would not
// fix them.
func (f *Forwarder) handle(msg *message.Message) error {
	var ev PriceEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed price event")
		return nil
	}
	f.sink.BroadcastPriceUpdate(ev.Quote())
	return nil
}
