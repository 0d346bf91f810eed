// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package events carries in-process price events between the alert
// evaluator and the live channel over a watermill gochannel pub/sub.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// TopicPriceUpdates carries one PriceEvent per resolved quote after a scan.
const TopicPriceUpdates = "prices.updated"

// PriceEvent is the payload on TopicPriceUpdates.
type PriceEvent struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	AsOf          time.Time `json:"asOf"`
}

// Quote converts the event back to a quote.
func (e PriceEvent) Quote() *models.Quote {
	return &models.Quote{
		Symbol:        e.Symbol,
		Price:         e.Price,
		Change:        e.Change,
		ChangePercent: e.ChangePercent,
		AsOf:          e.AsOf,
	}
}

// Bus is the in-process pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates a bus. A nil logger discards watermill's logs.
func NewBus(logger *slog.Logger) *Bus {
	var adapter watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		adapter = watermill.NewSlogLogger(logger)
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, adapter),
		logger: adapter,
	}
}

// PublishQuotes publishes one event per quote. Nil quotes are skipped.
func (b *Bus) PublishQuotes(ctx context.Context, quotes []*models.Quote) error {
	msgs := make([]*message.Message, 0, len(quotes))
	for _, q := range quotes {
		if q == nil {
			continue
		}
		payload, err := json.Marshal(PriceEvent{
			Symbol:        q.Symbol,
			Price:         q.Price,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			AsOf:          q.AsOf,
		})
		if err != nil {
			return fmt.Errorf("marshal price event: %w", err)
		}
		msg := message.NewMessage(uuid.NewString(), payload)
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := b.pubsub.Publish(TopicPriceUpdates, msgs...); err != nil {
		return fmt.Errorf("publish price events: %w", err)
	}
	return nil
}

// Subscriber exposes the bus to routers.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Close shuts the pub/sub down.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
