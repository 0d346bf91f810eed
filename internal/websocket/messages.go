// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulsetrader/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypeAuth         = "auth"
	MessageTypeNotification = "notification"
	MessageTypePriceUpdate  = "price_update"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Auth reply statuses.
const (
	AuthStatusSuccess = "success"
	AuthStatusError   = "error"
)

// Message is the envelope for data-carrying server messages.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InboundMessage is anything a client sends.
type InboundMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// AuthReply answers a credential message.
type AuthReply struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PriceUpdate is pushed to every authenticated connection after a scan.
type PriceUpdate struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// NewPriceUpdate builds a price_update message from a quote.
func NewPriceUpdate(q *models.Quote) PriceUpdate {
	return PriceUpdate{
		Type:   MessageTypePriceUpdate,
		Symbol: q.Symbol,
		Price:  q.Price,
		Change: q.Change,
	}
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

var pongPayload = mustMarshal(Message{Type: MessageTypePong})

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
