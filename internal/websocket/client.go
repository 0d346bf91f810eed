// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendQueueSize  = 64
)

// State is a connection's position in the auth state machine.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// clientIDCounter gives clients a stable delivery order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id    uint64
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32

	// userID is owned by the hub loop.
	userID string
}

// NewClient creates a new unauthenticated Client
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// readPump reads client messages and drives the auth state machine. It never
// writes to the connection; replies go through the hub.
func (c *Client) readPump() {
	defer func() {
		c.state.Store(int32(StateClosed))
		sendOrDone(c.hub.done, c.hub.Unregister, c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("ignoring malformed websocket message")
			continue
		}

		switch msg.Type {
		case MessageTypePing:
			c.hub.enqueue(outbound{client: c, msgType: MessageTypePong, payload: pongPayload})
		case MessageTypeAuth:
			if c.State() != StateUnauthenticated {
				continue
			}
			if !c.authenticate(msg.Token) {
				return
			}
		}
	}
}

// authenticate validates token and hands the result to the hub. It returns
// false when the connection must close.
func (c *Client) authenticate(token string) bool {
	claims, err := c.hub.validator.ValidateToken(token)
	if err != nil {
		metrics.WSAuthAttempts.WithLabelValues("failure").Inc()
		reply := AuthReply{Type: MessageTypeAuth, Status: AuthStatusError, Error: "Authentication failed"}
		sendOrDone(c.hub.done, c.hub.auth, authResult{client: c, payload: mustMarshal(reply)})
		return false
	}

	metrics.WSAuthAttempts.WithLabelValues("success").Inc()
	c.state.Store(int32(StateAuthenticated))
	reply := AuthReply{Type: MessageTypeAuth, Status: AuthStatusSuccess}
	return sendOrDone(c.hub.done, c.hub.auth, authResult{client: c, userID: claims.UserID, payload: mustMarshal(reply)})
}

// writePump owns every write to the connection. It exits when the hub
// closes the send queue or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
