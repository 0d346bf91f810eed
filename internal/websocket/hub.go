// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// ErrHubClosed is returned by Attach after the hub has stopped.
var ErrHubClosed = errors.New("websocket hub closed")

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// TokenValidator checks the credential carried by an auth message.
// *auth.JWTManager satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// outbound is one frame waiting for the hub loop. Exactly one targeting
// mode applies: client, then userID, then every authenticated connection.
type outbound struct {
	client  *Client
	userID  string
	msgType string
	payload []byte
}

// authResult is the outcome of a credential message. An empty userID
// rejects the client.
type authResult struct {
	client  *Client
	userID  string
	payload []byte
}

// Hub maintains the set of active clients and routes messages to them
type Hub struct {
	clients   map[*Client]bool
	users     map[string]map[*Client]bool
	validator TokenValidator

	Register   chan *Client
	Unregister chan *Client
	auth       chan authResult
	broadcast  chan outbound

	done     chan struct{}
	doneOnce sync.Once
	mu       sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(validator TokenValidator) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		validator:  validator,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		auth:       make(chan authResult),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
}

// RunWithContext runs the hub loop until ctx is cancelled, then closes every
// client and returns ctx.Err().
//
// Lifecycle events (register, auth, unregister) are drained before any
// pending broadcast so a message never races ahead of the binding it
// depends on.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.addClient(c)
			continue
		case r := <-h.auth:
			h.applyAuth(r)
			continue
		case c := <-h.Unregister:
			h.removeClient(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.Register:
			h.addClient(c)
		case r := <-h.auth:
			h.applyAuth(r)
		case c := <-h.Unregister:
			h.removeClient(c)
		case o := <-h.broadcast:
			h.deliver(o)
		}
	}
}

// Attach registers an upgraded connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) (*Client, error) {
	c := NewClient(h, conn)
	if !sendOrDone(h.done, h.Register, c) {
		return nil, ErrHubClosed
	}
	c.Start()
	return c, nil
}

// SendNotification pushes n to every authenticated connection of n.UserID.
// It reports false when the user has no open connection.
func (h *Hub) SendNotification(n *models.Notification) bool {
	if h.UserConnectionCount(n.UserID) == 0 {
		return false
	}
	h.SendToUser(n.UserID, MessageTypeNotification, n)
	return true
}

// SendToUser pushes {type, data} to every authenticated connection of userID.
func (h *Hub) SendToUser(userID, msgType string, data any) {
	payload, err := MarshalMessage(Message{Type: msgType, Data: data})
	if err != nil {
		logging.Error().Err(err).Str("message_type", msgType).Msg("failed to marshal websocket message")
		return
	}
	h.enqueue(outbound{userID: userID, msgType: msgType, payload: payload})
}

// BroadcastPriceUpdate pushes a price_update to every authenticated connection.
func (h *Hub) BroadcastPriceUpdate(q *models.Quote) {
	payload, err := MarshalMessage(NewPriceUpdate(q))
	if err != nil {
		logging.Error().Err(err).Str("symbol", q.Symbol).Msg("failed to marshal price update")
		return
	}
	h.enqueue(outbound{msgType: MessageTypePriceUpdate, payload: payload})
}

func (h *Hub) enqueue(o outbound) {
	select {
	case h.broadcast <- o:
	default:
		logging.Warn().Str("message_type", o.msgType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AuthenticatedCount returns the number of connections bound to a user.
func (h *Hub) AuthenticatedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}

// UserConnectionCount returns the number of connections bound to userID.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) applyAuth(r authResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := r.client
	if !h.clients[c] {
		return
	}
	if r.userID == "" {
		// reply is queued before the close so the write pump flushes it
		trySend(c, r.payload)
		h.removeLocked(c)
		return
	}

	c.userID = r.userID
	set := h.users[r.userID]
	if set == nil {
		set = make(map[*Client]bool)
		h.users[r.userID] = set
	}
	set[c] = true
	metrics.WSAuthenticated.Inc()
	if !trySend(c, r.payload) {
		h.dropLocked(c)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		h.removeLocked(c)
	}
}

// removeLocked unregisters c and closes its send queue. h.mu must be held.
func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c)
	if c.userID != "" {
		if set := h.users[c.userID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.users, c.userID)
			}
		}
		metrics.WSAuthenticated.Dec()
	}
	close(c.send)
	metrics.WSConnections.Dec()
	logging.Debug().Uint64("client_id", c.id).Str("user_id", c.userID).Msg("websocket client disconnected")
}

func (h *Hub) dropLocked(c *Client) {
	metrics.WSDroppedClients.Inc()
	logging.Warn().Uint64("client_id", c.id).Str("user_id", c.userID).Msg("websocket send queue full, dropping client")
	h.removeLocked(c)
}

// deliver queues o on every target in client id order. Clients whose queue
// is full are dropped.
func (h *Hub) deliver(o outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	switch {
	case o.client != nil:
		if h.clients[o.client] {
			targets = append(targets, o.client)
		}
	case o.userID != "":
		for c := range h.users[o.userID] {
			targets = append(targets, c)
		}
	default:
		for _, set := range h.users {
			for c := range set {
				targets = append(targets, c)
			}
		}
	}
	if len(targets) == 0 {
		return
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	sent := 0
	for _, c := range targets {
		if trySend(c, o.payload) {
			sent++
			continue
		}
		h.dropLocked(c)
	}
	metrics.WSMessagesSent.WithLabelValues(o.msgType).Add(float64(sent))
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func trySend(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func sendOrDone[T any](done <-chan struct{}, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-done:
		return false
	}
}
