// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// stubValidator accepts "token-<userID>".
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.Claims, error) {
	user, ok := strings.CutPrefix(token, "token-")
	if !ok || user == "" {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{UserID: user}, nil
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(stubValidator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := hub.Attach(conn); err != nil {
			_ = conn.Close()
		}
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, _ := json.Marshal(v)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	writeJSON(t, conn, InboundMessage{Type: MessageTypeAuth, Token: "token-" + userID})
	var reply AuthReply
	readJSON(t, conn, &reply)
	if reply.Type != MessageTypeAuth || reply.Status != AuthStatusSuccess {
		t.Fatalf("auth reply = %+v", reply)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuthSuccessAndNotificationRouting(t *testing.T) {
	hub, srv := startHub(t)

	if hub.SendNotification(&models.Notification{ID: "n0", UserID: "u1", Message: "nobody listening"}) {
		t.Error("SendNotification reported delivery with no connections")
	}

	u1 := dial(t, srv)
	u2 := dial(t, srv)
	authenticate(t, u1, "u1")
	authenticate(t, u2, "u2")
	waitFor(t, func() bool { return hub.AuthenticatedCount() == 2 })

	if !hub.SendNotification(&models.Notification{ID: "n1", UserID: "u1", Message: "AAPL reached $151.00 (target: $150.00)"}) {
		t.Error("SendNotification to a connected user reported no delivery")
	}
	hub.SendNotification(&models.Notification{ID: "n2", UserID: "u2", Message: "for u2"})

	var msg struct {
		Type string              `json:"type"`
		Data models.Notification `json:"data"`
	}
	readJSON(t, u1, &msg)
	if msg.Type != MessageTypeNotification || msg.Data.ID != "n1" {
		t.Errorf("u1 got %+v", msg)
	}
	readJSON(t, u2, &msg)
	if msg.Data.ID != "n2" {
		t.Errorf("u2 got %+v, want only its own notification", msg)
	}
}

func TestAuthFailureClosesConnection(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	writeJSON(t, conn, InboundMessage{Type: MessageTypeAuth, Token: "garbage"})
	var reply AuthReply
	readJSON(t, conn, &reply)
	if reply.Status != AuthStatusError || reply.Error == "" {
		t.Errorf("reply = %+v", reply)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after failed auth")
	}
	waitFor(t, func() bool { return hub.GetClientCount() == 0 })
}

func TestUnauthenticatedReceivesNoBroadcasts(t *testing.T) {
	hub, srv := startHub(t)
	anon := dial(t, srv)
	authed := dial(t, srv)
	authenticate(t, authed, "u1")
	waitFor(t, func() bool { return hub.GetClientCount() == 2 && hub.AuthenticatedCount() == 1 })

	hub.BroadcastPriceUpdate(&models.Quote{Symbol: "AAPL", Price: 151, Change: 1.5})

	var pu PriceUpdate
	readJSON(t, authed, &pu)
	if pu.Type != MessageTypePriceUpdate || pu.Symbol != "AAPL" || pu.Price != 151 || pu.Change != 1.5 {
		t.Errorf("price update = %+v", pu)
	}

	// an unauthenticated client only ever sees its own pong
	writeJSON(t, anon, InboundMessage{Type: MessageTypePing})
	var pong Message
	readJSON(t, anon, &pong)
	if pong.Type != MessageTypePong {
		t.Errorf("anon first message = %+v, want pong", pong)
	}
}

func TestSecondAuthIgnored(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	authenticate(t, conn, "u1")

	writeJSON(t, conn, InboundMessage{Type: MessageTypeAuth, Token: "token-u2"})
	writeJSON(t, conn, InboundMessage{Type: MessageTypePing})
	var pong Message
	readJSON(t, conn, &pong)
	if pong.Type != MessageTypePong {
		t.Fatalf("got %+v, want pong with no second auth reply", pong)
	}
	if hub.UserConnectionCount("u1") != 1 || hub.UserConnectionCount("u2") != 0 {
		t.Error("second auth rebound the connection")
	}
}

func TestOrderedDeliveryPerUser(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	authenticate(t, conn, "u1")
	waitFor(t, func() bool { return hub.UserConnectionCount("u1") == 1 })

	for i := 0; i < 20; i++ {
		hub.SendToUser("u1", MessageTypeNotification, i)
	}
	for want := 0; want < 20; want++ {
		var msg struct {
			Data int `json:"data"`
		}
		readJSON(t, conn, &msg)
		if msg.Data != want {
			t.Fatalf("message %d out of order: got %d", want, msg.Data)
		}
	}
}

func TestFullQueueDropsClient(t *testing.T) {
	t.Parallel()
	hub := NewHub(stubValidator{})

	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan []byte, 1)}
	fast := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan []byte, 8)}
	for _, c := range []*Client{slow, fast} {
		hub.addClient(c)
	}
	hub.applyAuth(authResult{client: slow, userID: "u1", payload: []byte(`{}`)})
	hub.applyAuth(authResult{client: fast, userID: "u1", payload: []byte(`{}`)})

	// slow's single slot holds the auth reply, so the next frame drops it
	hub.deliver(outbound{userID: "u1", msgType: MessageTypeNotification, payload: []byte(`{"n":1}`)})

	if hub.UserConnectionCount("u1") != 1 {
		t.Fatalf("connections = %d, want 1", hub.UserConnectionCount("u1"))
	}
	if hub.clients[slow] {
		t.Error("slow client still registered")
	}
	if len(fast.send) != 2 {
		t.Errorf("fast queue = %d, want 2", len(fast.send))
	}
}

func TestAttachAfterShutdown(t *testing.T) {
	t.Parallel()
	hub := NewHub(stubValidator{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.RunWithContext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunWithContext = %v", err)
	}
	if _, err := hub.Attach(nil); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Attach = %v, want ErrHubClosed", err)
	}
}
