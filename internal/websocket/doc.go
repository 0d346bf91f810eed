// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

/*
Package websocket provides the authenticated live update channel.

Key Components:

  - Hub: owns every connection, indexes authenticated connections by user id,
    and delivers messages from a single goroutine (RunWithContext).
  - Client: one gorilla/websocket connection with a read pump and a write
    pump. All outbound frames go through the client's buffered send queue.

Connection States:

	connecting -> unauthenticated -> authenticated -> closed

A connection starts unauthenticated and receives nothing but pong replies until
it sends one credential message:

	{"type":"auth","token":"<jwt>"}

On success the hub binds the user id and replies {"type":"auth","status":"success"}.
On failure it replies {"type":"auth","status":"error","error":"..."} and closes
the connection. Auth messages on an authenticated connection are ignored.

Server Messages:

  - notification: {"type":"notification","data":{...}} to every connection of
    the notification's user
  - price_update: {"type":"price_update","symbol":"AAPL","price":151,"change":1.2}
    to every authenticated connection
  - pong: reply to a client {"type":"ping"}

Delivery:

Messages for one user are delivered in the order they were issued. A client
whose send queue is full is disconnected; reconnecting is the client's job.
*/
package websocket
