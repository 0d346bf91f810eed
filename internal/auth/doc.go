// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

/*
Package auth provides local account authentication for PulseTrader.

Key Components:

  - JWTManager: HS256 token generation and validation. Tokens carry the
    user id, email, and role and are valid for the configured TTL (24h).
  - Service: registration and login against a users.Store with bcrypt
    password hashes.
  - Middleware: chi-compatible middleware that requires a Bearer token and
    puts the validated Claims in the request context.

The same JWTManager validates the credential message a WebSocket client sends
after connecting, so the HTTP API and the live channel share one identity.

Error Responses:

  - 401 "Access token required" when no Bearer token is present
  - 403 "Invalid token" when the token fails validation or has expired
*/
package auth
