// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package dispatch delivers a notification to a user on every channel.
//
// The notification log is written first and is the only channel whose
// failure is returned. Email and the live channel are best effort: their
// failures are logged and counted but never undo or fail the dispatch.
// Email is handed to a Mailer and sent on its workers, never inline.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
	"github.com/tomtom215/pulsetrader/internal/notification"
)

// Channel names used in metrics.
const (
	ChannelEmail = "email"
	ChannelLive  = "live"
)

// UserLookup resolves delivery preferences. users.Store satisfies it.
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// LiveBroadcaster pushes a notification to the user's live connections and
// reports whether the user had any. *websocket.Hub satisfies it.
type LiveBroadcaster interface {
	SendNotification(n *models.Notification) bool
}

// Option customizes one Dispatch call.
type Option func(*dispatchOptions)

type dispatchOptions struct {
	symbol  string
	quote   *models.Quote
	noEmail bool
}

// WithSymbol tags the notification with a ticker, which makes it an alert
// for email purposes.
func WithSymbol(symbol string) Option {
	return func(o *dispatchOptions) { o.symbol = symbol }
}

// WithQuote adds the quote that triggered the notification to the email body.
func WithQuote(q *models.Quote) Option {
	return func(o *dispatchOptions) {
		o.quote = q
		if o.symbol == "" && q != nil {
			o.symbol = q.Symbol
		}
	}
}

// WithoutEmail limits delivery to the log and the live channel.
func WithoutEmail() Option {
	return func(o *dispatchOptions) { o.noEmail = true }
}

// Dispatcher fans a notification out to the log, email, and live channel.
type Dispatcher struct {
	log    notification.Log
	users  UserLookup
	mailer *Mailer
	live   LiveBroadcaster
}

// New creates a dispatcher. mailer and live may be nil, which disables
// that channel.
func New(log notification.Log, users UserLookup, mailer *Mailer, live LiveBroadcaster) *Dispatcher {
	return &Dispatcher{log: log, users: users, mailer: mailer, live: live}
}

// Dispatch stores the notification and delivers it. The returned error is
// non-nil only when the log append fails, in which case nothing else is
// attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, message string, severity models.Severity, opts ...Option) (*models.Notification, error) {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := &models.Notification{
		UserID:   userID,
		Message:  message,
		Severity: severity,
		Symbol:   o.symbol,
	}
	if _, err := d.log.Append(ctx, n); err != nil {
		return nil, fmt.Errorf("append notification: %w", err)
	}

	logger := logging.Ctx(ctx).With().
		Str("component", "dispatch").
		Str("user_id", userID).
		Str("notification_id", n.ID).
		Logger()

	if !o.noEmail {
		d.email(ctx, n, o.quote, &logger)
	}

	if d.live != nil {
		if d.live.SendNotification(n) {
			metrics.RecordDispatch(ChannelLive, "sent")
		} else {
			metrics.RecordDispatch(ChannelLive, "skipped")
		}
	}

	logger.Debug().Str("severity", string(n.Severity)).Msg("Notification dispatched")
	return n, nil
}

func (d *Dispatcher) email(ctx context.Context, n *models.Notification, q *models.Quote, logger *zerolog.Logger) {
	if d.mailer == nil || d.users == nil {
		metrics.RecordDispatch(ChannelEmail, "skipped")
		return
	}

	u, err := d.users.Get(ctx, n.UserID)
	if err != nil {
		metrics.RecordDispatch(ChannelEmail, "failed")
		logger.Warn().Err(err).Msg("Email skipped: user lookup failed")
		return
	}
	if !u.Settings.EmailNotifications || u.Email == "" {
		metrics.RecordDispatch(ChannelEmail, "skipped")
		return
	}

	body, err := emailBody(n, q)
	if err != nil {
		metrics.RecordDispatch(ChannelEmail, "failed")
		logger.Error().Err(err).Msg("Email render failed")
		return
	}
	job := mailJob{to: u.Email, subject: emailSubject(n), html: body, userID: n.UserID, notifID: n.ID}
	if !d.mailer.enqueue(job) {
		metrics.RecordDispatch(ChannelEmail, "dropped")
		logger.Warn().Msg("Email dropped: mail queue full")
		return
	}
	metrics.RecordDispatch(ChannelEmail, "queued")
}
