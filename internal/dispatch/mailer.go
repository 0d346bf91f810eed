// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/metrics"
)

// Mailer defaults.
const (
	DefaultMailWorkers   = 4
	DefaultMailQueueSize = 256
)

// MailerConfig bounds the email queue.
type MailerConfig struct {
	// Workers is the number of concurrent SMTP sends.
	Workers int

	// QueueSize is the number of emails that may wait for a worker. An email
	// arriving at a full queue is dropped.
	QueueSize int
}

type mailJob struct {
	to, subject, html string
	userID, notifID   string
}

// Mailer sends emails off the dispatching goroutine. Dispatch only enqueues,
// so a slow or unreachable SMTP server never delays an alert scan. Mailer
// runs as a suture service; queued mail waits until Serve is running.
type Mailer struct {
	sender  Sender
	jobs    chan mailJob
	workers int
	pending sync.WaitGroup
}

// NewMailer wraps sender in a bounded queue.
func NewMailer(sender Sender, cfg MailerConfig) *Mailer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultMailWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultMailQueueSize
	}
	return &Mailer{
		sender:  sender,
		jobs:    make(chan mailJob, cfg.QueueSize),
		workers: cfg.Workers,
	}
}

// enqueue never blocks. It reports false when the queue is full.
func (m *Mailer) enqueue(job mailJob) bool {
	m.pending.Add(1)
	select {
	case m.jobs <- job:
		metrics.EmailQueueDepth.Set(float64(len(m.jobs)))
		return true
	default:
		m.pending.Done()
		return false
	}
}

// Serve implements suture.Service. On cancellation it stops taking jobs and
// waits for in-flight sends, each bounded by the sender's own timeout.
func (m *Mailer) Serve(ctx context.Context) error {
	g := new(errgroup.Group)
	g.SetLimit(m.workers)
	sendCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case job := <-m.jobs:
			metrics.EmailQueueDepth.Set(float64(len(m.jobs)))
			g.Go(func() error {
				defer m.pending.Done()
				m.deliver(sendCtx, job)
				return nil
			})
		}
	}
}

func (m *Mailer) deliver(ctx context.Context, job mailJob) {
	if err := m.sender.Send(ctx, job.to, job.subject, job.html); err != nil {
		metrics.RecordDispatch(ChannelEmail, "failed")
		logging.Warn().
			Err(err).
			Str("component", "mailer").
			Str("user_id", job.userID).
			Str("notification_id", job.notifID).
			Msg("Email delivery failed")
		return
	}
	metrics.RecordDispatch(ChannelEmail, "sent")
}

// String implements fmt.Stringer for suture logging.
func (m *Mailer) String() string {
	return "email-mailer"
}
