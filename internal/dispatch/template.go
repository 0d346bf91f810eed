// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package dispatch

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/tomtom215/pulsetrader/internal/models"
)

var alertEmail = template.Must(template.New("alert").Parse(`<h2>Price Alert Triggered</h2>
<p>{{.Message}}</p>
{{- if .Change}}
<p>Current change: {{.Change}}</p>
{{- end}}
<p>Sent {{.Timestamp}}</p>
<p>Check your PulseTrader dashboard for more details.</p>
`))

type alertEmailData struct {
	Message   string
	Change    string
	Timestamp string
}

// emailSubject returns the subject line for n.
func emailSubject(n *models.Notification) string {
	if n.Symbol != "" {
		return "PulseTrader Alert: " + n.Symbol
	}
	return "PulseTrader Notification"
}

// emailBody renders the HTML body. q may be nil.
func emailBody(n *models.Notification, q *models.Quote) (string, error) {
	data := alertEmailData{
		Message:   n.Message,
		Timestamp: n.CreatedAt.UTC().Format(time.RFC1123),
	}
	if q != nil {
		data.Change = formatChange(q.Change, q.ChangePercent)
	}

	var buf bytes.Buffer
	if err := alertEmail.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}

// formatChange renders e.g. "+1.25 (0.84%)".
func formatChange(change, percent float64) string {
	sign := ""
	if change >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f (%.2f%%)", sign, change, percent)
}
