// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pulsetrader/internal/metrics"
	"github.com/tomtom215/pulsetrader/internal/models"
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 512

// FinnhubConfig configures FinnhubClient.
type FinnhubConfig struct {
	BaseURL string
	APIKey  string

	// RateLimit is requests per second; zero disables local limiting.
	RateLimit float64
	RateBurst int

	HTTPClient *http.Client
}

// FinnhubClient talks to the Finnhub REST API.
type FinnhubClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Provider = (*FinnhubClient)(nil)

// NewFinnhubClient creates a client. The caller bounds every call with a
// context deadline; the HTTP client itself has no timeout.
func NewFinnhubClient(cfg FinnhubConfig) *FinnhubClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &FinnhubClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  hc,
		limiter: limiter,
	}
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
	Volume        float64 `json:"v"`
}

type finnhubSearch struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
		Region        string `json:"region"`
		Currency      string `json:"currency"`
	} `json:"result"`
}

type finnhubNews struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Image    string `json:"image"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// Quote calls /quote. Finnhub answers unknown symbols with 200 and c == 0.
func (c *FinnhubClient) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var q finnhubQuote
	if err := c.getJSON(ctx, "quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return nil, err
	}
	if q.Current == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	asOf := time.Now().UTC()
	if q.Timestamp > 0 {
		asOf = time.Unix(q.Timestamp, 0).UTC()
	}
	return &models.Quote{
		Symbol:        symbol,
		Price:         q.Current,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		AsOf:          asOf,
	}, nil
}

// Search calls /search.
func (c *FinnhubClient) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	var s finnhubSearch
	if err := c.getJSON(ctx, "search", url.Values{"q": {query}}, &s); err != nil {
		return nil, err
	}
	out := make([]models.SymbolMatch, 0, len(s.Result))
	for _, r := range s.Result {
		out = append(out, models.SymbolMatch{
			Symbol:   r.Symbol,
			Name:     r.Description,
			Type:     r.Type,
			Region:   r.Region,
			Currency: r.Currency,
		})
	}
	return out, nil
}

// CompanyNews calls /company-news for [from, to].
func (c *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	var raw []finnhubNews
	params := url.Values{
		"symbol": {symbol},
		"from":   {from.Format(time.DateOnly)},
		"to":     {to.Format(time.DateOnly)},
	}
	if err := c.getJSON(ctx, "company-news", params, &raw); err != nil {
		return nil, err
	}
	out := make([]models.NewsItem, 0, len(raw))
	for _, n := range raw {
		out = append(out, models.NewsItem{
			Headline: n.Headline,
			Summary:  n.Summary,
			Source:   n.Source,
			URL:      n.URL,
			Image:    n.Image,
			Datetime: time.Unix(n.Datetime, 0).UTC(),
		})
	}
	return out, nil
}

// getJSON performs one GET and maps every failure onto a tagged error.
func (c *FinnhubClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordQuoteRequest(endpoint, Reason(err), time.Since(start))
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, werr)
			}
			return fmt.Errorf("%w: local limiter: %v", ErrRateLimited, werr)
		}
	}

	params.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, endpoint)
		}
		return fmt.Errorf("%w: %s: %s", ErrUpstreamUnavailable, endpoint, redactToken(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429", ErrRateLimited, endpoint)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned %d: %s",
			ErrUpstreamUnavailable, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, endpoint)
		}
		return fmt.Errorf("%w: decode %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	return nil
}

// redactToken keeps the API key out of error messages that echo the URL.
func redactToken(msg, token string) string {
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "REDACTED")
}
