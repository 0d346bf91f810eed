// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package quote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// finnhubStub serves canned responses per path and counts requests.
type finnhubStub struct {
	server *httptest.Server
	hits   atomic.Int32
	token  atomic.Value
}

func newFinnhubStub(t *testing.T, handler http.HandlerFunc) *finnhubStub {
	t.Helper()
	s := &finnhubStub{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.token.Store(r.URL.Query().Get("token"))
		handler(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *finnhubStub) client() *FinnhubClient {
	return NewFinnhubClient(FinnhubConfig{BaseURL: s.server.URL, APIKey: "test-key"})
}

func newTestAdapter(t *testing.T, p Provider, timeout time.Duration) *Adapter {
	t.Helper()
	a := NewAdapter(p, AdapterConfig{CacheTTL: time.Minute, Timeout: timeout})
	t.Cleanup(a.Close)
	return a
}

func quoteJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestGetQuoteNormalizesAndCaches(t *testing.T) {
	t.Parallel()

	stub := newFinnhubStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("symbol") != "AAPL" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		quoteJSON(w, `{"c":151.25,"d":1.5,"dp":1.0,"t":1767225600}`)
	})
	a := newTestAdapter(t, stub.client(), time.Second)

	for i := 0; i < 3; i++ {
		q, err := a.GetQuote(context.Background(), "  aapl ")
		if err != nil {
			t.Fatalf("GetQuote: %v", err)
		}
		if q.Symbol != "AAPL" || q.Price != 151.25 || q.Change != 1.5 {
			t.Fatalf("quote = %+v", q)
		}
	}

	if got := stub.hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
	if tok, _ := stub.token.Load().(string); tok != "test-key" {
		t.Errorf("token = %q, want test-key", tok)
	}
	if s := a.CacheStats(); s.Hits != 2 {
		t.Errorf("cache hits = %d, want 2", s.Hits)
	}
}

func TestGetQuoteReturnsCopy(t *testing.T) {
	t.Parallel()

	stub := newFinnhubStub(t, func(w http.ResponseWriter, _ *http.Request) {
		quoteJSON(w, `{"c":10}`)
	})
	a := newTestAdapter(t, stub.client(), time.Second)

	q, err := a.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	q.Price = 0

	again, err := a.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if again.Price != 10 {
		t.Errorf("cached price = %v, want 10", again.Price)
	}
}

func TestGetQuoteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		reason  string
	}{
		{"unknown symbol", http.StatusOK, `{"c":0,"d":null,"dp":null}`, ErrNotFound, "not_found"},
		{"rate limited", http.StatusTooManyRequests, `{"error":"API limit reached"}`, ErrRateLimited, "rate_limited"},
		{"server error", http.StatusBadGateway, `upstream exploded`, ErrUpstreamUnavailable, "unavailable"},
		{"bad payload", http.StatusOK, `{"c":`, ErrUpstreamUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := newFinnhubStub(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			a := newTestAdapter(t, stub.client(), time.Second)

			_, err := a.GetQuote(context.Background(), "ZZZZ")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := Reason(err); got != tt.reason {
				t.Errorf("Reason = %q, want %q", got, tt.reason)
			}

			// Failures are not cached.
			_, _ = a.GetQuote(context.Background(), "ZZZZ")
			if got := stub.hits.Load(); got != 2 {
				t.Errorf("upstream hits = %d, want 2", got)
			}
		})
	}
}

func TestGetQuoteEmptySymbol(t *testing.T) {
	t.Parallel()

	stub := newFinnhubStub(t, func(w http.ResponseWriter, _ *http.Request) {
		quoteJSON(w, `{"c":1}`)
	})
	a := newTestAdapter(t, stub.client(), time.Second)

	if _, err := a.GetQuote(context.Background(), "   "); !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("err = %v, want ErrInvalidSymbol", err)
	}
	if got := stub.hits.Load(); got != 0 {
		t.Errorf("upstream hits = %d, want 0", got)
	}
}

func TestGetQuoteTimeout(t *testing.T) {
	t.Parallel()

	stub := newFinnhubStub(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		quoteJSON(w, `{"c":1}`)
	})
	a := newTestAdapter(t, stub.client(), 30*time.Millisecond)

	start := time.Now()
	_, err := a.GetQuote(context.Background(), "SLOW")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Error("ErrTimeout should also match ErrUpstreamUnavailable")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, deadline not applied", elapsed)
	}
}

func TestGetQuoteSharedFetchSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	stub := newFinnhubStub(t, func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		quoteJSON(w, `{"c":151.25,"d":1.5,"dp":1.0,"t":1767225600}`)
	})
	a := newTestAdapter(t, stub.client(), 5*time.Second)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	reqErr := make(chan error, 1)
	go func() {
		_, err := a.GetQuote(reqCtx, "AAPL")
		reqErr <- err
	}()
	<-arrived

	scan := make(chan error, 1)
	go func() {
		q, err := a.GetQuote(context.Background(), "AAPL")
		if err == nil && q.Price != 151.25 {
			err = errors.New("wrong price")
		}
		scan <- err
	}()

	cancelReq()
	if err := <-reqErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}

	close(release)
	select {
	case err := <-scan:
		if err != nil {
			t.Errorf("concurrent caller failed after another caller cancelled: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent caller never returned")
	}
	if got := stub.hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestErrorMessagesRedactToken(t *testing.T) {
	t.Parallel()

	c := NewFinnhubClient(FinnhubConfig{BaseURL: "http://127.0.0.1:1", APIKey: "supersecret"})
	_, err := c.Quote(context.Background(), "AAPL")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if strings.Contains(err.Error(), "supersecret") {
		t.Errorf("error leaks API key: %v", err)
	}
}

func TestSearchAndNews(t *testing.T) {
	t.Parallel()

	var newsFrom, newsTo string
	stub := newFinnhubStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			quoteJSON(w, `{"count":1,"result":[{"description":"APPLE INC","symbol":"AAPL","type":"Common Stock"}]}`)
		case "/company-news":
			newsFrom = r.URL.Query().Get("from")
			newsTo = r.URL.Query().Get("to")
			quoteJSON(w, `[{"headline":"Apple ships","source":"Wire","url":"https://example.com/a","datetime":1767225600}]`)
		default:
			http.NotFound(w, r)
		}
	})

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := NewAdapter(stub.client(), AdapterConfig{Timeout: time.Second, Clock: func() time.Time { return now }})
	t.Cleanup(a.Close)

	matches, err := a.Search(context.Background(), "apple")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Symbol != "AAPL" || matches[0].Name != "APPLE INC" {
		t.Errorf("matches = %+v", matches)
	}

	news, err := a.News(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(news) != 1 || news[0].Headline != "Apple ships" {
		t.Errorf("news = %+v", news)
	}
	if newsFrom != "2026-03-03" || newsTo != "2026-03-10" {
		t.Errorf("news range = %s..%s", newsFrom, newsTo)
	}
}

func TestLocalRateLimiterHonoursDeadline(t *testing.T) {
	t.Parallel()

	stub := newFinnhubStub(t, func(w http.ResponseWriter, _ *http.Request) {
		quoteJSON(w, `{"c":1}`)
	})
	c := NewFinnhubClient(FinnhubConfig{BaseURL: stub.server.URL, APIKey: "k", RateLimit: 0.001, RateBurst: 1})

	if _, err := c.Quote(context.Background(), "A"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Quote(ctx, "B"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if got := stub.hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

// fakeProvider returns a fixed error and counts calls.
type fakeProvider struct {
	err   error
	calls atomic.Int32
}

func (f *fakeProvider) Quote(context.Context, string) (*models.Quote, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *fakeProvider) Search(context.Context, string) ([]models.SymbolMatch, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *fakeProvider) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.NewsItem, error) {
	f.calls.Add(1)
	return nil, f.err
}

func testBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
}

func TestBreakerOpensOnUpstreamFailures(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{err: ErrUpstreamUnavailable}
	b := NewBreakerProvider(inner, testBreakerConfig("test-open"))

	for i := 0; i < 2; i++ {
		if _, err := b.Quote(context.Background(), "X"); !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if got := b.State(); got != "open" {
		t.Fatalf("State = %q, want open", got)
	}

	_, err := b.Quote(context.Background(), "X")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("open breaker err = %v, want ErrUpstreamUnavailable", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2 (third rejected)", got)
	}
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{err: ErrNotFound}
	b := NewBreakerProvider(inner, testBreakerConfig("test-notfound"))

	for i := 0; i < 5; i++ {
		if _, err := b.Quote(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State = %q, want closed", got)
	}
}
