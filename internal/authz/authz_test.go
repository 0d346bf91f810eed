// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package authz

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/pulsetrader/internal/auth"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(Config{CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEnforceEmbeddedPolicy(t *testing.T) {
	t.Parallel()
	e := newTestEnforcer(t)

	tests := []struct {
		role, object, action string
		want                 bool
	}{
		{models.RoleUser, "/api/watchlist", "read", true},
		{models.RoleUser, "/api/watchlist/AAPL", "delete", true},
		{models.RoleUser, "/api/notifications/abc/read", "write", true},
		{models.RoleUser, "/api/admin/scan", "write", false},
		{models.RoleUser, "/api/admin/stats", "read", false},
		{models.RoleAdmin, "/api/admin/scan", "write", true},
		{models.RoleAdmin, "/api/watchlist", "read", true},
		{"", "/api/watchlist", "read", false},
		{"guest", "/api/stocks/search", "read", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.action+" "+tt.object, func(t *testing.T) {
			// run twice to exercise the cached path
			for i := 0; i < 2; i++ {
				got, err := e.Enforce(tt.role, tt.object, tt.action)
				if err != nil {
					t.Fatal(err)
				}
				if got != tt.want {
					t.Errorf("Enforce = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestEnforcePolicyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "policy.csv")
	if err := os.WriteFile(path, []byte("p, user, /api/admin/*, read\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := NewEnforcer(Config{PolicyPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if ok, _ := e.Enforce(models.RoleUser, "/api/admin/stats", "read"); !ok {
		t.Error("file policy not applied")
	}
	if ok, _ := e.Enforce(models.RoleUser, "/api/watchlist", "read"); ok {
		t.Error("embedded policy leaked into file policy")
	}
}

func TestAuthorizeRequest(t *testing.T) {
	t.Parallel()
	mw := NewMiddleware(newTestEnforcer(t))
	h := mw.AuthorizeRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		claims *auth.Claims
		method string
		path   string
		want   int
	}{
		{"no claims", nil, http.MethodPost, "/api/admin/scan", http.StatusForbidden},
		{"user on admin", &auth.Claims{UserID: "u", Role: models.RoleUser}, http.MethodPost, "/api/admin/scan", http.StatusForbidden},
		{"admin on admin", &auth.Claims{UserID: "a", Role: models.RoleAdmin}, http.MethodPost, "/api/admin/scan", http.StatusNoContent},
		{"admin stats", &auth.Claims{UserID: "a", Role: models.RoleAdmin}, http.MethodGet, "/api/admin/stats", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			if tt.claims != nil {
				req = req.WithContext(auth.ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMethodToAction(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "write",
		http.MethodPut:    "write",
		http.MethodPatch:  "write",
		http.MethodDelete: "delete",
	}
	for method, want := range cases {
		if got := methodToAction(method); got != want {
			t.Errorf("methodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}
