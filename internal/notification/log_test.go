// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/pulsetrader/internal/database"
	"github.com/tomtom215/pulsetrader/internal/logging"
	"github.com/tomtom215/pulsetrader/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func logFactories(t *testing.T, retention int) map[string]Log {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Log{
		"memory": NewMemoryLog(retention),
		"badger": NewBadgerLog(db.DB, retention),
	}
}

func appendN(t *testing.T, l Log, user string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := l.Append(context.Background(), &models.Notification{
			UserID:   user,
			Message:  fmt.Sprintf("message %d", i),
			Severity: models.SeverityInfo,
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
}

func TestRetentionEvictsOldest(t *testing.T) {
	t.Parallel()

	for name, l := range logFactories(t, DefaultRetention) {
		t.Run(name, func(t *testing.T) {
			appendN(t, l, "u1", 50)

			evicted, err := l.Append(context.Background(), &models.Notification{UserID: "u1", Message: "message 51"})
			if err != nil {
				t.Fatal(err)
			}
			if evicted != 1 {
				t.Errorf("evicted = %d, want 1", evicted)
			}

			list, err := l.List(context.Background(), "u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 50 {
				t.Fatalf("len = %d, want 50", len(list))
			}
			if list[0].Message != "message 51" {
				t.Errorf("newest = %q, want message 51", list[0].Message)
			}
			if list[49].Message != "message 2" {
				t.Errorf("oldest = %q, want message 2", list[49].Message)
			}
			for _, n := range list {
				if n.Message == "message 1" {
					t.Error("oldest notification was not evicted")
				}
			}
		})
	}
}

func TestAppendAssignsDefaults(t *testing.T) {
	t.Parallel()

	for name, l := range logFactories(t, 5) {
		t.Run(name, func(t *testing.T) {
			n := &models.Notification{UserID: "u1", Message: "hi"}
			if _, err := l.Append(context.Background(), n); err != nil {
				t.Fatal(err)
			}
			if n.ID == "" || n.CreatedAt.IsZero() || n.Severity != models.SeverityInfo {
				t.Errorf("defaults not applied: %+v", n)
			}
		})
	}
}

func TestMarkReadDeleteUnread(t *testing.T) {
	t.Parallel()

	for name, l := range logFactories(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			appendN(t, l, "u1", 3)
			appendN(t, l, "u2", 1)

			list, _ := l.List(ctx, "u1")
			if c, _ := l.UnreadCount(ctx, "u1"); c != 3 {
				t.Errorf("unread = %d, want 3", c)
			}

			if err := l.MarkRead(ctx, "u1", list[0].ID); err != nil {
				t.Fatalf("MarkRead: %v", err)
			}
			if err := l.MarkRead(ctx, "u1", list[0].ID); err != nil {
				t.Errorf("MarkRead twice: %v", err)
			}
			if c, _ := l.UnreadCount(ctx, "u1"); c != 2 {
				t.Errorf("unread after mark = %d, want 2", c)
			}

			if err := l.Delete(ctx, "u1", list[1].ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			after, _ := l.List(ctx, "u1")
			if len(after) != 2 || after[0].ID != list[0].ID || after[1].ID != list[2].ID {
				t.Errorf("after delete = %+v", after)
			}
			if !after[0].Read {
				t.Error("read flag lost")
			}

			// Another user's id is not visible.
			if err := l.MarkRead(ctx, "u2", list[0].ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("cross-user MarkRead = %v, want ErrNotFound", err)
			}
			if err := l.Delete(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete missing = %v, want ErrNotFound", err)
			}
			if c, _ := l.UnreadCount(ctx, "u2"); c != 1 {
				t.Errorf("u2 unread = %d, want 1", c)
			}
		})
	}
}

func TestEvictedIDIsGone(t *testing.T) {
	t.Parallel()

	for name, l := range logFactories(t, 2) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := &models.Notification{UserID: "u1", Message: "first"}
			if _, err := l.Append(ctx, first); err != nil {
				t.Fatal(err)
			}
			appendN(t, l, "u1", 2)

			if err := l.MarkRead(ctx, "u1", first.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("MarkRead evicted = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestConcurrentAppendsRespectCap(t *testing.T) {
	t.Parallel()

	for name, l := range logFactories(t, DefaultRetention) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 20; i++ {
						if _, err := l.Append(context.Background(), &models.Notification{UserID: "u1", Message: "x"}); err != nil {
							t.Errorf("Append: %v", err)
							return
						}
					}
				}()
			}
			wg.Wait()

			list, err := l.List(context.Background(), "u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != DefaultRetention {
				t.Errorf("len = %d, want %d", len(list), DefaultRetention)
			}
			for i := 1; i < len(list); i++ {
				if list[i].CreatedAt.After(list[i-1].CreatedAt) {
					t.Fatalf("not newest first at %d", i)
				}
			}
		})
	}
}
