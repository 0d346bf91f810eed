// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, clock *fakeClock) *Cache[int] {
	t.Helper()
	c := New[int](ttl, WithClock(clock.Now), WithSweepInterval(0))
	t.Cleanup(c.Stop)
	return c
}

func TestGetSet(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, newFakeClock())

	if _, ok := c.Get("AAPL"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set("AAPL", 151)
	v, ok := c.Get("AAPL")
	if !ok || v != 151 {
		t.Fatalf("Get = (%d, %v), want (151, true)", v, ok)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Keys != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestExpiredEntryNeverReturned(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	c := newTestCache(t, time.Minute, clock)

	c.Set("AAPL", 151)
	clock.Advance(59 * time.Second)
	if _, ok := c.Get("AAPL"); !ok {
		t.Fatal("entry younger than TTL should hit")
	}
	clock.Advance(time.Second)
	if _, ok := c.Get("AAPL"); ok {
		t.Fatal("entry at TTL age must not be returned")
	}
	if s := c.Stats(); s.Evictions != 1 || s.Keys != 0 {
		t.Errorf("Stats = %+v, want 1 eviction and 0 keys", s)
	}
}

func TestGetOrLoadCachesSuccess(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, newFakeClock())

	var calls int
	load := func(context.Context) (int, error) { calls++; return 42, nil }

	v, hit, err := c.GetOrLoad(context.Background(), "MSFT", load)
	if err != nil || v != 42 || hit {
		t.Fatalf("first GetOrLoad = (%d, %v, %v)", v, hit, err)
	}
	v, hit, err = c.GetOrLoad(context.Background(), "MSFT", load)
	if err != nil || v != 42 || !hit {
		t.Fatalf("second GetOrLoad = (%d, %v, %v)", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, newFakeClock())
	boom := errors.New("upstream down")

	if _, _, err := c.GetOrLoad(context.Background(), "BAD", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if _, ok := c.Get("BAD"); ok {
		t.Fatal("failed load must not be cached")
	}
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, newFakeClock())

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := c.GetOrLoad(context.Background(), "NVDA", load)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("load called %d times, want 1", got)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("results[%d] = %d, want 7", i, v)
		}
	}
}

func TestSweepAndClear(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	c := newTestCache(t, time.Minute, clock)

	c.Set("A", 1)
	c.Set("B", 2)
	clock.Advance(2 * time.Minute)
	c.Set("C", 3)
	c.sweep()
	if s := c.Stats(); s.Keys != 1 || s.Evictions != 2 {
		t.Errorf("after sweep Stats = %+v", s)
	}

	c.Clear()
	if s := c.Stats(); s.Keys != 0 || s.Evictions != 3 {
		t.Errorf("after clear Stats = %+v", s)
	}
}

func TestGetOrLoadSurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, time.Minute, newFakeClock())

	started := make(chan struct{})
	release := make(chan struct{})
	loadErr := make(chan error, 1)
	load := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		loadErr <- ctx.Err()
		return 9, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrLoad(firstCtx, "TSLA", load)
		first <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, _, err := c.GetOrLoad(context.Background(), "TSLA", load)
		if err != nil {
			t.Errorf("second caller: %v", err)
		}
		second <- v
	}()

	cancelFirst()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	if err := <-loadErr; err != nil {
		t.Errorf("load context cancelled with its caller: %v", err)
	}
	select {
	case v := <-second:
		if v != 9 {
			t.Errorf("second caller = %d, want 9", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never got the value")
	}
	if v, ok := c.Get("TSLA"); !ok || v != 9 {
		t.Errorf("cached = (%d, %v)", v, ok)
	}
}
