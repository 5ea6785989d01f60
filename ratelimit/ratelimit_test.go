package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clinio/clinio/kv/memory"
)

func TestFixedWindowCountsToLimit(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 3)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		res, err := algo.Take(ctx, "client", now)
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected before the limit", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Fatalf("Remaining = %d, want %d", res.Remaining, 3-(i+1))
		}
	}

	res, err := algo.Take(ctx, "client", now)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if res.Allowed {
		t.Fatalf("request over the limit was admitted")
	}
	if res.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", res.Remaining)
	}
}

func TestFixedWindowResetsOnNewWindow(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 1)
	ctx := context.Background()
	now := time.Now()

	if res, _ := algo.Take(ctx, "client", now); !res.Allowed {
		t.Fatalf("first request rejected")
	}
	if res, _ := algo.Take(ctx, "client", now); res.Allowed {
		t.Fatalf("second request in the same window admitted")
	}
	if res, _ := algo.Take(ctx, "client", now.Add(time.Minute)); !res.Allowed {
		t.Fatalf("request in the next window rejected")
	}
}

func TestFixedWindowBoundaryBurst(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 3)
	ctx := context.Background()

	// Align on a window border so the burst straddles it: the old window's
	// counter and the new one's are independent, so a client squeezing its
	// full quota into the last second of one window and the first second of
	// the next gets up to twice the limit. That is the documented worst case
	// of the tumbling-window trade-off.
	windowMs := time.Minute.Milliseconds()
	boundary := time.UnixMilli((time.Now().UnixMilli()/windowMs + 1) * windowMs)

	allowed := 0
	for i := 0; i < 3; i++ {
		res, err := algo.Take(ctx, "client", boundary.Add(-time.Second))
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if res.Allowed {
			allowed++
		}
	}
	for i := 0; i < 3; i++ {
		res, err := algo.Take(ctx, "client", boundary.Add(time.Second))
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if res.Allowed {
			allowed++
		}
	}

	if allowed != 6 {
		t.Fatalf("burst across the border admitted %d, want the 2x upper bound 6", allowed)
	}

	// The upper bound is exactly twice the limit: one more in the new window
	// is rejected.
	if res, _ := algo.Take(ctx, "client", boundary.Add(2*time.Second)); res.Allowed {
		t.Fatalf("request beyond the doubled quota was admitted")
	}
}

func TestFixedWindowIsolatesIdentities(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 1)
	ctx := context.Background()
	now := time.Now()

	if res, _ := algo.Take(ctx, "alice", now); !res.Allowed {
		t.Fatalf("alice rejected")
	}
	if res, _ := algo.Take(ctx, "bob", now); !res.Allowed {
		t.Fatalf("bob shares alice's counter")
	}
}

func TestFixedWindowConcurrentTakes(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 50)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := algo.Take(ctx, "client", now)
			if err != nil {
				t.Errorf("Take() error = %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want exactly 50", allowed)
	}
}

func TestSlidingLogAdmitsExactlyLimit(t *testing.T) {
	store := memory.NewStore()
	algo := NewSlidingLog(store, "test", time.Minute, 3)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		res, err := algo.Take(ctx, "client", now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected before the limit", i+1)
		}
	}
	if res, _ := algo.Take(ctx, "client", now.Add(4*time.Second)); res.Allowed {
		t.Fatalf("request over the limit was admitted")
	}
}

func TestSlidingLogAdmitsAfterWindowSlides(t *testing.T) {
	store := memory.NewStore()
	algo := NewSlidingLog(store, "test", time.Minute, 2)
	ctx := context.Background()
	now := time.Now()

	algo.Take(ctx, "client", now)
	algo.Take(ctx, "client", now.Add(time.Second))
	if res, _ := algo.Take(ctx, "client", now.Add(2*time.Second)); res.Allowed {
		t.Fatalf("third request inside the window admitted")
	}

	// Once the first entries age out the quota frees up.
	res, err := algo.Take(ctx, "client", now.Add(time.Minute+2*time.Second))
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if !res.Allowed {
		t.Fatalf("request after the window slid was rejected")
	}
}

func TestLimiterFailsOpenDuringOutage(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 1)
	limiter := New(algo)
	ctx := context.Background()

	// Exhaust the quota, then take the store down.
	limiter.Check(ctx, "client")
	store.SetUnavailable(true)

	res := limiter.Check(ctx, "client")
	if !res.Allowed {
		t.Fatalf("limiter must fail open while the store is down")
	}
	if res.Remaining != algo.Limit() {
		t.Fatalf("fail-open Remaining = %d, want full quota %d", res.Remaining, algo.Limit())
	}
}

func TestLimiterClockOption(t *testing.T) {
	store := memory.NewStore()
	algo := NewFixedWindow(store, "test", time.Minute, 1)

	now := time.Now()
	limiter := New(algo, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if res := limiter.Check(ctx, "client"); !res.Allowed {
		t.Fatalf("first request rejected")
	}
	if res := limiter.Check(ctx, "client"); res.Allowed {
		t.Fatalf("second request admitted")
	}

	now = now.Add(2 * time.Minute)
	if res := limiter.Check(ctx, "client"); !res.Allowed {
		t.Fatalf("request after the clock advanced was rejected")
	}
}
