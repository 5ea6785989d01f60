package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/clinio/clinio/kv"
)

// FixedWindow counts requests in tumbling windows: one counter key per
// identity and window index, incremented atomically, expiring with the
// window. O(1) per request. A burst straddling a window border can admit up
// to twice the limit in the worst case; that is the accepted trade-off for
// the constant cost.
type FixedWindow struct {
	store  kv.Store
	prefix string
	window time.Duration
	max    int
}

// NewFixedWindow builds a fixed-window algorithm. prefix namespaces the
// counter keys so independent limiter instances never collide.
func NewFixedWindow(store kv.Store, prefix string, window time.Duration, max int) *FixedWindow {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &FixedWindow{store: store, prefix: prefix, window: window, max: max}
}

func (f *FixedWindow) Limit() int            { return f.max }
func (f *FixedWindow) Window() time.Duration { return f.window }

func (f *FixedWindow) Take(ctx context.Context, identity string, now time.Time) (Result, error) {
	windowMs := f.window.Milliseconds()
	index := now.UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%d", f.prefix, identity, index)

	pipe := f.store.Pipeline()
	count := pipe.Incr(key)
	pipe.Expire(key, f.window)
	if err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	if count.Err != nil {
		return Result{}, count.Err
	}

	remaining := f.max - int(count.Int)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count.Int <= int64(f.max),
		Limit:     f.max,
		Remaining: remaining,
		ResetAt:   time.UnixMilli((index + 1) * windowMs),
	}, nil
}
