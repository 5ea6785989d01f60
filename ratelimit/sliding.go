package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/kv"
)

// SlidingLog keeps one timestamped entry per accepted request in a sorted
// set and prunes entries older than the window on every check. Bursts are
// bounded exactly at the limit, at the cost of O(limit) storage per identity
// and a four-command batch per request.
type SlidingLog struct {
	store  kv.Store
	prefix string
	window time.Duration
	max    int
}

// NewSlidingLog builds a sliding-window-log algorithm.
func NewSlidingLog(store kv.Store, prefix string, window time.Duration, max int) *SlidingLog {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &SlidingLog{store: store, prefix: prefix, window: window, max: max}
}

func (s *SlidingLog) Limit() int            { return s.max }
func (s *SlidingLog) Window() time.Duration { return s.window }

func (s *SlidingLog) Take(ctx context.Context, identity string, now time.Time) (Result, error) {
	key := s.prefix + ":" + identity
	nowMs := now.UnixMilli()
	cutoff := float64(nowMs - s.window.Milliseconds())
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	pipe := s.store.Pipeline()
	pipe.ZRemRangeByScore(key, math.Inf(-1), cutoff)
	count := pipe.ZCard(key)
	pipe.ZAdd(key, float64(nowMs), member)
	pipe.Expire(key, s.window)
	if err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	if count.Err != nil {
		return Result{}, count.Err
	}

	// The card is taken before this request's entry is added.
	remaining := s.max - int(count.Int) - 1
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count.Int < int64(s.max),
		Limit:     s.max,
		Remaining: remaining,
		ResetAt:   now.Add(s.window),
	}, nil
}
