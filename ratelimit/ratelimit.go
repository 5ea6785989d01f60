// Package ratelimit enforces request quotas across every instance of the
// application. All counting happens in the shared key-value store through its
// atomic primitives, so concurrent handlers and separate processes observe
// one consistent count. When the store is unreachable the limiter fails open:
// availability is prioritized over strict enforcement during outages.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Algorithm decides whether a request identified by identity is admitted at
// time now. Implementations must coordinate exclusively through the store.
type Algorithm interface {
	Take(ctx context.Context, identity string, now time.Time) (Result, error)
	Limit() int
	Window() time.Duration
}

// Limiter pairs an admission algorithm with an identity derivation strategy.
type Limiter struct {
	algo   Algorithm
	keyFn  KeyFunc
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithKeyFunc selects how the caller identity is derived from a request.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.keyFn = fn
		}
	}
}

// WithLogger sets the logger for fail-open warnings.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithClock replaces the time source; tests use it to cross window borders.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a Limiter around algo. The default identity is the client
// network address.
func New(algo Algorithm, opts ...Option) *Limiter {
	l := &Limiter{algo: algo, keyFn: ByClientIP, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Check runs one admission decision for identity. Store failures are logged
// and converted into an allow with a full remaining quota.
func (l *Limiter) Check(ctx context.Context, identity string) Result {
	now := l.now()
	res, err := l.algo.Take(ctx, identity, now)
	if err != nil {
		l.logger.Warn("rate limit check failed open", "identity", identity, "err", err)
		return Result{
			Allowed:   true,
			Limit:     l.algo.Limit(),
			Remaining: l.algo.Limit(),
			ResetAt:   now.Add(l.algo.Window()),
		}
	}
	return res
}
