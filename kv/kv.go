package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a key does not exist in the store.
var ErrNotFound = errors.New("kv: key not found")

// ErrUnavailable reports that the store could not be reached within the
// client's retry budget. Callers are expected to degrade (treat as a miss,
// fail open) rather than propagate it to users.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the contract every key-value backend implements. All cross-process
// coordination in this codebase goes through these primitives; there are no
// in-memory locks shared between application instances.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only when the key is absent; reports whether it wrote.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRem removes members and returns how many were actually present, which
	// makes it usable as a claim arbiter between competing workers.
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	// ZRangeByScore returns up to limit members with min <= score <= max in
	// ascending score order. limit <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)

	LPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Ping(ctx context.Context) error

	// Pipeline returns a batch that executes all queued commands in a single
	// round trip. Command order is preserved and each command's outcome is
	// inspectable on its own; there is no cross-command rollback.
	Pipeline() Pipe
}

// Result holds the outcome of a single pipelined command, populated by Exec.
type Result struct {
	Int   int64
	Bytes []byte
	Err   error
}

// Pipe queues commands for batched execution. Each queuing call returns the
// Result that Exec will fill in.
type Pipe interface {
	Get(key string) *Result
	Set(key string, value []byte, ttl time.Duration) *Result
	Incr(key string) *Result
	Expire(key string, ttl time.Duration) *Result
	SAdd(key string, members ...string) *Result
	ZAdd(key string, score float64, member string) *Result
	// ZRem fills Int with how many members were actually removed, so it works
	// as a claim arbiter inside a batch.
	ZRem(key string, members ...string) *Result
	ZRemRangeByScore(key string, min, max float64) *Result
	ZCard(key string) *Result

	// Exec sends the batch. A transport-level failure is returned here and
	// mirrored into every queued Result; per-command failures only appear on
	// the individual Results.
	Exec(ctx context.Context) error
}

// IsMiss reports whether err means "no value" rather than a real failure.
func IsMiss(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err means the store is unreachable.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
