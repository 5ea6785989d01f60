// Package cache provides the read-through cache used by request handlers:
// plain TTL entries, tag-indexed groups that invalidate together, and
// version-stamped entries that expire on a logical epoch bump.
//
// The cache is never a system of record. Every failure - store unreachable,
// corrupt payload, serialization mismatch - degrades to a miss so callers can
// recompute from the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/clinio/clinio/kv"
)

const tagKeyPrefix = "cache:tag:"

// DefaultTagTTL caps how long a tag's member set may outlive its entries, so
// tag indexes are bounded even if invalidation never fires.
const DefaultTagTTL = 24 * time.Hour

// Cache wraps a kv.Store with serialization and invalidation helpers.
type Cache struct {
	store  kv.Store
	logger *slog.Logger
	tagTTL time.Duration
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTagTTL overrides the tag-set TTL cap.
func WithTagTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.tagTTL = d
		}
	}
}

// New builds a Cache on top of store.
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{store: store, logger: slog.Default(), tagTTL: DefaultTagTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get fetches and deserializes the entry at key. The second return value is
// false on a miss, a store error, or a corrupt payload.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !kv.IsMiss(err) {
			c.logger.Warn("cache get degraded to miss", "key", key, "err", err)
		}
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		// Corrupt entries are treated as misses, not errors.
		c.logger.Warn("cache entry corrupt, treating as miss", "key", key, "err", err)
		return zero, false
	}
	return value, true
}

// Set serializes value and writes it with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "err", err)
		return err
	}
	return nil
}

// SetWithTags writes the entry and registers key under each tag's member set
// in a single batch. Tag sets get their TTL refreshed on every write, capped
// at the configured maximum.
func (c *Cache) SetWithTags(ctx context.Context, key string, value any, ttl time.Duration, tags []string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	pipe := c.store.Pipeline()
	pipe.Set(key, raw, ttl)
	for _, tag := range tags {
		pipe.SAdd(tagKeyPrefix+tag, key)
		pipe.Expire(tagKeyPrefix+tag, c.tagTTL)
	}
	if err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache tagged set failed", "key", key, "tags", tags, "err", err)
		return err
	}
	return nil
}

// InvalidateByTags deletes every entry registered under the given tags, plus
// the tag sets themselves, and returns how many keys were removed. Tags are
// processed one by one; a failure on a later tag leaves earlier ones
// invalidated, which callers must tolerate.
func (c *Cache) InvalidateByTags(ctx context.Context, tags ...string) (int64, error) {
	var deleted int64
	var lastErr error
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag
		members, err := c.store.SMembers(ctx, tagKey)
		if err != nil && !kv.IsMiss(err) {
			c.logger.Warn("tag invalidation skipped", "tag", tag, "err", err)
			lastErr = err
			continue
		}
		keys := append(members, tagKey)
		n, err := c.store.Del(ctx, keys...)
		if err != nil {
			c.logger.Warn("tag invalidation incomplete", "tag", tag, "err", err)
			lastErr = err
			continue
		}
		deleted += n
	}
	return deleted, lastErr
}

// Delete removes entries directly, bypassing tags.
func (c *Cache) Delete(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.store.Del(ctx, keys...)
	if err != nil {
		c.logger.Warn("cache delete failed", "keys", keys, "err", err)
	}
	return n, err
}
