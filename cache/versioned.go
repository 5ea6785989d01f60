package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/clinio/clinio/kv"
)

// versionedEntry wraps a payload with the epoch it was written under.
type versionedEntry struct {
	Version   int64           `json:"version"`
	WrittenAt time.Time       `json:"writtenAt"`
	Value     json.RawMessage `json:"value"`
}

// Version returns the current epoch for versionKey. An absent counter means
// epoch 1; the counter is initialized on first read so a later BumpVersion is
// guaranteed to move past every entry written under the default.
func (c *Cache) Version(ctx context.Context, versionKey string) int64 {
	raw, err := c.store.Get(ctx, versionKey)
	if err != nil {
		if kv.IsMiss(err) {
			if _, err := c.store.SetNX(ctx, versionKey, []byte("1"), 0); err != nil && !kv.IsUnavailable(err) {
				c.logger.Warn("version init failed", "versionKey", versionKey, "err", err)
			}
		}
		return 1
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || v < 1 {
		return 1
	}
	return v
}

// BumpVersion advances the epoch with the store's atomic increment, so
// concurrent invalidators never lose an update. On store failure the current
// epoch is left untouched and 0 is returned.
func (c *Cache) BumpVersion(ctx context.Context, versionKey string) int64 {
	v, err := c.store.Incr(ctx, versionKey)
	if err != nil {
		c.logger.Warn("version bump failed", "versionKey", versionKey, "err", err)
		return 0
	}
	return v
}

// SetVersioned writes value stamped with the current epoch of versionKey.
func (c *Cache) SetVersioned(ctx context.Context, key string, value any, versionKey string, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := versionedEntry{
		Version:   c.Version(ctx, versionKey),
		WrittenAt: time.Now().UTC(),
		Value:     raw,
	}
	wrapped, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, wrapped, ttl); err != nil {
		c.logger.Warn("versioned set failed", "key", key, "err", err)
		return err
	}
	return nil
}

// GetVersioned reads the entry and the live epoch in one round trip. An entry
// stamped with a stale epoch is deleted and reported as a miss: stale data is
// never served, cleanup happens lazily at read time.
func GetVersioned[T any](ctx context.Context, c *Cache, key, versionKey string) (T, bool) {
	var zero T

	pipe := c.store.Pipeline()
	entryRes := pipe.Get(key)
	versionRes := pipe.Get(versionKey)
	if err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("versioned get degraded to miss", "key", key, "err", err)
		return zero, false
	}
	if entryRes.Err != nil {
		if !kv.IsMiss(entryRes.Err) {
			c.logger.Warn("versioned get degraded to miss", "key", key, "err", entryRes.Err)
		}
		return zero, false
	}

	live := int64(1)
	if versionRes.Err == nil {
		if v, err := strconv.ParseInt(string(versionRes.Bytes), 10, 64); err == nil && v > 0 {
			live = v
		}
	}

	var entry versionedEntry
	if err := json.Unmarshal(entryRes.Bytes, &entry); err != nil {
		c.logger.Warn("versioned entry corrupt, treating as miss", "key", key, "err", err)
		return zero, false
	}
	if entry.Version != live {
		if _, err := c.store.Del(ctx, key); err != nil {
			c.logger.Warn("stale entry cleanup failed", "key", key, "err", err)
		}
		return zero, false
	}

	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		c.logger.Warn("versioned entry corrupt, treating as miss", "key", key, "err", err)
		return zero, false
	}
	return value, true
}
