// Package redis implements kv.Store on top of a Redis server using
// github.com/redis/go-redis. Reconnects and per-call retries are delegated to
// the driver; once its retry budget is spent every method reports
// kv.ErrUnavailable so callers can fail soft.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinio/clinio/kv"
	"github.com/clinio/clinio/stats"
)

// Store implements kv.Store against a single Redis server.
type Store struct {
	rdb   *redis.Client
	stats *stats.Collector
}

// StoreOption customizes a Store beyond connection settings.
type StoreOption func(*Store)

// WithStats installs an operation counter incremented on every call.
func WithStats(c *stats.Collector) StoreOption {
	return func(s *Store) { s.stats = c }
}

// NewStore builds a Redis-backed store.
func NewStore(opts Options, extra ...StoreOption) *Store {
	cfg := opts.withDefaults()
	s := &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:            cfg.Addr,
			Password:        cfg.Password,
			DB:              cfg.DB,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			PoolSize:        cfg.PoolSize,
			MaxRetries:      cfg.MaxRetries,
			MinRetryBackoff: cfg.MinRetryBackoff,
			MaxRetryBackoff: cfg.MaxRetryBackoff,
			TLSConfig:       cfg.TLSConfig,
		}),
	}
	for _, opt := range extra {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// translate maps driver errors onto the kv sentinels. Anything that is not a
// miss or a caller cancellation is treated as the store being unreachable.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return kv.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(kv.ErrUnavailable, err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.stats.Record(stats.KindGet)
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.stats.Record(stats.KindSet)
	return translate(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.stats.Record(stats.KindSet)
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, translate(err)
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	s.stats.Record(stats.KindDel)
	n, err := s.rdb.Del(ctx, keys...).Result()
	return n, translate(err)
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	s.stats.Record(stats.KindIncr)
	n, err := s.rdb.Incr(ctx, key).Result()
	return n, translate(err)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.stats.Record(stats.KindOther)
	return translate(s.rdb.Expire(ctx, key, ttl).Err())
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.stats.Record(stats.KindOther)
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return translate(s.rdb.SAdd(ctx, key, args...).Err())
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	s.stats.Record(stats.KindOther)
	members, err := s.rdb.SMembers(ctx, key).Result()
	return members, translate(err)
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.stats.Record(stats.KindOther)
	return translate(s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	s.stats.Record(stats.KindOther)
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.rdb.ZRem(ctx, key, args...).Result()
	return n, translate(err)
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	s.stats.Record(stats.KindOther)
	rng := &redis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}
	if limit > 0 {
		rng.Count = limit
	}
	members, err := s.rdb.ZRangeByScore(ctx, key, rng).Result()
	return members, translate(err)
}

func (s *Store) LPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	s.stats.Record(stats.KindOther)
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return translate(s.rdb.LPush(ctx, key, args...).Err())
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	s.stats.Record(stats.KindOther)
	raw, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	out := make([][]byte, len(raw))
	for i, v := range raw {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.stats.Record(stats.KindOther)
	return translate(s.rdb.LTrim(ctx, key, start, stop).Err())
}

func (s *Store) Ping(ctx context.Context) error {
	s.stats.Record(stats.KindOther)
	return translate(s.rdb.Ping(ctx).Err())
}
