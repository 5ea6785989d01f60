package redis

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinio/clinio/kv"
	"github.com/clinio/clinio/stats"
)

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

type queuedCmd struct {
	run func(ctx context.Context, p redis.Pipeliner) redis.Cmder
	res *kv.Result
}

type pipe struct {
	store  *Store
	queued []queuedCmd
}

// Pipeline starts an empty command batch.
func (s *Store) Pipeline() kv.Pipe { return &pipe{store: s} }

func (p *pipe) add(run func(ctx context.Context, rp redis.Pipeliner) redis.Cmder) *kv.Result {
	res := &kv.Result{}
	p.queued = append(p.queued, queuedCmd{run: run, res: res})
	return res
}

func (p *pipe) Get(key string) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.Get(ctx, key)
	})
}

func (p *pipe) Set(key string, value []byte, ttl time.Duration) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.Set(ctx, key, value, ttl)
	})
}

func (p *pipe) Incr(key string) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.Incr(ctx, key)
	})
}

func (p *pipe) Expire(key string, ttl time.Duration) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.Expire(ctx, key, ttl)
	})
}

func (p *pipe) SAdd(key string, members ...string) *kv.Result {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.SAdd(ctx, key, args...)
	})
}

func (p *pipe) ZAdd(key string, score float64, member string) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	})
}

func (p *pipe) ZRem(key string, members ...string) *kv.Result {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.ZRem(ctx, key, args...)
	})
}

func (p *pipe) ZRemRangeByScore(key string, min, max float64) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max))
	})
}

func (p *pipe) ZCard(key string) *kv.Result {
	return p.add(func(ctx context.Context, rp redis.Pipeliner) redis.Cmder {
		return rp.ZCard(ctx, key)
	})
}

func (p *pipe) Exec(ctx context.Context) error {
	if len(p.queued) == 0 {
		return nil
	}
	p.store.stats.Record(stats.KindPipeline)

	rp := p.store.rdb.Pipeline()
	cmds := make([]redis.Cmder, len(p.queued))
	for i, q := range p.queued {
		cmds[i] = q.run(ctx, rp)
	}
	_, execErr := rp.Exec(ctx)

	for i, q := range p.queued {
		fill(q.res, cmds[i])
	}

	if execErr != nil && !errors.Is(execErr, redis.Nil) {
		err := translate(execErr)
		for _, q := range p.queued {
			if q.res.Err == nil {
				q.res.Err = err
			}
		}
		return err
	}
	return nil
}

func fill(res *kv.Result, cmd redis.Cmder) {
	switch c := cmd.(type) {
	case *redis.IntCmd:
		res.Int = c.Val()
		res.Err = translate(c.Err())
	case *redis.StringCmd:
		b, err := c.Bytes()
		res.Bytes = b
		res.Err = translate(err)
	case *redis.BoolCmd:
		if c.Val() {
			res.Int = 1
		}
		res.Err = translate(c.Err())
	case *redis.StatusCmd:
		res.Err = translate(c.Err())
	default:
		res.Err = translate(cmd.Err())
	}
}
