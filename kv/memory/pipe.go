package memory

import (
	"context"
	"time"

	"github.com/clinio/clinio/kv"
)

type pipe struct {
	store *Store
	ops   []func()
	all   []*kv.Result
}

// Pipeline starts a batch that executes atomically under the store lock,
// which matches the single-round-trip semantics of the Redis backend.
func (s *Store) Pipeline() kv.Pipe { return &pipe{store: s} }

func (p *pipe) add(op func(res *kv.Result)) *kv.Result {
	res := &kv.Result{}
	p.all = append(p.all, res)
	p.ops = append(p.ops, func() { op(res) })
	return res
}

func (p *pipe) Get(key string) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		v, ok := p.store.strings[key]
		if !ok {
			res.Err = kv.ErrNotFound
			return
		}
		res.Bytes = make([]byte, len(v))
		copy(res.Bytes, v)
	})
}

func (p *pipe) Set(key string, value []byte, ttl time.Duration) *kv.Result {
	v := make([]byte, len(value))
	copy(v, value)
	return p.add(func(res *kv.Result) {
		p.store.setLocked(key, v, ttl)
	})
}

func (p *pipe) Incr(key string) *kv.Result {
	return p.add(func(res *kv.Result) {
		res.Int, res.Err = p.store.incrLocked(key)
	})
}

func (p *pipe) Expire(key string, ttl time.Duration) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		if p.store.exists(key) {
			p.store.expiry[key] = p.store.now().Add(ttl)
			res.Int = 1
		}
	})
}

func (p *pipe) SAdd(key string, members ...string) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		p.store.saddLocked(key, members...)
	})
}

func (p *pipe) ZAdd(key string, score float64, member string) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		p.store.zaddLocked(key, score, member)
	})
}

func (p *pipe) ZRem(key string, members ...string) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		zset := p.store.zsets[key]
		for _, m := range members {
			if _, ok := zset[m]; ok {
				delete(zset, m)
				res.Int++
			}
		}
	})
}

func (p *pipe) ZRemRangeByScore(key string, min, max float64) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		zset := p.store.zsets[key]
		for m, score := range zset {
			if score >= min && score <= max {
				delete(zset, m)
				res.Int++
			}
		}
	})
}

func (p *pipe) ZCard(key string) *kv.Result {
	return p.add(func(res *kv.Result) {
		p.store.purge(key)
		res.Int = int64(len(p.store.zsets[key]))
	})
}

func (p *pipe) Exec(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if err := p.store.check(); err != nil {
		for _, res := range p.all {
			res.Err = err
		}
		return err
	}
	for _, op := range p.ops {
		op()
	}
	return nil
}
