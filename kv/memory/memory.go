// Package memory implements kv.Store in process memory. It exists for unit
// tests: it honors TTLs, supports an adjustable clock, and can simulate a
// store outage so fail-soft and fail-open paths are testable without Redis.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/clinio/clinio/kv"
)

// Store is a single-process kv.Store. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	unavailable bool

	strings map[string][]byte
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	lists   map[string][][]byte
	expiry  map[string]time.Time
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		now:     time.Now,
		strings: make(map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][][]byte),
		expiry:  make(map[string]time.Time),
	}
}

// SetClock replaces the time source. Pass nil to restore the wall clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// SetUnavailable toggles outage simulation; while set, every operation
// reports kv.ErrUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Store) check() error {
	if s.unavailable {
		return kv.ErrUnavailable
	}
	return nil
}

// purge drops the key from every namespace if its TTL has lapsed.
func (s *Store) purge(key string) {
	deadline, ok := s.expiry[key]
	if !ok || s.now().Before(deadline) {
		return
	}
	s.deleteKey(key)
}

func (s *Store) deleteKey(key string) bool {
	_, a := s.strings[key]
	_, b := s.sets[key]
	_, c := s.zsets[key]
	_, d := s.lists[key]
	delete(s.strings, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	delete(s.lists, key)
	delete(s.expiry, key)
	return a || b || c || d
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	s.purge(key)
	v, ok := s.strings[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.setLocked(key, value, ttl)
	return nil
}

func (s *Store) setLocked(key string, value []byte, ttl time.Duration) {
	s.deleteKey(key)
	v := make([]byte, len(value))
	copy(v, value)
	s.strings[key] = v
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	}
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	s.purge(key)
	if _, ok := s.strings[key]; ok {
		return false, nil
	}
	s.setLocked(key, value, ttl)
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int64
	for _, key := range keys {
		s.purge(key)
		if s.deleteKey(key) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.incrLocked(key)
}

func (s *Store) incrLocked(key string) (int64, error) {
	s.purge(key)
	var n int64
	if v, ok := s.strings[key]; ok {
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	s.strings[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.purge(key)
	if s.exists(key) {
		s.expiry[key] = s.now().Add(ttl)
	}
	return nil
}

func (s *Store) exists(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	_, ok := s.lists[key]
	return ok
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.purge(key)
	s.saddLocked(key, members...)
	return nil
}

func (s *Store) saddLocked(key string, members ...string) {
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	s.purge(key)
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.purge(key)
	s.zaddLocked(key, score, member)
	return nil
}

func (s *Store) zaddLocked(key string, score float64, member string) {
	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] = score
}

func (s *Store) ZRem(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	s.purge(key)
	zset := s.zsets[key]
	var n int64
	for _, m := range members {
		if _, ok := zset[m]; ok {
			delete(zset, m)
			n++
		}
	}
	return n, nil
}

func (s *Store) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	s.purge(key)
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, score := range s.zsets[key] {
		if score >= min && score <= max {
			pairs = append(pairs, pair{m, score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	if limit > 0 && int64(len(pairs)) > limit {
		pairs = pairs[:limit]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out, nil
}

func (s *Store) LPush(_ context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.purge(key)
	list := s.lists[key]
	for _, v := range values {
		cp := make([]byte, len(v))
		copy(cp, v)
		list = append([][]byte{cp}, list...)
	}
	s.lists[key] = list
	return nil
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	s.purge(key)
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.purge(key)
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = list[start : stop+1]
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}
