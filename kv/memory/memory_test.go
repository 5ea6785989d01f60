package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinio/clinio/kv"
)

func TestSetGetDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get() = %q, want %q", got, "v")
	}

	n, err := store.Del(ctx, "k", "missing")
	if err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Del() = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTTLExpiryWithClock(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	now = now.Add(time.Minute + time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestSetNX(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", []byte("first"), 0)
	if err != nil || !ok {
		t.Fatalf("SetNX() = %v, %v; want true, nil", ok, err)
	}
	ok, err = store.SetNX(ctx, "k", []byte("second"), 0)
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if ok {
		t.Fatalf("SetNX() on existing key = true, want false")
	}
	got, _ := store.Get(ctx, "k")
	if string(got) != "first" {
		t.Fatalf("value overwritten: %q", got)
	}
}

func TestIncr(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if n != want {
			t.Fatalf("Incr() = %d, want %d", n, want)
		}
	}
}

func TestZSetOperations(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i, m := range []string{"a", "b", "c", "d"} {
		if err := store.ZAdd(ctx, "z", float64(i), m); err != nil {
			t.Fatalf("ZAdd() error = %v", err)
		}
	}

	members, err := store.ZRangeByScore(ctx, "z", 0, 2, 0)
	if err != nil {
		t.Fatalf("ZRangeByScore() error = %v", err)
	}
	if len(members) != 3 || members[0] != "a" || members[2] != "c" {
		t.Fatalf("ZRangeByScore() = %v", members)
	}

	members, err = store.ZRangeByScore(ctx, "z", 0, 3, 2)
	if err != nil {
		t.Fatalf("ZRangeByScore() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("limited range = %v, want 2 members", members)
	}

	n, err := store.ZRem(ctx, "z", "a", "missing")
	if err != nil {
		t.Fatalf("ZRem() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ZRem() = %d, want 1", n)
	}
}

func TestListOperations(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, v := range []string{"one", "two", "three"} {
		if err := store.LPush(ctx, "l", []byte(v)); err != nil {
			t.Fatalf("LPush() error = %v", err)
		}
	}

	// LPush prepends, so the newest entry is first.
	items, err := store.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange() error = %v", err)
	}
	if len(items) != 3 || string(items[0]) != "three" {
		t.Fatalf("LRange() = %v", items)
	}

	if err := store.LTrim(ctx, "l", 0, 1); err != nil {
		t.Fatalf("LTrim() error = %v", err)
	}
	items, _ = store.LRange(ctx, "l", 0, -1)
	if len(items) != 2 || string(items[1]) != "two" {
		t.Fatalf("after LTrim: %v", items)
	}
}

func TestOutageSimulation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.SetUnavailable(true)
	if err := store.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Get(ctx, "k"); !kv.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("Ping() = %v, want ErrUnavailable", err)
	}

	store.SetUnavailable(false)
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() after recovery = %v", err)
	}
}

func TestPipelineAtomicBatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	pipe := store.Pipeline()
	count := pipe.Incr("counter")
	pipe.Set("k", []byte("v"), 0)
	pipe.SAdd("tags", "a", "b")
	if err := pipe.Exec(ctx); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if count.Int != 1 {
		t.Fatalf("pipelined Incr = %d, want 1", count.Int)
	}
	members, _ := store.SMembers(ctx, "tags")
	if len(members) != 2 {
		t.Fatalf("SMembers() = %v", members)
	}
}

func TestPipelineZRemCounts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.ZAdd(ctx, "z", 1, "a"); err != nil {
		t.Fatalf("ZAdd() error = %v", err)
	}

	pipe := store.Pipeline()
	removed := pipe.ZRem("z", "a")
	missing := pipe.ZRem("z", "b")
	if err := pipe.Exec(ctx); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if removed.Int != 1 {
		t.Fatalf("pipelined ZRem = %d, want 1", removed.Int)
	}
	if missing.Int != 0 {
		t.Fatalf("pipelined ZRem of absent member = %d, want 0", missing.Int)
	}
}

func TestPipelineOutageMirrorsErrorIntoResults(t *testing.T) {
	store := NewStore()
	store.SetUnavailable(true)

	pipe := store.Pipeline()
	res := pipe.Incr("counter")
	if err := pipe.Exec(context.Background()); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("Exec() = %v, want ErrUnavailable", err)
	}
	if !errors.Is(res.Err, kv.ErrUnavailable) {
		t.Fatalf("result error = %v, want ErrUnavailable", res.Err)
	}
}
