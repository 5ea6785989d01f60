package cache

import (
	"context"
	"testing"
	"time"

	"github.com/clinio/clinio/kv/memory"
)

type hospital struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestSetAndGet(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	want := hospital{ID: "h1", Name: "General"}
	if err := c.Set(ctx, "hospital:h1", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := Get[hospital](ctx, c, "hospital:h1")
	if !ok {
		t.Fatalf("Get() reported a miss")
	}
	if got != want {
		t.Fatalf("Get() = %+v, want %+v", got, want)
	}
}

func TestGetMissOnAbsentKey(t *testing.T) {
	c := New(memory.NewStore())
	if _, ok := Get[hospital](context.Background(), c, "nope"); ok {
		t.Fatalf("expected a miss for an absent key")
	}
}

func TestGetMissOnCorruptPayload(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	if err := store.Set(ctx, "bad", []byte("{not json"), 0); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if _, ok := Get[hospital](ctx, c, "bad"); ok {
		t.Fatalf("corrupt payload must degrade to a miss")
	}
}

func TestGetMissDuringOutage(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	if err := c.Set(ctx, "k", hospital{ID: "h1"}, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.SetUnavailable(true)
	if _, ok := Get[hospital](ctx, c, "k"); ok {
		t.Fatalf("outage must degrade to a miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if err := c.Set(ctx, "k", hospital{ID: "h1"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := Get[hospital](ctx, c, "k"); ok {
		t.Fatalf("expected a miss after TTL")
	}
}

func TestInvalidateByTags(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	tagged := map[string][]string{
		"hospital:h1:appointments": {"hospital_appointments:h1"},
		"user:u1:appointments":     {"user_appointments:u1"},
		"hospital:h1":              {"hospital:h1"},
	}
	for key, tags := range tagged {
		if err := c.SetWithTags(ctx, key, hospital{ID: key}, time.Minute, tags); err != nil {
			t.Fatalf("SetWithTags(%s) error = %v", key, err)
		}
	}

	deleted, err := c.InvalidateByTags(ctx, "hospital_appointments:h1", "user_appointments:u1")
	if err != nil {
		t.Fatalf("InvalidateByTags() error = %v", err)
	}
	// Two entries plus two tag sets.
	if deleted != 4 {
		t.Fatalf("InvalidateByTags() = %d, want 4", deleted)
	}

	if _, ok := Get[hospital](ctx, c, "hospital:h1:appointments"); ok {
		t.Fatalf("tagged entry survived invalidation")
	}
	if _, ok := Get[hospital](ctx, c, "user:u1:appointments"); ok {
		t.Fatalf("tagged entry survived invalidation")
	}
	if _, ok := Get[hospital](ctx, c, "hospital:h1"); !ok {
		t.Fatalf("entry under an untouched tag was invalidated")
	}
}

func TestInvalidateByTagsPartialFailure(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	if err := c.SetWithTags(ctx, "k", hospital{ID: "h1"}, time.Minute, []string{"t"}); err != nil {
		t.Fatalf("SetWithTags() error = %v", err)
	}
	store.SetUnavailable(true)
	if _, err := c.InvalidateByTags(ctx, "t"); err == nil {
		t.Fatalf("expected an error while the store is down")
	}
}

func TestSharedTagAcrossEntries(t *testing.T) {
	store := memory.NewStore()
	c := New(store)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := c.SetWithTags(ctx, key, key, time.Minute, []string{"group"}); err != nil {
			t.Fatalf("SetWithTags(%s) error = %v", key, err)
		}
	}
	deleted, err := c.InvalidateByTags(ctx, "group")
	if err != nil {
		t.Fatalf("InvalidateByTags() error = %v", err)
	}
	if deleted != 4 {
		t.Fatalf("InvalidateByTags() = %d, want 4 (three entries plus the tag set)", deleted)
	}
}
