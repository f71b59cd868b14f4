package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewMemoryCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := c.Set(ctx, "fundMetrics", []byte(`{"sharePrice":1}`), 300*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(299 * time.Second)
	value, ok, err := c.Get(ctx, "fundMetrics")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(value) != `{"sharePrice":1}` {
		t.Fatalf("value mismatch: %s", value)
	}

	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "fundMetrics"); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "fundMetrics", []byte("x"), time.Minute)
	if err := c.Delete(ctx, "fundMetrics"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "fundMetrics"); ok {
		t.Fatalf("expected miss after delete")
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	value := []byte("abc")
	_ = c.Set(ctx, "k", value, 0)
	value[0] = 'z'

	got, ok, _ := c.Get(ctx, "k")
	if !ok || string(got) != "abc" {
		t.Fatalf("stored value mutated: %q", got)
	}
}
