package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/i474232898/surfvault/internal/weather"
)

func series(n int) *weather.HourlySeries {
	s := &weather.HourlySeries{Values: map[weather.Variable][]*float64{}}
	for i := 0; i < n; i++ {
		s.Time = append(s.Time, fmt.Sprintf("2020-01-01T%02d:00", i))
	}
	return s
}

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache(10, time.Hour)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set(ctx, "a", series(24))
	got, ok := c.Get(ctx, "a")
	if !ok || got.Len() != 24 {
		t.Fatalf("expected cached series, got %v %v", got, ok)
	}
}

func TestMemoryCacheRetentionByCount(t *testing.T) {
	c := NewMemoryCache(2, 0)
	ctx := context.Background()

	c.Set(ctx, "a", series(1))
	c.Set(ctx, "b", series(1))
	c.Set(ctx, "c", series(1))

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("newest entry should be present")
	}
}

func TestMemoryCacheRetentionByAge(t *testing.T) {
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(0, time.Hour)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "old", series(1))
	now = now.Add(2 * time.Hour)

	if _, ok := c.Get(ctx, "old"); ok {
		t.Error("expired entry must not be returned")
	}

	c.Set(ctx, "new", series(1))
	if c.Len() != 1 {
		t.Errorf("expected expired entry to be pruned, got %d entries", c.Len())
	}
}
