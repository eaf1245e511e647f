package metrics

import (
	"testing"
	"time"
)

func TestBundleCacheExpiresByTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	cache := NewBundleCache(30 * time.Minute)
	cache.Now = func() time.Time { return now }

	id, _ := Resolve("octo/demo")
	key := CacheKey(id, false)
	cache.Put(key, MetricsBundle{TotalCommits: 42})

	if _, ok := cache.Get(key); !ok {
		t.Fatalf("Get() miss immediately after Put()")
	}

	now = now.Add(29 * time.Minute)
	bundle, ok := cache.Get(key)
	if !ok {
		t.Fatalf("Get() miss before TTL elapsed")
	}
	if bundle.TotalCommits != 42 {
		t.Fatalf("TotalCommits = %d, want 42", bundle.TotalCommits)
	}

	now = now.Add(time.Minute)
	if _, ok := cache.Get(key); ok {
		t.Fatalf("Get() hit at exactly TTL, want miss")
	}
}

func TestBundleCacheModeIsolation(t *testing.T) {
	t.Parallel()

	cache := NewBundleCache(time.Hour)
	id, _ := Resolve("octo/demo")

	lines := int64(120)
	cache.Put(CacheKey(id, true), MetricsBundle{TotalCommits: 7, TotalLines: &lines})

	if _, ok := cache.Get(CacheKey(id, false)); ok {
		t.Fatalf("noloc Get() hit from loc entry, want miss")
	}
	bundle, ok := cache.Get(CacheKey(id, true))
	if !ok {
		t.Fatalf("loc Get() miss, want hit")
	}
	if bundle.TotalLines == nil || *bundle.TotalLines != 120 {
		t.Fatalf("TotalLines = %v, want 120", bundle.TotalLines)
	}
}

func TestBundleCacheInvalidateRemovesBothModes(t *testing.T) {
	t.Parallel()

	cache := NewBundleCache(time.Hour)
	id, _ := Resolve("octo/demo")
	other, _ := Resolve("octo/other")

	cache.Put(CacheKey(id, true), MetricsBundle{TotalCommits: 1})
	cache.Put(CacheKey(id, false), MetricsBundle{TotalCommits: 2})
	cache.Put(CacheKey(other, false), MetricsBundle{TotalCommits: 3})

	cache.Invalidate(id)

	if _, ok := cache.Get(CacheKey(id, true)); ok {
		t.Fatalf("loc entry survived Invalidate()")
	}
	if _, ok := cache.Get(CacheKey(id, false)); ok {
		t.Fatalf("noloc entry survived Invalidate()")
	}
	if _, ok := cache.Get(CacheKey(other, false)); !ok {
		t.Fatalf("unrelated entry removed by Invalidate()")
	}
}

func TestBundleCacheClear(t *testing.T) {
	t.Parallel()

	cache := NewBundleCache(time.Hour)
	id, _ := Resolve("octo/demo")
	cache.Put(CacheKey(id, false), MetricsBundle{TotalCommits: 1})

	cache.Clear()

	if _, ok := cache.Get(CacheKey(id, false)); ok {
		t.Fatalf("entry survived Clear()")
	}
}

func TestBundleCachePutOverwrites(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	cache := NewBundleCache(10 * time.Minute)
	cache.Now = func() time.Time { return now }

	id, _ := Resolve("octo/demo")
	key := CacheKey(id, false)
	cache.Put(key, MetricsBundle{TotalCommits: 1})

	now = now.Add(9 * time.Minute)
	cache.Put(key, MetricsBundle{TotalCommits: 2})

	// The second Put restarts the TTL window.
	now = now.Add(5 * time.Minute)
	bundle, ok := cache.Get(key)
	if !ok {
		t.Fatalf("Get() miss, want hit from refreshed entry")
	}
	if bundle.TotalCommits != 2 {
		t.Fatalf("TotalCommits = %d, want 2", bundle.TotalCommits)
	}
}
