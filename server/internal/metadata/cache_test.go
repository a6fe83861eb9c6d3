package metadata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

// peek reads an entry without bumping its counters.
func peek(t *testing.T, c *Cache, videoID string) *CacheEntry {
	t.Helper()

	var e CacheEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(videoID))
		if v == nil {
			return fmt.Errorf("video %s not cached", videoID)
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		t.Fatal(err)
	}
	return &e
}

func TestCacheTouch(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if _, ok, err := cache.Touch("missing"); ok || err != nil {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Put(CacheEntry{VideoID: "dQw4w9WgXcQ", Title: "t", Formats: "[]"}); err != nil {
		t.Fatal(err)
	}

	clock := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	for want := int64(2); want <= 3; want++ {
		e, ok, err := cache.Touch("dQw4w9WgXcQ")
		if err != nil || !ok {
			t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
		}
		if e.AccessCount != want {
			t.Errorf("expected access count %d, got %d", want, e.AccessCount)
		}
		if !e.LastAccessed.Equal(clock) {
			t.Errorf("expected last access at %v, got %v", clock, e.LastAccessed)
		}
	}
}

func TestCachePutKeepsCreation(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return first }
	cache.Put(CacheEntry{VideoID: "abc", Title: "old"})

	cache.now = func() time.Time { return first.Add(time.Hour) }
	cache.Put(CacheEntry{VideoID: "abc", Title: "new"})

	e := peek(t, cache, "abc")
	if e.Title != "new" || !e.CreatedAt.Equal(first) || e.AccessCount != 2 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestCacheRejectsEmptyID(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if err := cache.Put(CacheEntry{}); err == nil {
		t.Error("expected an error for an entry without id")
	}
}
