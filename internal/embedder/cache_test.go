package embedder

import (
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey("model-a", "hello")
	b := CacheKey("model-b", "hello")
	if a == b {
		t.Error("expected different keys for different models")
	}
	if a != CacheKey("model-a", "hello") {
		t.Error("expected stable key for same model and text")
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(4, time.Minute)
	defer c.Close()

	key := CacheKey("m", "hello")
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(key, []float32{1, 2, 3})

	vec, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(vec) != 3 || vec[0] != 1 || vec[2] != 3 {
		t.Errorf("unexpected cached vector %v", vec)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Minute)
	defer c.Close()

	c.Put("a", []float32{1})
	time.Sleep(time.Millisecond)
	c.Put("b", []float32{2})
	time.Sleep(time.Millisecond)

	// Touch "a" so "b" becomes the eviction candidate
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}
	time.Sleep(time.Millisecond)

	c.Put("c", []float32{3})

	if c.Len() != 2 {
		t.Errorf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to be retained")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be retained")
	}
}

func TestCache_ExpiresEntries(t *testing.T) {
	c := NewCache(4, 10*time.Millisecond)
	defer c.Close()

	c.Put("a", []float32{1})
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to expire")
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Close()
	c.Close()

	// Still usable after Close
	c.Put("a", []float32{1})
	if _, ok := c.Get("a"); !ok {
		t.Error("expected cache to stay usable after Close")
	}
}
