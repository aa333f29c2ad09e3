package cache

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCacheKey_StableAndPrefixed(t *testing.T) {
	a := CacheKey("https://example.com/story")
	b := CacheKey("https://example.com/story")
	if a != b {
		t.Errorf("same URL produced different keys: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "ridgeline:v1:") {
		t.Errorf("key missing version prefix: %s", a)
	}
	if CacheKey("https://example.com/other") == a {
		t.Error("distinct URLs produced the same key")
	}
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache reported a hit")
	}

	if err := c.Set("k", []byte("body"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := c.Get("k")
	if !ok || !bytes.Equal(v, []byte("body")) {
		t.Errorf("Get = %q, %v, want body, true", v, ok)
	}

	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get after Delete reported a hit")
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Minute)

	if err := c.Set("k", []byte("<html>body</html>"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := c.Get("k")
	if !ok || !bytes.Equal(v, []byte("<html>body</html>")) {
		t.Errorf("Get = %q, %v", v, ok)
	}
}

func TestDiskCache_ExpiredEntryMisses(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Minute)

	if err := c.Set("k", []byte("stale"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry reported a hit")
	}
}

func TestLayeredCache_PromotesDiskHit(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	if err := c.disk.Set("k", []byte("from disk"), 0); err != nil {
		t.Fatalf("disk Set: %v", err)
	}

	v, ok := c.Get("k")
	if !ok || !bytes.Equal(v, []byte("from disk")) {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok := c.memory.Get("k"); !ok {
		t.Error("disk hit was not promoted to memory")
	}
}

func TestLayeredCache_SetWritesBothLayers(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	if err := c.Set("k", []byte("body"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := c.memory.Get("k"); !ok {
		t.Error("memory layer missing entry")
	}
	if _, ok := c.disk.Get("k"); !ok {
		t.Error("disk layer missing entry")
	}
}
