package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched article bodies keyed by URL hash so re-ingesting
// a URL does not hit the origin again.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives the cache key for an article URL. The version tag is
// bumped when the cached representation changes.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "ridgeline:v1:" + hex.EncodeToString(sum[:])
}
