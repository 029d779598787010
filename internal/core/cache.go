package core

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/zeebo/blake3"
)

// TTLCache is an expiring key/value cache safe for concurrent use. A nil
// *TTLCache is valid and never hits, so callers can always fall through to
// recomputation.
type TTLCache[V any] struct {
	cache *ristretto.Cache[string, V]
	ttl   time.Duration
}

// NewTTLCache creates a cache holding at most maxEntries values for ttl.
func NewTTLCache[V any](maxEntries int, ttl time.Duration) (*TTLCache[V], error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
		// Every entry costs 1, so MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ttl cache: %w", err)
	}
	return &TTLCache[V]{cache: c, ttl: ttl}, nil
}

// Get returns the cached value for key.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.cache.Get(key)
}

// Set stores value under key. Admission is best effort: a dropped set only
// costs a later recomputation.
func (c *TTLCache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.cache.SetWithTTL(key, value, 1, c.ttl)
}

// Wait blocks until buffered sets are applied.
func (c *TTLCache[V]) Wait() {
	if c != nil {
		c.cache.Wait()
	}
}

// Close stops the cache's background goroutines.
func (c *TTLCache[V]) Close() {
	if c != nil {
		c.cache.Close()
	}
}

// Caches groups the engine's caches. Any field may be nil.
type Caches struct {
	Vectors    *TTLCache[Vector]
	Similarity *TTLCache[float64]
	Sessions   *TTLCache[[]byte]
}

// NewCaches creates the vector, similarity and session caches.
func NewCaches(maxEntries int, ttl time.Duration) (*Caches, error) {
	vectors, err := NewTTLCache[Vector](maxEntries, ttl)
	if err != nil {
		return nil, err
	}
	similarity, err := NewTTLCache[float64](maxEntries, ttl)
	if err != nil {
		vectors.Close()
		return nil, err
	}
	sessions, err := NewTTLCache[[]byte](maxEntries, ttl)
	if err != nil {
		vectors.Close()
		similarity.Close()
		return nil, err
	}
	return &Caches{Vectors: vectors, Similarity: similarity, Sessions: sessions}, nil
}

// Close releases every cache.
func (c *Caches) Close() {
	if c == nil {
		return
	}
	c.Vectors.Close()
	c.Similarity.Close()
	c.Sessions.Close()
}

// HashKey derives a content address from parts. Parts are length-prefixed
// so ("ab","c") and ("a","bc") differ.
func HashKey(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
