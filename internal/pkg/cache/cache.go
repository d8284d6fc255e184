// Package cache wraps the in-process cache used for recommendation sets.
// Recommendation output is advisory, so serving a slightly stale set is an
// acceptable trade for not recomputing five ranking signals per request.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the narrow cache surface the domain services use. A zero ttl on
// Set falls back to the store's default expiration.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Flush()
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*NopStore)(nil)

// MemoryStore is a Store backed by patrickmn/go-cache.
type MemoryStore struct {
	inner *gocache.Cache
}

// NewMemoryStore creates an in-memory store. defaultTTL applies to Set
// calls with a zero ttl; cleanupInterval controls the expired-entry sweep.
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{inner: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryStore) Get(key string) (any, bool) {
	return s.inner.Get(key)
}

func (s *MemoryStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.inner.Set(key, value, ttl)
}

func (s *MemoryStore) Delete(key string) {
	s.inner.Delete(key)
}

func (s *MemoryStore) Flush() {
	s.inner.Flush()
}

// NopStore never stores anything. Useful in tests and when caching is
// disabled by configuration.
type NopStore struct{}

func (NopStore) Get(string) (any, bool)         { return nil, false }
func (NopStore) Set(string, any, time.Duration) {}
func (NopStore) Delete(string)                  {}
func (NopStore) Flush()                         {}
