package dedup

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache keeps dedup keys in process. Keys are lost on restart.
type MemoryCache struct {
	cache *ristretto.Cache[string, int64]
}

// NewMemoryCache sizes the cache for roughly maxKeys live keys.
func NewMemoryCache(maxKeys int64) (*MemoryCache, error) {
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters:        maxKeys * 10,
		MaxCost:            maxKeys,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache}, nil
}

func (c *MemoryCache) ContainsKey(_ context.Context, key string) (bool, error) {
	_, ok := c.cache.Get(key)
	return ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, ttl time.Duration) error {
	c.cache.SetWithTTL(key, time.Now().Add(ttl).Unix(), 1, ttl)
	c.cache.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (c *MemoryCache) Close() {
	c.cache.Close()
}
