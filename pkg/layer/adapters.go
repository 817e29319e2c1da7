package layer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jellydator/ttlcache/v3"

	"github.com/tiercache/tiercache/pkg/types"
)

// Adapters wrapping third-party in-process caches as layers. They are
// drop-in alternatives to the built-in Memory/TinyLFU layers for
// callers that already run one of these libraries.

// Ristretto wraps a dgraph-io/ristretto cache. Ristretto carries its
// own TinyLFU admission internally; keys travel in string form.
type Ristretto[K comparable, V any] struct {
	cache *ristretto.Cache[string, V]
	keyFn types.KeyFunc[K]
	name  string

	hits   atomic.Uint64
	misses atomic.Uint64
}

// RistrettoConfig represents ristretto adapter configuration
type RistrettoConfig struct {
	Name        string `yaml:"name"`
	NumCounters int64  `yaml:"num_counters"`
	MaxCost     int64  `yaml:"max_cost"`
	BufferItems int64  `yaml:"buffer_items"`
}

// NewRistretto creates a ristretto-backed layer
func NewRistretto[K comparable, V any](config *RistrettoConfig) (*Ristretto[K, V], error) {
	if config == nil {
		config = &RistrettoConfig{}
	}
	if config.Name == "" {
		config.Name = "ristretto"
	}
	if config.NumCounters <= 0 {
		config.NumCounters = 1e6
	}
	if config.MaxCost <= 0 {
		config.MaxCost = 100_000
	}
	if config.BufferItems <= 0 {
		config.BufferItems = 64
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Ristretto[K, V]{
		cache: cache,
		keyFn: types.DefaultKeyFunc[K](),
		name:  config.Name,
	}, nil
}

func (r *Ristretto[K, V]) Name() string { return r.name }

func (r *Ristretto[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	// Ristretto applies its own admission; a rejected set is silent,
	// matching the layer contract.
	r.cache.SetWithTTL(r.keyFn(key), value, 1, ttl)
	return nil
}

func (r *Ristretto[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	v, ok := r.cache.Get(r.keyFn(key))
	if !ok {
		r.misses.Add(1)
		var zero V
		return zero, false, nil
	}
	r.hits.Add(1)
	return v, true, nil
}

func (r *Ristretto[K, V]) Delete(ctx context.Context, key K) error {
	r.cache.Del(r.keyFn(key))
	return nil
}

func (r *Ristretto[K, V]) Len() int { return -1 }

func (r *Ristretto[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Entries: -1,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (r *Ristretto[K, V]) Close() error {
	r.cache.Close()
	return nil
}

// Wait blocks until buffered sets have been applied. Test helper.
func (r *Ristretto[K, V]) Wait() { r.cache.Wait() }

// TTLCache wraps a jellydator/ttlcache cache with per-entry TTLs.
type TTLCache[K comparable, V any] struct {
	cache *ttlcache.Cache[K, V]
	name  string

	hits   atomic.Uint64
	misses atomic.Uint64
}

// TTLCacheConfig represents ttlcache adapter configuration
type TTLCacheConfig struct {
	Name     string        `yaml:"name"`
	Capacity uint64        `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewTTLCache creates a ttlcache-backed layer
func NewTTLCache[K comparable, V any](config *TTLCacheConfig) *TTLCache[K, V] {
	if config == nil {
		config = &TTLCacheConfig{}
	}
	if config.Name == "" {
		config.Name = "ttlcache"
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	opts := []ttlcache.Option[K, V]{
		ttlcache.WithTTL[K, V](config.TTL),
		ttlcache.WithDisableTouchOnHit[K, V](),
	}
	if config.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[K, V](config.Capacity))
	}

	cache := ttlcache.New[K, V](opts...)
	go cache.Start()

	return &TTLCache[K, V]{cache: cache, name: config.Name}
}

func (c *TTLCache[K, V]) Name() string { return c.name }

func (c *TTLCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *TTLCache[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	item := c.cache.Get(key)
	if item == nil {
		c.misses.Add(1)
		var zero V
		return zero, false, nil
	}
	c.hits.Add(1)
	return item.Value(), true, nil
}

func (c *TTLCache[K, V]) Delete(ctx context.Context, key K) error {
	c.cache.Delete(key)
	return nil
}

func (c *TTLCache[K, V]) Len() int { return c.cache.Len() }

func (c *TTLCache[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *TTLCache[K, V]) Close() error {
	c.cache.Stop()
	return nil
}

// ExpirableLRU wraps a hashicorp/golang-lru expirable LRU. The TTL is
// fixed at construction; per-call TTLs are ignored by the library.
type ExpirableLRU[K comparable, V any] struct {
	cache *expirable.LRU[K, V]
	name  string

	hits   atomic.Uint64
	misses atomic.Uint64
}

// ExpirableLRUConfig represents the expirable LRU adapter configuration
type ExpirableLRUConfig struct {
	Name string        `yaml:"name"`
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// NewExpirableLRU creates an expirable-LRU-backed layer
func NewExpirableLRU[K comparable, V any](config *ExpirableLRUConfig) *ExpirableLRU[K, V] {
	if config == nil {
		config = &ExpirableLRUConfig{}
	}
	if config.Name == "" {
		config.Name = "lru"
	}
	if config.Size <= 0 {
		config.Size = 1000
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	return &ExpirableLRU[K, V]{
		cache: expirable.NewLRU[K, V](config.Size, nil, config.TTL),
		name:  config.Name,
	}
}

func (c *ExpirableLRU[K, V]) Name() string { return c.name }

func (c *ExpirableLRU[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	c.cache.Add(key, value)
	return nil
}

func (c *ExpirableLRU[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false, nil
	}
	c.hits.Add(1)
	return v, true, nil
}

func (c *ExpirableLRU[K, V]) Delete(ctx context.Context, key K) error {
	c.cache.Remove(key)
	return nil
}

func (c *ExpirableLRU[K, V]) Len() int { return c.cache.Len() }

func (c *ExpirableLRU[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *ExpirableLRU[K, V]) Close() error { return nil }
