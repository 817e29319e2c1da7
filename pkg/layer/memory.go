package layer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// entry is a stored value with its hard expiry
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryConfig represents basic memory layer configuration
type MemoryConfig struct {
	// Name identifies the layer in logs and stats
	Name string `yaml:"name"`

	// SweepInterval is how often the expiry sweeper scans the map
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Logger *logging.Logger `yaml:"-"`
}

// Memory is the basic in-memory layer: a concurrent map of entries
// with expiry checked on access and a periodic sweeper removing
// expired items.
type Memory[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]

	name   string
	logger *logging.Logger

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a new basic memory layer
func NewMemory[K comparable, V any](config *MemoryConfig) *Memory[K, V] {
	if config == nil {
		config = &MemoryConfig{}
	}
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}

	m := &Memory[K, V]{
		items:  make(map[K]entry[V]),
		name:   config.Name,
		logger: logging.OrNop(config.Logger).WithComponent(config.Name),
		stopCh: make(chan struct{}),
	}

	go m.sweepLoop(config.SweepInterval)

	return m
}

// Name identifies the layer
func (m *Memory[K, V]) Name() string { return m.name }

// Set stores value for at most ttl, replacing any prior value
func (m *Memory[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// TryGet returns the stored value if present and not expired. Expired
// entries are removed on access.
func (m *Memory[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	var zero V

	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return zero, false, nil
	}

	if e.expired(time.Now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry with a fresh one.
		if cur, ok := m.items[key]; ok && cur.expired(time.Now()) {
			delete(m.items, key)
			m.expired.Add(1)
		}
		m.mu.Unlock()
		m.misses.Add(1)
		return zero, false, nil
	}

	m.hits.Add(1)
	return e.value, true, nil
}

// Delete removes the key if present
func (m *Memory[K, V]) Delete(ctx context.Context, key K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len returns the number of stored entries, including expired ones
// not yet removed by access or the sweeper
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Stats returns a copy of the layer's counters
func (m *Memory[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Expired: m.expired.Load(),
		Entries: m.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Close stops the expiry sweeper
func (m *Memory[K, V]) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *Memory[K, V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("swept expired entries", logging.F("count", n))
			}
		}
	}
}

// sweep removes every expired entry and returns how many were removed
func (m *Memory[K, V]) sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
			removed++
		}
	}
	m.expired.Add(uint64(removed))
	return removed
}
