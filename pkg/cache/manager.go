package cache

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/retry"
	"github.com/tiercache/tiercache/pkg/types"
)

// Cache is the operation surface shared by the Manager and its
// instrumentation wrapper.
type Cache[K comparable, V any] interface {
	GetOrAdd(ctx context.Context, key K) (V, error)
	Set(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
	Snapshot(topN int) types.Snapshot
	Close() error
}

// keyState holds the manager's coordination state for one key: the key
// lock serializing loads, the refresh timestamp, and the counters. The
// in-flight key set is kept separately in Manager.inflight.
type keyState struct {
	mu sync.Mutex // serializes loads and early refreshes of this key

	firstSeen   int64        // unixnano, set at creation
	lastRefresh atomic.Int64 // unixnano of the last loader/Set result, 0 = never

	hits           atomic.Uint64
	misses         atomic.Uint64
	accesses       atomic.Uint64
	promotions     atomic.Uint64
	earlyRefreshes atomic.Uint64
}

// Manager orchestrates the layer hierarchy: ordered lookup with
// promotion, single-flight miss loading with retries, early refresh,
// TTL jitter, and per-key telemetry.
type Manager[K comparable, V any] struct {
	opts    *Options[K, V]
	retryer *retry.Retryer
	logger  *logging.Logger

	group    singleflight.Group
	keys     sync.Map // string -> *keyState
	inflight sync.Map // string -> struct{}

	refreshSlots *semaphore.Weighted

	totalHits           atomic.Uint64
	totalMisses         atomic.Uint64
	totalPromotions     atomic.Uint64
	totalEarlyRefreshes atomic.Uint64

	closed    atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	taskGroup sync.WaitGroup
}

// New creates a Manager from the given options
func New[K comparable, V any](options Options[K, V]) (*Manager[K, V], error) {
	opts, err := options.withDefaults()
	if err != nil {
		return nil, err
	}

	m := &Manager[K, V]{
		opts:         opts,
		logger:       opts.Logger,
		refreshSlots: semaphore.NewWeighted(opts.MaxConcurrentEarlyRefreshes),
		stopCh:       make(chan struct{}),
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = opts.MaxRetries
	retryCfg.InitialDelay = opts.RetryBaseDelay
	m.retryer = retry.New(retryCfg)

	m.taskGroup.Add(1)
	go m.cleanupLoop()

	return m, nil
}

// GetOrAdd returns the cached value for key, consulting layers fastest
// first. A hit promotes the value to faster layers per the promotion
// policy and may trigger an early refresh. A miss across all layers
// loads through single-flight: concurrent misses on the same key share
// one loader invocation and one result.
func (m *Manager[K, V]) GetOrAdd(ctx context.Context, key K) (V, error) {
	var zero V
	if m.closed.Load() {
		return zero, errors.New(errors.ErrCodeManagerClosed, "manager is closed")
	}

	keyStr := m.opts.KeyFunc(key)
	ks := m.state(keyStr)
	ks.accesses.Add(1)

	for i, l := range m.opts.Layers {
		v, ok, err := l.TryGet(ctx, key)
		if err != nil {
			m.logger.Warn("layer get failed, trying next",
				logging.F("layer", l.Name()),
				logging.Err(err))
			continue
		}
		if !ok {
			continue
		}

		ks.hits.Add(1)
		m.totalHits.Add(1)
		if m.opts.Hooks.OnCacheHit != nil {
			m.opts.Hooks.OnCacheHit(key, l.Name())
		}

		m.promote(ctx, key, v, i, ks)
		m.triggerEarlyRefresh(key, ks)
		return v, nil
	}

	ks.misses.Add(1)
	m.totalMisses.Add(1)
	if m.opts.Hooks.OnCacheMiss != nil {
		m.opts.Hooks.OnCacheMiss(key)
	}

	return m.load(ctx, key, keyStr, ks)
}

// Set writes the value through the configured write policy with
// jittered per-layer TTLs.
func (m *Manager[K, V]) Set(ctx context.Context, key K, value V) error {
	if m.closed.Load() {
		return errors.New(errors.ErrCodeManagerClosed, "manager is closed")
	}

	ks := m.state(m.opts.KeyFunc(key))
	ks.lastRefresh.Store(time.Now().UnixNano())

	return m.opts.Policy.Write(ctx, key, value, m.opts.Layers, m.opts.Writer, m.jitteredTTLs())
}

// Delete removes the key from every layer and drops its coordination
// state. Layer failures are logged; the first error is returned.
func (m *Manager[K, V]) Delete(ctx context.Context, key K) error {
	var firstErr error
	for _, l := range m.opts.Layers {
		if err := l.Delete(ctx, key); err != nil {
			m.logger.Warn("layer delete failed",
				logging.F("layer", l.Name()),
				logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.keys.Delete(m.opts.KeyFunc(key))
	return firstErr
}

// Close stops background timers and waits for in-flight background
// tasks (promotions, refreshes, the cleanup loop) to finish.
func (m *Manager[K, V]) Close() error {
	m.closed.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.taskGroup.Wait()
	return nil
}

// LayerStats returns each layer's counters keyed by layer name
func (m *Manager[K, V]) LayerStats() map[string]types.LayerStats {
	stats := make(map[string]types.LayerStats, len(m.opts.Layers))
	for _, l := range m.opts.Layers {
		stats[l.Name()] = l.Stats()
	}
	return stats
}

// load coalesces concurrent misses for the same key into one loader
// call. The shared task runs on a detached context so one caller's
// cancellation cannot fail the load for the rest; each waiter still
// observes its own cancellation.
func (m *Manager[K, V]) load(ctx context.Context, key K, keyStr string, ks *keyState) (V, error) {
	var zero V

	loadCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(keyStr, func() (interface{}, error) {
		m.inflight.Store(keyStr, struct{}{})
		defer func() {
			// Dropping the flight on every outcome lets the next miss
			// retry instead of observing a stale failure.
			m.group.Forget(keyStr)
			m.inflight.Delete(keyStr)
		}()

		ks.mu.Lock()
		defer ks.mu.Unlock()

		var value V
		err := m.retryer.DoWithContext(loadCtx, func(ctx context.Context) error {
			v, err := m.opts.Loader(ctx, key)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
		if err != nil {
			return nil, err
		}

		if err := m.opts.Policy.Write(loadCtx, key, value, m.opts.Layers, m.opts.Writer, m.jitteredTTLs()); err != nil {
			return nil, err
		}

		ks.lastRefresh.Store(time.Now().UnixNano())
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, errors.Wrap(errors.ErrCodeOperationCanceled, "caller canceled while waiting for load", ctx.Err()).
			WithKey(keyStr)
	}
}

// promote writes a hit from layer i into the faster layers selected by
// the promotion policy, fire-and-forget.
func (m *Manager[K, V]) promote(ctx context.Context, key K, value V, hitLayer int, ks *keyState) {
	if m.opts.Promotion == types.PromoteNone || hitLayer == 0 {
		return
	}

	upper := hitLayer
	if m.opts.Promotion == types.PromoteFirstLayerOnly {
		upper = 1
	}

	ks.promotions.Add(1)
	m.totalPromotions.Add(1)

	bg := context.WithoutCancel(ctx)
	m.spawn("promotion", func() {
		for j := 0; j < upper; j++ {
			l := m.opts.Layers[j]
			ttl := m.jitteredTTL(j)

			var err error
			if p, ok := l.(types.Promoter[K, V]); ok {
				err = p.PromoteFromLowerLayer(bg, key, value, ttl)
			} else {
				err = l.Set(bg, key, value, ttl)
			}
			if err != nil {
				m.logger.Warn("promotion set failed",
					logging.F("layer", l.Name()),
					logging.Err(err))
			}
		}
	})
}

// state returns the per-key record, creating it on first touch
func (m *Manager[K, V]) state(keyStr string) *keyState {
	if v, ok := m.keys.Load(keyStr); ok {
		return v.(*keyState)
	}
	v, _ := m.keys.LoadOrStore(keyStr, &keyState{firstSeen: time.Now().UnixNano()})
	return v.(*keyState)
}

// jitteredTTL returns layer i's TTL spread by the jitter fraction
func (m *Manager[K, V]) jitteredTTL(i int) time.Duration {
	base := m.opts.DefaultTTL
	if i < len(m.opts.LayerTTLs) && m.opts.LayerTTLs[i] > 0 {
		base = m.opts.LayerTTLs[i]
	}
	return jitter(base, m.opts.TTLJitterFraction)
}

// jitteredTTLs builds the per-layer TTL slice for one write
func (m *Manager[K, V]) jitteredTTLs() []time.Duration {
	ttls := make([]time.Duration, len(m.opts.Layers))
	for i := range ttls {
		ttls[i] = m.jitteredTTL(i)
	}
	return ttls
}

// jitter spreads ttl uniformly over [ttl*(1-f), ttl*(1+f)]
func jitter(ttl time.Duration, f float64) time.Duration {
	if f <= 0 {
		return ttl
	}
	u := (rand.Float64()*2 - 1) * f
	return time.Duration(float64(ttl) * (1 + u))
}

// spawn runs fn as a tracked, panic-safe background task
func (m *Manager[K, V]) spawn(operation string, fn func()) {
	m.taskGroup.Add(1)
	logging.Go(m.logger, operation, func() {
		defer m.taskGroup.Done()
		fn()
	})
}
