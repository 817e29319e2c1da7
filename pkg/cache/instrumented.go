package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// Operation names reported to the metrics sink
const (
	opGetOrAdd = "get_or_add"
	opSet      = "set"
	opDelete   = "delete"
)

// Instrumented decorates a Cache with operation timing. Every call is
// measured with the monotonic clock and fed to the metrics sink as a
// count and a latency observation; the last per-key latency augments
// snapshots. Behavior of the wrapped cache is unchanged.
type Instrumented[K comparable, V any] struct {
	inner Cache[K, V]
	sink  types.MetricsSink
	keyFn types.KeyFunc[K]

	// last observed latency per key, in milliseconds
	latencies sync.Map // string -> float64
}

// NewInstrumented wraps a cache with metrics instrumentation
func NewInstrumented[K comparable, V any](inner Cache[K, V], sink types.MetricsSink, keyFn types.KeyFunc[K]) *Instrumented[K, V] {
	if keyFn == nil {
		keyFn = types.DefaultKeyFunc[K]()
	}
	return &Instrumented[K, V]{
		inner: inner,
		sink:  sink,
		keyFn: keyFn,
	}
}

// GetOrAdd times the wrapped lookup
func (c *Instrumented[K, V]) GetOrAdd(ctx context.Context, key K) (V, error) {
	start := time.Now()
	value, err := c.inner.GetOrAdd(ctx, key)
	c.record(opGetOrAdd, key, time.Since(start), err)
	return value, err
}

// Set times the wrapped write
func (c *Instrumented[K, V]) Set(ctx context.Context, key K, value V) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value)
	c.record(opSet, key, time.Since(start), err)
	return err
}

// Delete times the wrapped delete
func (c *Instrumented[K, V]) Delete(ctx context.Context, key K) error {
	start := time.Now()
	err := c.inner.Delete(ctx, key)
	c.record(opDelete, key, time.Since(start), err)
	return err
}

// Snapshot augments the wrapped snapshot with per-key last latencies
func (c *Instrumented[K, V]) Snapshot(topN int) types.Snapshot {
	snap := c.inner.Snapshot(topN)
	for k, metrics := range snap.PerKey {
		if v, ok := c.latencies.Load(k); ok {
			metrics.LastLatencyMs = v.(float64)
			snap.PerKey[k] = metrics
		}
	}
	return snap
}

// Close closes the wrapped cache
func (c *Instrumented[K, V]) Close() error {
	return c.inner.Close()
}

func (c *Instrumented[K, V]) record(op string, key K, d time.Duration, err error) {
	ms := float64(d.Microseconds()) / 1000.0
	c.latencies.Store(c.keyFn(key), ms)
	if c.sink != nil {
		c.sink.RecordOperation(op, d, err == nil)
	}
}
