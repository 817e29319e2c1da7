package types

import (
	"context"
	"fmt"
	"time"
)

// Layer defines the contract every cache tier implements. Layers are
// ordered fastest first; the manager never assumes anything about a
// layer beyond this interface.
//
// Error policy: Set errors are logged by the caller and never abort a
// multi-layer write; TryGet returning an error means "treat as miss
// and continue to the next layer".
type Layer[K comparable, V any] interface {
	// Name identifies the layer in logs and stats
	Name() string

	// Set stores value for at most ttl, replacing any prior value
	Set(ctx context.Context, key K, value V, ttl time.Duration) error

	// TryGet returns the stored value if present and not expired.
	// Expired entries are removed on access.
	TryGet(ctx context.Context, key K) (V, bool, error)

	// Delete removes the key if present
	Delete(ctx context.Context, key K) error

	// Len returns the number of live entries, or -1 when the layer
	// cannot count them cheaply (remote tiers)
	Len() int

	// Stats returns a copy of the layer's counters
	Stats() LayerStats

	// Close releases background resources (sweepers, connections)
	Close() error
}

// Promoter is implemented by layers whose admission policy should be
// bypassed when a value arrives from a slower layer: the value already
// demonstrated demand by being requested.
type Promoter[K comparable, V any] interface {
	PromoteFromLowerLayer(ctx context.Context, key K, value V, remainingTTL time.Duration) error
}

// Loader produces the authoritative value for a key on a full miss.
// It may fail transiently; the manager retries with exponential
// backoff before surfacing the last error, wrapped in a
// RETRY_EXHAUSTED error.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// StoreWriter persists a value to the backing store of record. Under
// write-through a failure is fatal to the write; under write-behind it
// is logged and dropped.
type StoreWriter[K comparable, V any] func(ctx context.Context, key K, value V) error

// Codec converts values to and from their byte representation for
// layers that store bytes (the remote KV layer).
type Codec[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// KeyFunc renders a key into the string form used by remote layers,
// the single-flight group, and snapshot maps.
type KeyFunc[K comparable] func(K) string

// DefaultKeyFunc stringifies keys with fmt.Sprint.
func DefaultKeyFunc[K comparable]() KeyFunc[K] {
	return func(k K) string { return fmt.Sprint(k) }
}

// MetricsSink receives operation telemetry from the instrumentation
// wrapper. Implementations must be safe for concurrent use.
type MetricsSink interface {
	// RecordOperation feeds the operation counter and latency histogram
	RecordOperation(operation string, duration time.Duration, success bool)
}

// Hooks are optional event callbacks fired by the manager. A nil hook
// is skipped. OnCacheHit and OnCacheMiss run on the calling goroutine;
// OnEarlyRefresh runs on the background refresh task. Hooks must be fast.
type Hooks[K comparable] struct {
	OnCacheHit     func(key K, layerName string)
	OnCacheMiss    func(key K)
	OnEarlyRefresh func(key K)
}
