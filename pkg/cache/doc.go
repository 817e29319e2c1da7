/*
Package cache provides the multi-tier read-through cache manager.

The Manager composes cache layers, fastest first, behind one generic
entry point:

	l1 := layer.NewTinyLFU[string, []byte](nil)
	l2 := layer.NewRedis[string, []byte](client, layer.BytesCodec{}, nil)

	mgr, err := cache.New(cache.Options[string, []byte]{
		Layers: []types.Layer[string, []byte]{l1, l2},
		Loader: func(ctx context.Context, key string) ([]byte, error) {
			return db.Fetch(ctx, key)
		},
		Writer: func(ctx context.Context, key string, value []byte) error {
			return db.Store(ctx, key, value)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	value, err := mgr.GetOrAdd(ctx, "user:42")

# Read path

GetOrAdd consults each layer in order. A hit is promoted to faster
layers per the promotion policy (fire-and-forget) and, when the value
is inside its soft-TTL window, schedules a background early refresh. A
miss across all layers goes through single-flight: concurrent misses
on one key share a single loader invocation, retried with exponential
backoff, and the loaded value is written through the write policy to
every layer and the persistent store.

# Write path

Set delegates to the configured write policy (write-through or
write-behind) with per-layer TTLs jittered by the configured fraction
so entries written together do not expire together.

# Telemetry

Snapshot returns per-key and aggregate counters plus the in-flight key
set and the hottest keys. Wrapping the manager in NewInstrumented adds
operation counts and latency histograms through a MetricsSink (see
pkg/metrics for the Prometheus implementation) without changing
behavior.

Per-key coordination state is garbage-collected by a periodic stale
sweep; layer contents are left to expire by TTL.
*/
package cache
