/*
Package types defines the shared contracts of the tiercache system.

The central abstraction is the generic Layer interface: an
independently storing cache tier with Set/TryGet/Delete semantics and
its own counters. Layers are composed, fastest first, by the cache
manager; anything that satisfies the interface can participate —
the in-process memory layers, the remote KV layer, or a caller-supplied
tier.

Collaborators the core treats as external are expressed as function
types (Loader, StoreWriter) and small interfaces (Codec, MetricsSink)
so the manager stays decoupled from any concrete database, serializer,
or telemetry system.
*/
package types
