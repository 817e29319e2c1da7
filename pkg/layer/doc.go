/*
Package layer provides the cache tier implementations composed by the
cache manager.

# Layers

Memory is the plain in-process tier: a concurrent TTL map with expiry
checked on access and a background sweeper.

TinyLFU adds W-TinyLFU admission on top of the same storage: a
Count-Min Sketch estimates access frequency, a Bloom-filter doorkeeper
marks keys seen before, and a Set of a cold key is admitted only with
probability f_new / (f_new + f_victim + 1) against a sampled victim.
When the cache is full, eviction samples five random keys and removes
the one with the lowest frequency estimate; a newcomer colder than
that victim is rejected outright. A background task periodically
halves the sketch so recency dominates long-run frequency.

Remote speaks to a network KV store (Redis via go-redis, or any
RemoteStore implementation) with values serialized through an injected
codec. All I/O is wrapped in bounded fixed-delay retries and a
consecutive-failure circuit breaker so a dead store degrades into fast
layer misses instead of stalled requests.

Adapters for ristretto, ttlcache, and hashicorp's expirable LRU let
existing in-process caches slot into the hierarchy unchanged.

# Error policy

Layer methods return errors rather than panicking; the manager logs a
failed Set and carries on, and treats a failed TryGet as a miss on
that tier. A remote miss (key absent) is never an error.
*/
package layer
