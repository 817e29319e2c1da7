package writepolicy

import (
	"context"
	"time"

	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// WriteBehind writes the fastest layer synchronously and fans the
// remaining layers plus the persistent store out to a background task.
// The synchronous path never fails on slower-layer or persistence
// issues; those are logged and dropped. Concurrent writes of the same
// key carry no cross-write ordering guarantee: last writer wins.
type WriteBehind[K comparable, V any] struct {
	cfg Config
}

// NewWriteBehind creates a write-behind policy
func NewWriteBehind[K comparable, V any](config *Config) *WriteBehind[K, V] {
	return &WriteBehind[K, V]{cfg: config.withDefaults("write-behind")}
}

// Name identifies the policy
func (p *WriteBehind[K, V]) Name() string { return "write-behind" }

// DefaultTTL returns the policy's base TTL
func (p *WriteBehind[K, V]) DefaultTTL() time.Duration { return p.cfg.DefaultTTL }

// Write stores into layer 0 synchronously and defers the rest
func (p *WriteBehind[K, V]) Write(ctx context.Context, key K, value V, layers []types.Layer[K, V], writer types.StoreWriter[K, V], ttls []time.Duration) error {
	if len(layers) > 0 {
		if err := layers[0].Set(ctx, key, value, ttlFor(ttls, 0, p.cfg.DefaultTTL)); err != nil {
			p.cfg.Logger.Warn("layer set failed",
				logging.F("layer", layers[0].Name()),
				logging.Err(err))
		}
	}

	rest := layers
	if len(rest) > 0 {
		rest = rest[1:]
	}

	// The fan-out outlives the caller's request context.
	bg := context.WithoutCancel(ctx)
	logging.Go(p.cfg.Logger, "write-behind fan-out", func() {
		for i, l := range rest {
			if err := l.Set(bg, key, value, ttlFor(ttls, i+1, p.cfg.DefaultTTL)); err != nil {
				p.cfg.Logger.Warn("async layer set failed",
					logging.F("layer", l.Name()),
					logging.Err(err))
			}
		}

		if writer == nil {
			if p.cfg.WarnOnMissingWriter {
				p.cfg.Logger.Warn("no persistent store writer configured, write not persisted")
			}
			return
		}
		if err := writer(bg, key, value); err != nil {
			p.cfg.Logger.Error("persistent store write failed, value dropped",
				logging.Err(err))
		}
	})

	return nil
}
