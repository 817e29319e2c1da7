package writepolicy

import (
	"context"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// WriteThrough writes every layer synchronously in order, then the
// persistent store. Individual layer failures are logged and do not
// abort the remaining layers; a persistent store failure is fatal
// because the store is the source of truth.
type WriteThrough[K comparable, V any] struct {
	cfg Config
}

// NewWriteThrough creates a write-through policy
func NewWriteThrough[K comparable, V any](config *Config) *WriteThrough[K, V] {
	return &WriteThrough[K, V]{cfg: config.withDefaults("write-through")}
}

// Name identifies the policy
func (p *WriteThrough[K, V]) Name() string { return "write-through" }

// DefaultTTL returns the policy's base TTL
func (p *WriteThrough[K, V]) DefaultTTL() time.Duration { return p.cfg.DefaultTTL }

// Write propagates the value to all layers and the persistent store
func (p *WriteThrough[K, V]) Write(ctx context.Context, key K, value V, layers []types.Layer[K, V], writer types.StoreWriter[K, V], ttls []time.Duration) error {
	for i, l := range layers {
		if err := l.Set(ctx, key, value, ttlFor(ttls, i, p.cfg.DefaultTTL)); err != nil {
			p.cfg.Logger.Warn("layer set failed",
				logging.F("layer", l.Name()),
				logging.Err(err))
		}
	}

	if writer == nil {
		if p.cfg.WarnOnMissingWriter {
			p.cfg.Logger.Warn("no persistent store writer configured, write not persisted")
		}
		return nil
	}

	if err := writer(ctx, key, value); err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailed, "persistent store write failed", err).
			WithComponent(p.Name())
	}
	return nil
}
