// Package writepolicy implements the strategies that propagate a write
// across the cache layers and to the persistent store of record.
package writepolicy

import (
	"context"
	"time"

	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// Policy propagates a write to the layers and the persistent store.
// The manager passes per-layer TTLs (already jittered); a missing TTL
// entry falls back to the policy's default.
type Policy[K comparable, V any] interface {
	Name() string

	// DefaultTTL is the base TTL the manager reasons about when
	// computing soft-TTL refresh windows
	DefaultTTL() time.Duration

	Write(ctx context.Context, key K, value V, layers []types.Layer[K, V], writer types.StoreWriter[K, V], ttls []time.Duration) error
}

// Config represents shared write policy configuration
type Config struct {
	// DefaultTTL applies to any layer without a per-layer override
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// WarnOnMissingWriter logs a warning when a write has no
	// persistent store writer configured
	WarnOnMissingWriter bool `yaml:"warn_on_missing_writer"`

	Logger *logging.Logger `yaml:"-"`
}

func (c *Config) withDefaults(component string) Config {
	cfg := Config{WarnOnMissingWriter: true}
	if c != nil {
		cfg = *c
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	cfg.Logger = logging.OrNop(cfg.Logger).WithComponent(component)
	return cfg
}

// ttlFor resolves the TTL for layer i
func ttlFor(ttls []time.Duration, i int, fallback time.Duration) time.Duration {
	if i < len(ttls) && ttls[i] > 0 {
		return ttls[i]
	}
	return fallback
}
