package cache

import (
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/writepolicy"
)

// Options configures a Manager. Zero values fall back to the defaults
// documented on each field.
type Options[K comparable, V any] struct {
	// Layers are the cache tiers, ordered fastest first. Required.
	Layers []types.Layer[K, V]

	// Loader produces the authoritative value on a full miss. Required.
	Loader types.Loader[K, V]

	// Policy propagates writes. Defaults to write-through with DefaultTTL.
	Policy writepolicy.Policy[K, V]

	// Writer persists values to the store of record. Optional: without
	// it, writes log a warning and succeed.
	Writer types.StoreWriter[K, V]

	// DefaultTTL is the base TTL for layers without an override.
	// Default 5m.
	DefaultTTL time.Duration

	// LayerTTLs overrides the TTL per layer, index-aligned with Layers
	LayerTTLs []time.Duration

	// EarlyRefreshThreshold is the soft-TTL window before hard expiry
	// during which a hit triggers a background reload. Default 1m.
	EarlyRefreshThreshold time.Duration

	// MinRefreshInterval throttles refreshes per key. Default 30s;
	// set negative to disable the throttle.
	MinRefreshInterval time.Duration

	// MaxConcurrentEarlyRefreshes caps refresh tasks globally. Default 10.
	MaxConcurrentEarlyRefreshes int64

	// RefreshStartJitter is the maximum random delay before a refresh
	// task starts. Default 500ms.
	RefreshStartJitter time.Duration

	// TTLJitterFraction f spreads every stored TTL uniformly over
	// [ttl*(1-f), ttl*(1+f)] to avoid synchronized expiry. Default 0.1;
	// set negative to disable explicitly.
	TTLJitterFraction float64

	// Promotion selects which faster layers receive a value after a
	// hit in a slower one. Default PromoteAllHigherLayers.
	Promotion types.PromotionPolicy

	// StaleKeyCleanupInterval is the period of the per-key state GC.
	// Default 10m.
	StaleKeyCleanupInterval time.Duration

	// StaleThreshold is the age beyond which per-key state is dropped.
	// Default 1h.
	StaleThreshold time.Duration

	// MaxRetries bounds loader attempts. Default 3.
	MaxRetries int

	// RetryBaseDelay starts the exponential loader backoff. Default 100ms.
	RetryBaseDelay time.Duration

	// KeyFunc stringifies keys for the single-flight group and
	// snapshots. Defaults to fmt.Sprint.
	KeyFunc types.KeyFunc[K]

	// Hooks are optional event callbacks
	Hooks types.Hooks[K]

	Logger *logging.Logger
}

func (o *Options[K, V]) withDefaults() (*Options[K, V], error) {
	if len(o.Layers) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "at least one layer is required")
	}
	if o.Loader == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "a loader is required")
	}

	opts := *o
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.Policy == nil {
		opts.Policy = writepolicy.NewWriteThrough[K, V](&writepolicy.Config{
			DefaultTTL:          opts.DefaultTTL,
			WarnOnMissingWriter: true,
			Logger:              opts.Logger,
		})
	}
	if opts.EarlyRefreshThreshold <= 0 {
		opts.EarlyRefreshThreshold = time.Minute
	}
	if opts.MinRefreshInterval < 0 {
		opts.MinRefreshInterval = 0
	} else if opts.MinRefreshInterval == 0 {
		opts.MinRefreshInterval = 30 * time.Second
	}
	if opts.MaxConcurrentEarlyRefreshes <= 0 {
		opts.MaxConcurrentEarlyRefreshes = 10
	}
	if opts.RefreshStartJitter <= 0 {
		opts.RefreshStartJitter = 500 * time.Millisecond
	}
	if opts.TTLJitterFraction == 0 {
		opts.TTLJitterFraction = 0.1
	}
	if opts.TTLJitterFraction < 0 {
		opts.TTLJitterFraction = 0
	}
	if opts.TTLJitterFraction > 1 {
		return nil, errors.New(errors.ErrCodeConfigValidation, "ttl jitter fraction must be in [0,1]")
	}
	if opts.StaleKeyCleanupInterval <= 0 {
		opts.StaleKeyCleanupInterval = 10 * time.Minute
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = time.Hour
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = types.DefaultKeyFunc[K]()
	}
	opts.Logger = logging.OrNop(opts.Logger).WithComponent("manager")

	if len(opts.LayerTTLs) > 0 && len(opts.LayerTTLs) != len(opts.Layers) {
		return nil, errors.New(errors.ErrCodeConfigValidation, "layer ttl count must match layer count")
	}

	return &opts, nil
}
